package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/ordo-ai/ordo/pkg/jsonx"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/mcp"
	"github.com/ordo-ai/ordo/pkg/plan"
	"github.com/ordo-ai/ordo/pkg/prompt"
)

// progressToolHints match tool names that look like async progress checkers,
// used as a last resort when the LLM cannot name the next tool.
var progressToolHints = []string{"progress", "状态", "进度"}

// selectNextUnit asks the LLM for the next tool once the plan's DAG is
// exhausted. Returns nil when execution should stop; the completion reason
// is recorded on the plan before returning.
func (s *Scheduler) selectNextUnit(ctx context.Context, p *plan.Plan) *unit {
	prior := p.PriorResults()
	name := s.determineNextTool(ctx, p.UserQuery, prior)

	if name == "" {
		final := s.assessor.AssessFinalState(ctx, p.UserQuery, prior)
		if final.ProblemSolved {
			p.MarkCompleted("LLM判断问题已解决，不需要执行更多工具")
			return nil
		}
		needsMore := final.NeedMoreTools
		if !needsMore {
			var stop bool
			needsMore, name, stop = s.confirmPolling(ctx, p.UserQuery, prior)
			if stop {
				p.MarkCompleted("工具执行失败，停止执行")
				return nil
			}
		}
		if !needsMore {
			p.MarkCompleted("LLM判断问题已解决，不需要执行更多工具")
			return nil
		}
		if name == "" {
			name = s.retryToolName(ctx, p.UserQuery, prior)
		}
		if name == "" {
			name = s.fuzzyProgressTool()
		}
		if name == "" {
			p.MarkCompleted("无法确定下一个工具，停止执行")
			return nil
		}
	}

	tool, ok := s.catalog.Get(name)
	if !ok {
		p.MarkCompleted("找不到工具: " + name)
		return nil
	}

	step := &plan.Step{
		StepID:      "llm-" + uuid.NewString()[:8],
		ToolName:    tool.Name,
		Description: tool.Description,
		ToolArgs:    s.setParameters(ctx, tool, p.UserQuery, prior),
	}
	if err := p.AddStep(step); err != nil {
		s.logger.Warn("Failed to add selector step", "tool", tool.Name, "error", err)
		p.MarkCompleted("无法确定下一个工具，停止执行")
		return nil
	}
	s.logger.Info("Selector chose next tool", "tool", tool.Name, "step", step.StepID)
	return &unit{steps: []*plan.Step{step}}
}

// determineNextTool asks the LLM which tool to run next. An empty answer
// means no further tool is needed; an LLM failure or an unrecognizable
// answer falls back to the first available tool.
func (s *Scheduler) determineNextTool(ctx context.Context, userQuery string, prior []plan.StepResult) string {
	content, err := s.completeSelection(ctx,
		prompt.NextTool(userQuery, prompt.ToolsContext(prior), s.catalog.Describe()), 0.1)
	if err != nil {
		s.logger.Warn("Next-tool selection failed, falling back to first tool", "error", err)
		return s.firstTool()
	}

	answer := strings.Trim(strings.TrimSpace(content), "`\"' \n")
	if answer == "" || strings.EqualFold(answer, "none") || answer == "无" || answer == "空" {
		return ""
	}
	if s.catalog.Has(answer) {
		return answer
	}
	for _, candidate := range s.catalog.Names() {
		if strings.Contains(answer, candidate) {
			return candidate
		}
	}
	s.logger.Warn("Next-tool answer did not name a known tool, falling back to first tool",
		"answer", answer)
	return s.firstTool()
}

// pollingDecision is the secondary confirmation reply.
type pollingDecision struct {
	ContinuePolling bool    `json:"continue_polling"`
	Reason          string  `json:"reason"`
	SuggestedTool   *string `json:"suggested_tool"`
}

// confirmPolling double-checks a "no more tools" verdict: an unfinished
// async task may still need polling. Returns (needsMore, suggestedTool,
// stop); stop means terminate with the tool-failure reason.
func (s *Scheduler) confirmPolling(ctx context.Context, userQuery string, prior []plan.StepResult) (bool, string, bool) {
	content, err := s.completeSelection(ctx,
		prompt.ConfirmPolling(userQuery, prompt.ToolsContext(prior)), 0.1)
	if err != nil {
		s.logger.Warn("Polling confirmation failed", "error", err)
		return false, "", false
	}

	var decision pollingDecision
	if jerr := jsonx.ExtractInto(content, &decision); jerr != nil {
		lowered := strings.ToLower(content)
		if strings.Contains(lowered, "true") && strings.Contains(lowered, "continue_polling") {
			return true, "", false
		}
		return false, "", false
	}

	suggested := ""
	if decision.SuggestedTool != nil {
		suggested = strings.TrimSpace(*decision.SuggestedTool)
	}
	if decision.ContinuePolling {
		return true, suggested, false
	}
	if suggested == "" {
		return false, "", true
	}
	return true, suggested, false
}

// retryToolName re-asks the LLM for a specific tool name.
func (s *Scheduler) retryToolName(ctx context.Context, userQuery string, prior []plan.StepResult) string {
	content, err := s.completeSelection(ctx,
		prompt.RetryToolName(userQuery, prompt.ToolsContext(prior), s.catalog.Names()), 0.1)
	if err != nil {
		s.logger.Warn("Tool name retry failed", "error", err)
		return ""
	}
	answer := strings.Trim(strings.TrimSpace(content), "`\"' \n")
	if s.catalog.Has(answer) {
		return answer
	}
	for _, candidate := range s.catalog.Names() {
		if strings.Contains(answer, candidate) {
			return candidate
		}
	}
	return ""
}

// fuzzyProgressTool finds a progress-checking tool by name.
func (s *Scheduler) fuzzyProgressTool() string {
	for _, name := range s.catalog.Names() {
		lowered := strings.ToLower(name)
		for _, hint := range progressToolHints {
			if strings.Contains(lowered, hint) {
				return name
			}
		}
	}
	return ""
}

// setParameters asks the LLM for concrete arguments for a selector-chosen
// tool. Parse failures degrade to the key:value cascade, then to no args.
func (s *Scheduler) setParameters(ctx context.Context, tool mcp.Tool, userQuery string, prior []plan.StepResult) map[string]any {
	schemaJSON := "{}"
	if tool.InputSchema != nil {
		if raw, err := json.Marshal(tool.InputSchema); err == nil {
			schemaJSON = string(raw)
		}
	}

	content, err := s.completeSelection(ctx,
		prompt.SetParameters(tool.Name, tool.Description, schemaJSON, userQuery, prompt.PreviousContext(prior)), 0.2)
	if err != nil {
		s.logger.Warn("Parameter setting failed, running tool without args",
			"tool", tool.Name, "error", err)
		return map[string]any{}
	}
	if args, ok := jsonx.ExtractObject(content); ok {
		return args
	}
	if args := mcp.ParseToolArgs(content); len(args) > 0 {
		return args
	}
	return map[string]any{}
}

func (s *Scheduler) firstTool() string {
	if names := s.catalog.Names(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// completeSelection runs one LLM round bounded by the selection timeout,
// with thinking blocks stripped from the answer.
func (s *Scheduler) completeSelection(ctx context.Context, userPrompt string, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ToolSelectionTimeout)
	defer cancel()
	content, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{llm.User(userPrompt)},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return llm.StripThinking(content), nil
}
