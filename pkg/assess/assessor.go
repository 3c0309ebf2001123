package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ordo-ai/ordo/pkg/jsonx"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/plan"
	"github.com/ordo-ai/ordo/pkg/prompt"
)

// asyncResultKeywords mark a tool result as an in-flight async task.
var asyncResultKeywords = []string{"任务ID", "进度", "生成中", "处理中", "等待", "排队中"}

// asyncTaskWords mark a remaining-task entry as waiting on an async task.
var asyncTaskWords = []string{"等待", "检查", "获取", "查询"}

// Completer is the single LLM capability the assessor needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Assessor evaluates tool results. Every LLM call is bounded by the
// assessment timeout; a failed call degrades to a conservative default
// instead of propagating the error, so assessment never kills a query.
type Assessor struct {
	llm     Completer
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Assessor. timeout bounds each of the chained LLM calls.
func New(completer Completer, timeout time.Duration) *Assessor {
	return &Assessor{
		llm:     completer,
		timeout: timeout,
		logger:  slog.With("component", "assessor"),
	}
}

// AssessToolResult evaluates one tool execution through the four-stage
// chain: coarse completion check, structured assessment, post-processing
// corrections, and remaining-task type analysis.
func (a *Assessor) AssessToolResult(ctx context.Context, userQuery, toolName string, toolArgs map[string]any, result string, prior []plan.StepResult) Assessment {
	hasError := strings.Contains(result, "isError=True")

	previousTools := make([]string, 0, len(prior))
	for _, r := range prior {
		previousTools = append(previousTools, r.ToolName)
	}
	previousContext := prompt.PreviousContext(prior)

	// Stage 1: coarse completion check.
	isComplete := false
	if response, err := a.complete(ctx, prompt.TaskCompletion(toolName, result, hasError, previousTools, userQuery), 0.1); err == nil {
		if data, ok := jsonx.ExtractObject(response); ok {
			isComplete, _ = asBool(data["is_complete"])
		}
	} else {
		a.logger.Warn("Task completion check failed", "tool", toolName, "error", err)
	}

	// Stage 2: structured assessment. This is the only stage whose failure
	// replaces the whole assessment with the default.
	response, err := a.complete(ctx, prompt.Assess(userQuery, previousContext, toolName,
		prompt.MarshalArgs(toolArgs), result, hasError, isComplete), 0.3)
	if err != nil {
		a.logger.Warn("Assessment failed, using default", "tool", toolName, "error", err)
		return a.defaultAssessment(hasError, err)
	}
	assessment := parseAssessment(response)
	assessment.ToolFailed = hasError

	// Stage 3: post-processing corrections.
	assessmentJSON, _ := json.Marshal(map[string]any{
		"satisfied":            assessment.Satisfied,
		"satisfaction_level":   assessment.SatisfactionLevel,
		"confidence":           assessment.Confidence,
		"reason":               assessment.Reason,
		"problem_solved":       assessment.ProblemSolved,
		"need_more_tools":      assessment.NeedMoreTools,
		"next_tool_suggestion": assessment.NextToolSuggestion,
	})
	if response, err := a.complete(ctx, prompt.PostProcessing(string(assessmentJSON), toolName, result, hasError, previousTools, userQuery), 0.1); err == nil {
		if corrections, ok := jsonx.ExtractObject(response); ok {
			applyCorrections(&assessment, corrections)
		}
	} else {
		a.logger.Warn("Assessment post-processing failed", "tool", toolName, "error", err)
	}
	assessment.ToolFailed = hasError

	// Stage 4: only-summary-work-left detection.
	if response, err := a.complete(ctx, prompt.TaskTypeAnalysis(userQuery, toolName, result, assessment.Reason), 0.1); err == nil {
		if data, ok := jsonx.ExtractObject(response); ok {
			if onlySummary, _ := asBool(data["only_summary"]); onlySummary {
				assessment.NeedMoreTools = false
				assessment.ProblemSolved = true
			}
		}
	} else {
		a.logger.Warn("Task type analysis failed", "tool", toolName, "error", err)
	}

	a.logger.Info("Tool result assessed",
		"tool", toolName,
		"level", assessment.SatisfactionLevel,
		"problem_solved", assessment.ProblemSolved,
		"need_more_tools", assessment.NeedMoreTools)
	return assessment
}

// AssessFinalState evaluates the whole plan. With no recorded results it
// returns the canned no-tools record without any LLM call.
func (a *Assessor) AssessFinalState(ctx context.Context, userQuery string, results []plan.StepResult) FinalState {
	if len(results) == 0 {
		return FinalState{Reason: "没有执行任何工具"}
	}

	response, err := a.complete(ctx, prompt.FinalState(userQuery, prompt.ToolsContext(results)), 0.1)
	if err != nil {
		a.logger.Warn("Final state assessment failed", "error", err)
		return FinalState{Reason: fmt.Sprintf("评估过程出错: %s", err)}
	}
	data, ok := jsonx.ExtractObject(response)
	if !ok {
		a.logger.Warn("Final state response is not JSON")
		return FinalState{Reason: "评估过程出错: 无法解析评估响应", NeedMoreTools: true}
	}

	state := FinalState{SolutionLevel: "未解决", NeedMoreTools: true}
	if v, ok := asBool(data["problem_solved"]); ok {
		state.ProblemSolved = v
	}
	if v, ok := data["solution_level"].(string); ok && v != "" {
		state.SolutionLevel = v
	}
	if v, ok := asFloat(data["confidence"]); ok {
		state.Confidence = v
	}
	if v, ok := data["reason"].(string); ok {
		state.Reason = v
	}
	if v, ok := asBool(data["need_more_tools"]); ok {
		state.NeedMoreTools = v
	}
	if v, ok := asBool(data["generate_final"]); ok {
		state.GenerateFinal = v
	}
	if tasks, ok := data["remaining_tasks"].([]any); ok {
		for _, task := range tasks {
			if s, ok := task.(string); ok {
				state.RemainingTasks = append(state.RemainingTasks, s)
			}
		}
	}
	state.PartiallySolved = state.SolutionLevel == "部分解决"

	a.applyAsyncOverride(&state, results)

	a.logger.Info("Final state assessed",
		"problem_solved", state.ProblemSolved,
		"need_more_tools", state.NeedMoreTools,
		"generate_final", state.GenerateFinal)
	return state
}

// applyAsyncOverride forces NeedMoreTools when the state claims nothing more
// to do but the latest result or remaining tasks look like an async task
// still in flight.
func (a *Assessor) applyAsyncOverride(state *FinalState, results []plan.StepResult) {
	if state.ProblemSolved || state.NeedMoreTools {
		return
	}

	hasAsyncSigns := false
	lastResult := results[len(results)-1].Result
	for _, keyword := range asyncResultKeywords {
		if strings.Contains(lastResult, keyword) {
			hasAsyncSigns = true
			break
		}
	}
	if !hasAsyncSigns {
		for _, task := range state.RemainingTasks {
			for _, word := range asyncTaskWords {
				if strings.Contains(strings.ToLower(task), word) {
					hasAsyncSigns = true
					break
				}
			}
		}
	}

	if hasAsyncSigns {
		state.NeedMoreTools = true
		state.Reason += " (系统检测到异步任务仍在进行中，需要继续轮询进度)"
		a.logger.Info("Async task signs detected, forcing need_more_tools")
	}
}

func (a *Assessor) defaultAssessment(hasError bool, err error) Assessment {
	assessment := Assessment{
		SatisfactionLevel: LevelPartial,
		Confidence:        0.7,
		Reason:            fmt.Sprintf("评估过程出错: %s", err),
		NeedMoreTools:     true,
		ToolFailed:        hasError,
	}
	if hasError {
		assessment.SatisfactionLevel = LevelNone
		assessment.Confidence = 0
		assessment.NeedMoreTools = false
	}
	return assessment
}

func (a *Assessor) complete(ctx context.Context, userPrompt string, temperature float32) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	response, err := a.llm.Complete(callCtx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.System(prompt.AssessorSystem),
			llm.User(userPrompt),
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return llm.StripThinking(response), nil
}
