// Package planner turns a user query into an execution plan: a relevance
// filter over the tool catalog followed by LLM plan synthesis.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ordo-ai/ordo/pkg/jsonx"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/mcp"
	"github.com/ordo-ai/ordo/pkg/plan"
	"github.com/ordo-ai/ordo/pkg/prompt"
)

// Completer is the LLM capability the builder needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Builder constructs execution plans. Stateless apart from configuration;
// safe for concurrent queries.
type Builder struct {
	llm              Completer
	selectionTimeout time.Duration
	logger           *slog.Logger
}

// NewBuilder creates a Builder. selectionTimeout bounds the relevance
// filter call.
func NewBuilder(completer Completer, selectionTimeout time.Duration) *Builder {
	return &Builder{
		llm:              completer,
		selectionTimeout: selectionTimeout,
		logger:           slog.With("component", "planner"),
	}
}

// planSpec is the JSON shape the synthesis prompt asks for.
type planSpec struct {
	Steps []stepSpec `json:"steps"`
}

type stepSpec struct {
	StepID           string         `json:"step_id"`
	ToolName         string         `json:"tool_name"`
	ToolArgs         map[string]any `json:"tool_args"`
	Description      string         `json:"description"`
	DependsOn        []string       `json:"depends_on"`
	ParallelGroup    string         `json:"parallel_group"`
	PollingRequired  bool           `json:"polling_required"`
	PollingInterval  float64        `json:"polling_interval"`
	PollingCondition string         `json:"polling_condition"`
}

// Build produces a sanitized plan for the query. A failed or empty
// relevance filter falls back to the full catalog; a failed synthesis
// yields an empty plan, never an error — the caller decides what an empty
// plan means.
func (b *Builder) Build(ctx context.Context, query string, history []llm.Message, catalog *mcp.Catalog) *plan.Plan {
	selected := b.filterTools(ctx, query, catalog)
	if len(selected) == 0 {
		b.logger.Info("Relevance filter empty, using full catalog")
		selected = catalog.Tools()
	}

	p := plan.New(query)

	response, err := b.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.System(prompt.SynthesizePlan(query, renderHistory(history), describeWithSchemas(selected))),
			llm.User(query),
		},
		Temperature: 0.2,
	})
	if err != nil {
		b.logger.Warn("Plan synthesis failed, returning empty plan", "error", err)
		return p
	}

	var spec planSpec
	if err := jsonx.ExtractInto(llm.StripThinking(response), &spec); err != nil {
		b.logger.Warn("Plan synthesis response is not JSON, returning empty plan", "error", err)
		return p
	}

	for _, s := range spec.Steps {
		if !catalog.Has(s.ToolName) {
			b.logger.Warn("Dropping step with unknown tool", "tool", s.ToolName)
			continue
		}
		if s.StepID == "" {
			s.StepID = "step-" + uuid.NewString()[:8]
		}
		if s.ToolArgs == nil {
			s.ToolArgs = map[string]any{}
		}
		step := &plan.Step{
			StepID:           s.StepID,
			ToolName:         s.ToolName,
			ToolArgs:         s.ToolArgs,
			Description:      s.Description,
			DependsOn:        s.DependsOn,
			ParallelGroup:    s.ParallelGroup,
			PollingRequired:  s.PollingRequired,
			PollingInterval:  s.PollingInterval,
			PollingCondition: s.PollingCondition,
		}
		if err := p.AddStep(step); err != nil {
			b.logger.Warn("Dropping step", "step", s.StepID, "error", err)
		}
	}

	p.Sanitize()
	b.logger.Info("Plan built", "steps", p.Len(), "parallel_groups", len(p.ParallelGroups))
	return p
}

// filterTools runs the relevance filter. Any failure (timeout, LLM error,
// unparseable response with no recognizable names) returns an empty
// selection.
func (b *Builder) filterTools(ctx context.Context, query string, catalog *mcp.Catalog) []mcp.Tool {
	var listing strings.Builder
	for _, tool := range catalog.Tools() {
		fmt.Fprintf(&listing, "- %s: %s\n", tool.Name, tool.Description)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.selectionTimeout)
	defer cancel()

	response, err := b.llm.Complete(callCtx, llm.CompletionRequest{
		Messages: []llm.Message{
			llm.System(prompt.SelectTools(listing.String(), query)),
			llm.User(query),
		},
		Temperature: 0.7,
	})
	if err != nil {
		b.logger.Warn("Tool selection failed", "error", err)
		return nil
	}
	response = llm.StripThinking(response)

	names := parseSelection(response, catalog.Names())
	b.logger.Info("Tools selected", "count", len(names), "tools", names)

	selected := make([]mcp.Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := catalog.Get(name); ok {
			selected = append(selected, tool)
		}
	}
	return selected
}

// parseSelection parses the filter response: fenced JSON block, else raw
// JSON, else a substring scan over the catalog names. "无工具" / "no tools"
// means an explicit empty selection.
func parseSelection(content string, available []string) []string {
	jsonText := content
	if block, ok := jsonx.FencedBlock(content); ok {
		jsonText = block
	}

	var selection map[string]any
	if err := json.Unmarshal([]byte(jsonText), &selection); err == nil {
		if name, ok := selection["tool"].(string); ok {
			return []string{name}
		}
		if list, ok := selection["tools"].([]any); ok {
			names := make([]string, 0, len(list))
			for _, item := range list {
				if name, ok := item.(string); ok {
					names = append(names, name)
				}
			}
			return names
		}
		return nil
	}

	if strings.Contains(content, "无工具") || strings.Contains(strings.ToLower(content), "no tools") {
		return nil
	}
	var names []string
	for _, name := range available {
		if strings.Contains(content, name) {
			names = append(names, name)
		}
	}
	return names
}

// describeWithSchemas renders tools with their full parameter schemas for
// the synthesis prompt.
func describeWithSchemas(tools []mcp.Tool) string {
	var b strings.Builder
	for _, tool := range tools {
		fmt.Fprintf(&b, "### %s\n%s\n", tool.Name, tool.Description)
		if tool.InputSchema != nil {
			if data, err := json.Marshal(tool.InputSchema); err == nil {
				fmt.Fprintf(&b, "参数结构: %s\n", data)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderHistory(history []llm.Message) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
