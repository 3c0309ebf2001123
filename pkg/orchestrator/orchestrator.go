// Package orchestrator ties the query pipeline together: tool-need
// classification, plan building, scheduled execution, and the final answer
// stream.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ordo-ai/ordo/pkg/engine"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/mcp"
	"github.com/ordo-ai/ordo/pkg/plan"
	"github.com/ordo-ai/ordo/pkg/prompt"
)

// ToolAssistantMarker opts a conversation into tool orchestration. System
// prompts that do not start with it get a plain chat completion.
const ToolAssistantMarker = "# 工具调用助手"

// fallbackAnswer is streamed when execution ends without enough to answer.
const fallbackAnswer = "\n无法完全满足您的请求，请尝试重新表述您的问题。\n"

// LLM is the completion surface the orchestrator needs.
type LLM interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
	Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, <-chan error)
}

// PlanBuilder turns a query into an executable plan. Implemented by
// planner.Builder.
type PlanBuilder interface {
	Build(ctx context.Context, query string, history []llm.Message, catalog *mcp.Catalog) *plan.Plan
}

// Executor runs a plan. Implemented by engine.Scheduler.
type Executor interface {
	Execute(ctx context.Context, p *plan.Plan) <-chan engine.Progress
}

// Request is one user query.
type Request struct {
	Query        string
	SystemPrompt string
	Temperature  float32
	History      []llm.Message
}

// Chunk is one piece of the streamed response.
type Chunk struct {
	Content string
}

// Orchestrator serves queries over a fixed tool catalog.
type Orchestrator struct {
	llm      LLM
	builder  PlanBuilder
	executor Executor
	catalog  *mcp.Catalog
	logger   *slog.Logger
}

func New(client LLM, builder PlanBuilder, executor Executor, catalog *mcp.Catalog) *Orchestrator {
	return &Orchestrator{
		llm:      client,
		builder:  builder,
		executor: executor,
		catalog:  catalog,
		logger:   slog.With("component", "orchestrator"),
	}
}

// Run answers one request as a lazy chunk stream. The channel closes when
// the answer is complete; errors surface as a single 处理查询出错 chunk.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Chunk {
	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		emit := func(content string) {
			if content == "" {
				return
			}
			select {
			case out <- Chunk{Content: content}:
			case <-ctx.Done():
			}
		}
		o.run(ctx, req, emit)
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, req Request, emit func(string)) {
	if !strings.HasPrefix(req.SystemPrompt, ToolAssistantMarker) {
		o.streamPlain(ctx, req, req.SystemPrompt, emit)
		return
	}

	if !o.needsTools(ctx, req.Query) {
		o.logger.Info("Query answered without tools", "query", req.Query)
		o.streamPlain(ctx, req, prompt.WithoutTools(o.flatToolList()), emit)
		return
	}

	p := o.builder.Build(ctx, req.Query, req.History, o.catalog)
	o.logger.Info("Plan built", "steps", p.Len(), "groups", len(p.ParallelGroups))

	var generateFinal bool
	for pr := range o.executor.Execute(ctx, p) {
		emit(pr.Message)
		if pr.Terminal {
			generateFinal = pr.ShouldGenerateFinal
			if pr.FinalAssessment != nil {
				o.logger.Info("Execution finished",
					"solved", pr.FinalAssessment.ProblemSolved,
					"level", pr.FinalAssessment.SolutionLevel,
					"generate_final", pr.ShouldGenerateFinal)
			}
		}
	}

	if generateFinal {
		o.streamFinal(ctx, req, p, emit)
		return
	}
	emit(fallbackAnswer)
}

// needsTools runs the classifier. Any failure means no tools, so the query
// still gets an answer.
func (o *Orchestrator) needsTools(ctx context.Context, query string) bool {
	content, err := o.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{llm.User(prompt.NeedTools(o.flatToolList(), query))},
		Temperature: 0.1,
	})
	if err != nil {
		o.logger.Warn("Tool-need classification failed, answering without tools", "error", err)
		return false
	}
	return strings.Contains(llm.StripThinking(content), "需要")
}

// streamPlain streams a completion with an optional system message, the
// conversation history, and the user query.
func (o *Orchestrator) streamPlain(ctx context.Context, req Request, systemPrompt string, emit func(string)) {
	messages := make([]llm.Message, 0, len(req.History)+2)
	if systemPrompt != "" {
		messages = append(messages, llm.System(systemPrompt))
	}
	messages = append(messages, req.History...)
	messages = append(messages, llm.User(req.Query))

	chunks, errs := o.llm.Stream(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: req.Temperature,
	})
	for chunk := range chunks {
		emit(chunk.Content)
	}
	if err := <-errs; err != nil {
		o.logger.Error("Plain stream failed", "error", err)
		emit(fmt.Sprintf("处理查询出错: %v", err))
	}
}

func (o *Orchestrator) flatToolList() string {
	var sb strings.Builder
	for _, tool := range o.catalog.Tools() {
		fmt.Fprintf(&sb, "- %s: %s\n", tool.Name, tool.Description)
	}
	return sb.String()
}
