package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/plan"
	"github.com/ordo-ai/ordo/pkg/prompt"
)

// streamFinal generates the final answer from the executed plan's results.
// The model stream passes through the thinking stripper so <think> blocks
// never reach the user.
func (o *Orchestrator) streamFinal(ctx context.Context, req Request, p *plan.Plan, emit func(string)) {
	finalPrompt := prompt.FinalAnswer(req.Query, renderHistory(req.History), prompt.ToolsContext(p.PriorResults()))

	chunks, errs := o.llm.Stream(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{llm.User(finalPrompt)},
		Temperature: req.Temperature,
	})

	stripper := &llm.ThinkingStripper{}
	for chunk := range chunks {
		emit(stripper.Write(chunk.Content))
	}
	emit(stripper.Flush())

	if err := <-errs; err != nil {
		o.logger.Error("Final answer stream failed", "error", err)
		emit(fmt.Sprintf("处理查询出错: %v", err))
	}
}

func renderHistory(history []llm.Message) string {
	if len(history) == 0 {
		return "无"
	}
	var sb strings.Builder
	for _, msg := range history {
		fmt.Fprintf(&sb, "[%s] %s\n", msg.Role, msg.Content)
	}
	return sb.String()
}
