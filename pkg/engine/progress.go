// Package engine executes tool plans: the scheduler loop with rollback and
// retry caps, parallel batches, async polling, and placeholder resolution.
package engine

import (
	"context"

	"github.com/ordo-ai/ordo/pkg/assess"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/plan"
)

// Progress is one record on the scheduler's output channel. Records with a
// non-empty Message are shown to the user; the terminal record carries the
// final assessment and whether a final answer should be generated.
type Progress struct {
	Message             string
	ToolName            string
	Assessment          *assess.Assessment
	FinalAssessment     *assess.FinalState
	ShouldGenerateFinal bool
	Terminal            bool
	Err                 error
}

// Completer is the LLM capability the engine needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// ToolInvoker executes one tool call. Implemented by mcp.Invoker.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolName string, args map[string]any) (string, error)
}

// Assessor evaluates step results and the final plan state. Implemented by
// assess.Assessor.
type Assessor interface {
	AssessToolResult(ctx context.Context, userQuery, toolName string, toolArgs map[string]any, result string, prior []plan.StepResult) assess.Assessment
	AssessFinalState(ctx context.Context, userQuery string, results []plan.StepResult) assess.FinalState
}
