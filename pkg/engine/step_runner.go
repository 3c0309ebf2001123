package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ordo-ai/ordo/pkg/plan"
)

// runStep resolves the step's arguments, invokes (or polls) the tool,
// records the outcome on the plan, and assesses the result. Returns true
// when the step succeeded and the assessor did not flag it as failed.
func (s *Scheduler) runStep(ctx context.Context, p *plan.Plan, step *plan.Step, emit func(Progress)) bool {
	prior := p.PriorResults()
	step.ToolArgs = s.resolver.Resolve(ctx, p.UserQuery, step, prior)

	emit(Progress{Message: fmt.Sprintf("执行工具: %s\n", step.ToolName), ToolName: step.ToolName})
	p.MarkStarted(step.StepID)
	s.logger.Info("Executing tool", "tool", step.ToolName, "step", step.StepID)

	var result string
	var err error
	if step.PollingRequired {
		result, err = s.pollStep(ctx, step)
	} else {
		result, err = s.invoker.Invoke(ctx, step.ToolName, step.ToolArgs)
	}
	if err != nil {
		msg := "执行出错: " + err.Error()
		p.RecordResult(step.StepID, msg, false)
		s.logger.Warn("Tool execution failed", "tool", step.ToolName, "error", err)
		emit(Progress{Message: msg, ToolName: step.ToolName, Err: err})
		return false
	}

	p.RecordResult(step.StepID, result, !strings.Contains(result, "isError=True"))
	assessment := s.assessor.AssessToolResult(ctx, p.UserQuery, step.ToolName, step.ToolArgs, result, prior)
	emit(Progress{
		Message:    result + "\n\n" + assessment.Format(),
		ToolName:   step.ToolName,
		Assessment: &assessment,
	})

	if assessment.ProblemSolved && !assessment.NeedMoreTools {
		p.MarkCompleted("工具执行结果表明问题已解决")
	}
	return !assessment.ToolFailed
}
