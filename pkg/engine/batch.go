package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ordo-ai/ordo/pkg/plan"
)

// batchOutcome holds one step's raw invocation result until the whole batch
// has finished, so recording and assessment happen in declaration order.
type batchOutcome struct {
	step   *plan.Step
	result string
	err    error
}

// runBatch executes a parallel group. Invocations run concurrently against
// a shared snapshot of prior results; recording, assessment, and progress
// emission happen sequentially afterwards so the stream stays deterministic.
func (s *Scheduler) runBatch(ctx context.Context, p *plan.Plan, u *unit, emit func(Progress)) bool {
	prior := p.PriorResults()
	outcomes := make([]batchOutcome, len(u.steps))

	g, gctx := errgroup.WithContext(ctx)
	for i, step := range u.steps {
		step.ToolArgs = s.resolver.Resolve(ctx, p.UserQuery, step, prior)
		emit(Progress{Message: fmt.Sprintf("执行工具: %s\n", step.ToolName), ToolName: step.ToolName})
		p.MarkStarted(step.StepID)

		g.Go(func() error {
			var result string
			var err error
			if step.PollingRequired {
				result, err = s.pollStep(gctx, step)
			} else {
				result, err = s.invoker.Invoke(gctx, step.ToolName, step.ToolArgs)
			}
			outcomes[i] = batchOutcome{step: step, result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()

	allOK := true
	for _, o := range outcomes {
		if o.err != nil {
			msg := "执行出错: " + o.err.Error()
			p.RecordResult(o.step.StepID, msg, false)
			s.logger.Warn("Batch step failed", "tool", o.step.ToolName, "error", o.err)
			emit(Progress{Message: msg, ToolName: o.step.ToolName, Err: o.err})
			if allOK {
				u.failedName = o.step.ToolName
				allOK = false
			}
			continue
		}

		p.RecordResult(o.step.StepID, o.result, !strings.Contains(o.result, "isError=True"))
		assessment := s.assessor.AssessToolResult(ctx, p.UserQuery, o.step.ToolName, o.step.ToolArgs, o.result, prior)
		emit(Progress{
			Message:    o.result + "\n\n" + assessment.Format(),
			ToolName:   o.step.ToolName,
			Assessment: &assessment,
		})
		if assessment.ProblemSolved && !assessment.NeedMoreTools {
			p.MarkCompleted("工具执行结果表明问题已解决")
		}
		if assessment.ToolFailed && allOK {
			u.failedName = o.step.ToolName
			allOK = false
		}
	}
	return allOK
}
