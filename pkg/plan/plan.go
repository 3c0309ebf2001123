package plan

import (
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Plan is the execution plan for one query. Owned by the orchestrator,
// mutated only by the scheduler goroutine; not concurrent-safe by itself.
type Plan struct {
	UserQuery      string
	CreationTime   time.Time
	Completed      bool
	FinalResult    string
	ParallelGroups map[string][]string

	steps map[string]*Step
	order []string // declaration order

	executionOrder []string // first-executed order, no duplicates
}

// New creates an empty plan for a query.
func New(userQuery string) *Plan {
	return &Plan{
		UserQuery:      userQuery,
		CreationTime:   time.Now(),
		ParallelGroups: make(map[string][]string),
		steps:          make(map[string]*Step),
	}
}

// AddStep appends a step in declaration order. Duplicate ids are rejected.
func (p *Plan) AddStep(step *Step) error {
	if step.StepID == "" {
		return fmt.Errorf("step has empty id")
	}
	if _, exists := p.steps[step.StepID]; exists {
		return fmt.Errorf("duplicate step id %q", step.StepID)
	}
	p.steps[step.StepID] = step
	p.order = append(p.order, step.StepID)
	if step.ParallelGroup != "" {
		p.ParallelGroups[step.ParallelGroup] = append(p.ParallelGroups[step.ParallelGroup], step.StepID)
	}
	return nil
}

// Step looks up a step by id.
func (p *Plan) Step(id string) (*Step, bool) {
	step, ok := p.steps[id]
	return step, ok
}

// Steps returns all steps in declaration order.
func (p *Plan) Steps() []*Step {
	steps := make([]*Step, len(p.order))
	for i, id := range p.order {
		steps[i] = p.steps[id]
	}
	return steps
}

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.order) }

// Sanitize enforces the structural invariants after plan synthesis:
//   - depends_on references to undeclared steps are dropped;
//   - members of a parallel group that depend on each other lose the group
//     tag (the group falls back to sequential execution);
//   - dependency cycles are broken by clearing the DependsOn of every step
//     on a cycle, so the scheduler can always make progress.
func (p *Plan) Sanitize() {
	for _, step := range p.steps {
		kept := step.DependsOn[:0]
		for _, dep := range step.DependsOn {
			if _, ok := p.steps[dep]; ok {
				kept = append(kept, dep)
			} else {
				slog.Warn("Dropping unknown step dependency",
					"step", step.StepID, "dependency", dep)
			}
		}
		step.DependsOn = kept
	}

	for group, members := range p.ParallelGroups {
		if p.hasIntraGroupDependency(members) {
			slog.Warn("Parallel group has internal dependencies, falling back to sequential",
				"group", group)
			for _, id := range members {
				p.steps[id].ParallelGroup = ""
			}
			delete(p.ParallelGroups, group)
		}
	}

	for _, id := range p.cyclicSteps() {
		slog.Warn("Breaking dependency cycle", "step", id)
		p.steps[id].DependsOn = nil
	}
}

func (p *Plan) hasIntraGroupDependency(members []string) bool {
	for _, id := range members {
		for _, dep := range p.steps[id].DependsOn {
			if slices.Contains(members, dep) {
				return true
			}
		}
	}
	return false
}

// cyclicSteps returns the ids of steps that sit on a dependency cycle,
// found by iteratively peeling steps whose dependencies all resolve.
func (p *Plan) cyclicSteps() []string {
	resolved := make(map[string]bool, len(p.order))
	for {
		progressed := false
		for _, id := range p.order {
			if resolved[id] {
				continue
			}
			ok := true
			for _, dep := range p.steps[id].DependsOn {
				if !resolved[dep] {
					ok = false
					break
				}
			}
			if ok {
				resolved[id] = true
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	var cyclic []string
	for _, id := range p.order {
		if !resolved[id] {
			cyclic = append(cyclic, id)
		}
	}
	return cyclic
}

// ReadySteps returns unexecuted steps whose dependencies are all in a
// terminal state, in declaration order. Dependency readiness means the
// dependency finished, not that it succeeded; failure handling belongs to
// the scheduler's rollback machinery.
func (p *Plan) ReadySteps() []*Step {
	var ready []*Step
	for _, id := range p.order {
		step := p.steps[id]
		if step.Executed {
			continue
		}
		ok := true
		for _, dep := range step.DependsOn {
			if !p.steps[dep].Executed {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step)
		}
	}
	return ready
}

// GroupReady reports whether every member of a parallel group is in the
// current ready set.
func (p *Plan) GroupReady(group string, ready []*Step) bool {
	members := p.ParallelGroups[group]
	for _, id := range members {
		if !slices.ContainsFunc(ready, func(s *Step) bool { return s.StepID == id }) {
			return false
		}
	}
	return len(members) > 0
}

// GroupSteps returns a parallel group's members in declaration order.
func (p *Plan) GroupSteps(group string) []*Step {
	var steps []*Step
	for _, id := range p.order {
		if p.steps[id].ParallelGroup == group {
			steps = append(steps, p.steps[id])
		}
	}
	return steps
}

// RecordResult records one step outcome. Re-execution of the same step
// overwrites the recorded result in place; ExecutionOrder gains no
// duplicates.
func (p *Plan) RecordResult(stepID, result string, success bool) {
	step, ok := p.steps[stepID]
	if !ok {
		return
	}
	now := time.Now()
	step.Executed = true
	step.Success = success
	step.EndTime = &now
	if success {
		step.Result = result
		step.Error = ""
	} else {
		step.Error = result
		step.Result = ""
	}
	if !slices.Contains(p.executionOrder, stepID) {
		p.executionOrder = append(p.executionOrder, stepID)
	}
}

// MarkStarted stamps the step's start time.
func (p *Plan) MarkStarted(stepID string) {
	if step, ok := p.steps[stepID]; ok {
		now := time.Now()
		step.StartTime = &now
	}
}

// ExecutionOrder returns step ids in first-executed order.
func (p *Plan) ExecutionOrder() []string {
	return slices.Clone(p.executionOrder)
}

// PriorResults returns the recorded outcomes in first-executed order. A
// failed step's Result carries its error text.
func (p *Plan) PriorResults() []StepResult {
	results := make([]StepResult, 0, len(p.executionOrder))
	for _, id := range p.executionOrder {
		step := p.steps[id]
		text := step.Result
		if !step.Success {
			text = step.Error
		}
		results = append(results, StepResult{
			StepID:   id,
			ToolName: step.ToolName,
			Result:   text,
			Success:  step.Success,
		})
	}
	return results
}

// AllExecuted reports whether every step has run.
func (p *Plan) AllExecuted() bool {
	for _, id := range p.order {
		if !p.steps[id].Executed {
			return false
		}
	}
	return true
}

// MarkCompleted freezes the plan as successfully completed.
func (p *Plan) MarkCompleted(finalResult string) {
	p.Completed = true
	p.FinalResult = finalResult
}
