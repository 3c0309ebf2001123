package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ordo-ai/ordo/pkg/config"
	"github.com/ordo-ai/ordo/pkg/mcp"
	"github.com/ordo-ai/ordo/pkg/plan"
)

// Scheduler drives a plan to completion. One Scheduler is shared across
// queries; all per-query state lives in the plan and the Execute frame.
type Scheduler struct {
	llm      Completer
	invoker  ToolInvoker
	assessor Assessor
	catalog  *mcp.Catalog
	cfg      config.EngineConfig
	resolver *Resolver
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(completer Completer, invoker ToolInvoker, assessor Assessor, catalog *mcp.Catalog, cfg config.EngineConfig) *Scheduler {
	return &Scheduler{
		llm:      completer,
		invoker:  invoker,
		assessor: assessor,
		catalog:  catalog,
		cfg:      cfg,
		resolver: NewResolver(completer),
		logger:   slog.With("component", "scheduler"),
	}
}

// unit is one schedulable entry: a single step or a whole parallel batch.
type unit struct {
	steps      []*plan.Step
	failedName string // tool name of the step that failed the unit last run
}

// name identifies the unit in workflow pair keys: the failed step's tool
// when the unit failed, otherwise the first step's tool.
func (u *unit) name() string {
	if u.failedName != "" {
		return u.failedName
	}
	return u.steps[0].ToolName
}

// Execute runs the plan and streams progress records. Exactly one terminal
// record is emitted before the channel closes.
func (s *Scheduler) Execute(ctx context.Context, p *plan.Plan) <-chan Progress {
	out := make(chan Progress, 8)
	go func() {
		defer close(out)
		emit := func(pr Progress) {
			select {
			case out <- pr:
			case <-ctx.Done():
			}
		}
		s.run(ctx, p, emit)
	}()
	return out
}

func (s *Scheduler) run(ctx context.Context, p *plan.Plan, emit func(Progress)) {
	snapshotPath := s.snapshotPath(p)
	if snapshotPath != "" {
		if restored, err := s.maybeRestore(snapshotPath); restored != nil {
			s.logger.Info("Restored plan from snapshot", "path", snapshotPath)
			*p = *restored
		} else if err != nil {
			s.logger.Warn("Snapshot restore failed, using fresh plan", "error", err)
		}
		s.save(p, snapshotPath)
	}

	var executed []*unit
	cursor := 0
	lastFailedIndex := -1
	workflowRepeat := make(map[string]int)
	iteration := 0

	for !p.Completed && iteration < s.cfg.MaxIterations {
		iteration++
		s.logger.Info("Scheduler iteration",
			"iteration", iteration, "max", s.cfg.MaxIterations, "cursor", cursor)

		var u *unit
		if cursor == len(executed) {
			u = s.acquireNextUnit(ctx, p)
			if u == nil {
				break // acquire decided to terminate and set the reason
			}
			executed = append(executed, u)
		} else {
			u = executed[cursor]
			s.logger.Info("Re-running unit after rollback", "unit", u.name(), "cursor", cursor)
		}

		success := s.runUnit(ctx, p, u, emit)
		if snapshotPath != "" {
			s.save(p, snapshotPath)
		}
		if p.Completed {
			break
		}

		if success {
			cursor++
			lastFailedIndex = -1
			continue
		}

		unitName := u.name()
		if cursor > 0 {
			pairKey := executed[cursor-1].name() + "->" + unitName
			workflowRepeat[pairKey]++
			s.logger.Info("Workflow pair failure",
				"pair", pairKey, "count", workflowRepeat[pairKey], "max", s.cfg.MaxToolRetries)
			if workflowRepeat[pairKey] >= s.cfg.MaxToolRetries {
				p.MarkCompleted(fmt.Sprintf("工作流 %s 重复执行 %d 次仍失败，任务终止", pairKey, s.cfg.MaxToolRetries))
				break
			}
		}

		if cursor == lastFailedIndex {
			p.MarkCompleted(fmt.Sprintf("工具 %s 连续第二次执行失败，任务终止", unitName))
			emit(Progress{Message: fmt.Sprintf("工具 %s 连续第二次执行失败，任务终止\n", unitName)})
			break
		}
		lastFailedIndex = cursor

		if cursor > 0 {
			cursor--
			s.logger.Info("Rolling back one unit", "failed", unitName, "cursor", cursor)
		} else {
			p.MarkCompleted(fmt.Sprintf("工具 %s 执行失败，且无法回退，任务终止", unitName))
			emit(Progress{Message: fmt.Sprintf("工具 %s 执行失败，且无法回退，任务终止\n", unitName)})
			break
		}
	}

	s.logger.Info("Scheduler loop finished",
		"iterations", iteration, "completed", p.Completed)
	if snapshotPath != "" {
		s.save(p, snapshotPath)
	}

	final := s.assessor.AssessFinalState(ctx, p.UserQuery, p.PriorResults())
	switch {
	case p.Completed:
		emit(Progress{FinalAssessment: &final, ShouldGenerateFinal: true, Terminal: true})
	case iteration >= 3:
		emit(Progress{
			FinalAssessment:     &final,
			ShouldGenerateFinal: true,
			Terminal:            true,
			Message:             "已达到迭代次数上限，生成临时总结",
		})
	default:
		emit(Progress{FinalAssessment: &final, Terminal: true})
	}
}

// acquireNextUnit picks the next unit: the DAG feed while ready steps
// remain, then the LLM selector path. Returns nil when execution should
// terminate (the plan's completion reason is already set).
func (s *Scheduler) acquireNextUnit(ctx context.Context, p *plan.Plan) *unit {
	ready := p.ReadySteps()
	if len(ready) > 0 {
		first := ready[0]
		if group := first.ParallelGroup; group != "" && p.GroupReady(group, ready) {
			steps := p.GroupSteps(group)
			s.logger.Info("Scheduling parallel batch", "group", group, "size", len(steps))
			return &unit{steps: steps}
		}
		return &unit{steps: []*plan.Step{first}}
	}
	return s.selectNextUnit(ctx, p)
}

// runUnit runs a single step or a parallel batch; true means every step in
// the unit succeeded.
func (s *Scheduler) runUnit(ctx context.Context, p *plan.Plan, u *unit, emit func(Progress)) bool {
	u.failedName = ""
	if len(u.steps) == 1 {
		ok := s.runStep(ctx, p, u.steps[0], emit)
		if !ok {
			u.failedName = u.steps[0].ToolName
		}
		return ok
	}
	return s.runBatch(ctx, p, u, emit)
}

// snapshotPath derives a stable per-query snapshot location, so a restarted
// query picks up its own plan and nothing else's.
func (s *Scheduler) snapshotPath(p *plan.Plan) string {
	if s.cfg.SnapshotDir == "" {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(p.UserQuery))
	return filepath.Join(s.cfg.SnapshotDir, fmt.Sprintf("plan-%016x.json", h.Sum64()))
}

func (s *Scheduler) maybeRestore(path string) (*plan.Plan, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	return plan.Load(path)
}

func (s *Scheduler) save(p *plan.Plan, path string) {
	if err := p.Save(path); err != nil {
		s.logger.Warn("Plan snapshot save failed", "path", path, "error", err)
	}
}
