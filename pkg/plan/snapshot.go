package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// snapshotFile is the on-disk plan shape.
type snapshotFile struct {
	UserQuery      string              `json:"user_query"`
	CreationTime   time.Time           `json:"creation_time"`
	Completed      bool                `json:"completed"`
	ParallelGroups map[string][]string `json:"parallel_groups"`
	Steps          map[string]*Step    `json:"steps"`
}

// Save writes the plan to path, creating parent directories. The write goes
// through a temp file and rename so a crash never leaves a torn snapshot.
func (p *Plan) Save(path string) error {
	file := snapshotFile{
		UserQuery:      p.UserQuery,
		CreationTime:   p.CreationTime,
		Completed:      p.Completed,
		ParallelGroups: p.ParallelGroups,
		Steps:          p.steps,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write plan snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit plan snapshot: %w", err)
	}
	return nil
}

// Load reads a plan snapshot. Step declaration order is not stored in the
// file; steps are restored in sorted-id order, which matches the planner's
// step1/step2/… naming. Already-executed steps rejoin the execution order.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan snapshot: %w", err)
	}
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plan snapshot: %w", err)
	}

	p := New(file.UserQuery)
	p.CreationTime = file.CreationTime
	p.Completed = file.Completed

	ids := make([]string, 0, len(file.Steps))
	for id := range file.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		step := file.Steps[id]
		if step.StepID == "" {
			step.StepID = id
		}
		if err := p.AddStep(step); err != nil {
			return nil, fmt.Errorf("restore step %q: %w", id, err)
		}
	}

	// Executed steps re-enter the execution order by end time.
	executed := make([]*Step, 0, len(ids))
	for _, id := range ids {
		if file.Steps[id].Executed {
			executed = append(executed, file.Steps[id])
		}
	}
	sort.SliceStable(executed, func(i, j int) bool {
		ti, tj := executed[i].EndTime, executed[j].EndTime
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.Before(*tj)
	})
	for _, step := range executed {
		p.executionOrder = append(p.executionOrder, step.StepID)
	}

	return p, nil
}
