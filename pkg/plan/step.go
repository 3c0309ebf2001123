// Package plan holds the execution plan: a DAG of tool invocation steps with
// parallel groups, recorded results, and JSON snapshots.
package plan

import "time"

// Step is one planned tool invocation. Planning fields come from the plan
// builder; runtime fields are filled in by the scheduler as the step runs.
// Once Executed is set, exactly one of Result/Error is populated.
type Step struct {
	StepID          string         `json:"step_id"`
	ToolName        string         `json:"tool_name"`
	ToolArgs        map[string]any `json:"tool_args"`
	Description     string         `json:"description"`
	DependsOn       []string       `json:"depends_on"`
	ParallelGroup   string         `json:"parallel_group"`
	PollingRequired bool           `json:"polling_required"`
	PollingInterval float64        `json:"polling_interval"` // seconds
	PollingCondition string        `json:"polling_condition"`

	Executed         bool       `json:"executed"`
	Success          bool       `json:"success"`
	Result           string     `json:"result"`
	Error            string     `json:"error"`
	StartTime        *time.Time `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	PollingIteration int        `json:"polling_iteration"`
}

// StepResult is one recorded outcome, in first-executed order, as consumed by
// placeholder resolution and assessment.
type StepResult struct {
	StepID   string
	ToolName string
	Result   string
	Success  bool
}
