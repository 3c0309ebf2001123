package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordo-ai/ordo/pkg/assess"
	"github.com/ordo-ai/ordo/pkg/plan"
)

func TestPollingCompleteHeuristic(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   bool
	}{
		{"english keyword", "task completed, url: http://x", true},
		{"chinese keyword", "图片生成成功", true},
		{"percent", "进度 100%", true},
		{"uppercase", "STATUS: DONE", true},
		{"json status", `{"status": "completed", "url": "http://x"}`, true},
		{"json state", `{"state": "成功"}`, true},
		{"json progress number", `{"progress": 100}`, true},
		{"json progress string", `{"progress": "100"}`, true},
		{"json progress percent", `{"progress": "100%"}`, true},
		{"still running", "任务处理中，请稍候", false},
		{"json running", `{"status": "running", "progress": 40}`, false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pollingComplete(tt.result))
		})
	}
}

func TestPollStepHeuristicWithoutLLM(t *testing.T) {
	// With a polling condition hint set, the heuristic alone decides
	// completion and the LLM judge is never consulted.
	attempts := 0
	invoker := &fakeInvoker{handler: func(string, map[string]any) (string, error) {
		attempts++
		if attempts < 3 {
			return "progress 40%", nil
		}
		return "status: completed, url: http://img/42", nil
	}}
	completer := &scriptedCompleter{fallback: "未完成"}
	s := newTestScheduler(t, completer, invoker, nil)

	step := &plan.Step{
		StepID:           "s2",
		ToolName:         "check_progress",
		ToolArgs:         map[string]any{"task_id": "T42"},
		PollingRequired:  true,
		PollingInterval:  0.001,
		PollingCondition: "任务完成且返回图片地址",
	}
	result, err := s.pollStep(context.Background(), step)
	require.NoError(t, err)
	assert.Contains(t, result, "completed")
	assert.Equal(t, 3, step.PollingIteration)
	assert.Equal(t, 0, completer.callCount(), "judge must not run when a condition is set")
}

func TestPollStepJudgeCompletes(t *testing.T) {
	// Without a condition hint the LLM judge decides; it answers 已完成 on
	// the third poll.
	completer := &countingCompleter{fn: func(call int) (string, error) {
		if call < 3 {
			return "未完成", nil
		}
		return "已完成", nil
	}}
	invoker := &fakeInvoker{handler: func(string, map[string]any) (string, error) {
		return "任务仍在排队", nil
	}}
	s := newTestScheduler(t, completer, invoker, nil)

	step := &plan.Step{
		StepID: "s2", ToolName: "check_progress",
		ToolArgs: map[string]any{"task_id": "T42"}, PollingRequired: true, PollingInterval: 0.001,
	}
	result, err := s.pollStep(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, "任务仍在排队", result)
	assert.Equal(t, 3, step.PollingIteration)
	assert.Equal(t, 3, completer.callCount())
}

func TestPollStepJudgeNegativeAnswerKeepsPolling(t *testing.T) {
	// A negative verdict embeds the word 完成; it must not read as complete.
	completer := &countingCompleter{fn: func(int) (string, error) {
		return "任务尚未完成，仍在处理中", nil
	}}
	invoker := &fakeInvoker{handler: func(string, map[string]any) (string, error) {
		return "任务仍在排队", nil
	}}
	cfg := testEngineConfig()
	cfg.MaxIterations = 3
	s := NewScheduler(completer, invoker, &fakeAssessor{}, testCatalog(), cfg)

	step := &plan.Step{
		StepID: "s3", ToolName: "check_progress",
		ToolArgs: map[string]any{"task_id": "T42"}, PollingRequired: true, PollingInterval: 0.001,
	}
	result, err := s.pollStep(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, "任务仍在排队", result)
	assert.Equal(t, 3, step.PollingIteration)
	assert.Equal(t, 3, completer.callCount())
}

func TestPollStepJudgeFailureKeepsPolling(t *testing.T) {
	completer := &countingCompleter{fn: func(int) (string, error) {
		return "", context.DeadlineExceeded
	}}
	invoker := &fakeInvoker{handler: func(string, map[string]any) (string, error) {
		return "任务仍在排队", nil
	}}
	cfg := testEngineConfig()
	cfg.MaxIterations = 2
	s := NewScheduler(completer, invoker, &fakeAssessor{}, testCatalog(), cfg)

	step := &plan.Step{
		StepID: "s2", ToolName: "check_progress",
		ToolArgs: map[string]any{}, PollingRequired: true, PollingInterval: 0.001,
	}
	result, err := s.pollStep(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, "任务仍在排队", result, "judge failures fall back to the last polled result")
	assert.Equal(t, 2, invoker.count("check_progress"))
}

func TestPollStepCapKeepsLastResult(t *testing.T) {
	invoker := &fakeInvoker{handler: func(string, map[string]any) (string, error) {
		return "一直在跑", nil
	}}
	completer := &scriptedCompleter{fallback: "未完成"}
	cfg := testEngineConfig()
	cfg.MaxIterations = 2
	s := NewScheduler(completer, invoker, &fakeAssessor{}, testCatalog(), cfg)

	step := &plan.Step{
		StepID: "s1", ToolName: "check_progress",
		ToolArgs: map[string]any{}, PollingRequired: true, PollingInterval: 0.001,
	}
	result, err := s.pollStep(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, "一直在跑", result)
	assert.Equal(t, 2, step.PollingIteration)
}

func TestPollStepInvocationErrorFails(t *testing.T) {
	invoker := &fakeInvoker{handler: func(string, map[string]any) (string, error) {
		return "", context.DeadlineExceeded
	}}
	s := newTestScheduler(t, nil, invoker, nil)

	step := &plan.Step{
		StepID: "s1", ToolName: "check_progress",
		ToolArgs: map[string]any{}, PollingRequired: true,
	}
	_, err := s.pollStep(context.Background(), step)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "轮询第1次失败")
	assert.Equal(t, 1, invoker.count("check_progress"))
}

func TestScenarioPollingImageTask(t *testing.T) {
	// generate_image returns a task id; the dependent progress check polls
	// until the async task reports completion.
	catalog := testCatalog()
	progressResults := []string{"progress 40%", "progress 80%", "status: completed, url: http://img/T42"}
	progressCall := 0
	invoker := &fakeInvoker{handler: func(tool string, _ map[string]any) (string, error) {
		if tool == "check_progress" {
			r := progressResults[progressCall]
			progressCall++
			return r, nil
		}
		return "任务ID: T42", nil
	}}
	assessor := &fakeAssessor{
		perStep: func(tool, result string) assess.Assessment {
			if tool == "check_progress" {
				return assess.Assessment{Satisfied: true, SatisfactionLevel: assess.LevelFull, ProblemSolved: true}
			}
			return assess.Assessment{Satisfied: true, SatisfactionLevel: assess.LevelPartial, NeedMoreTools: true}
		},
		final: assess.FinalState{ProblemSolved: true},
	}
	s := NewScheduler(&scriptedCompleter{fallback: "None"}, invoker, assessor, catalog, testEngineConfig())

	p := plan.New("画一只猫")
	require.NoError(t, p.AddStep(&plan.Step{
		StepID: "s1", ToolName: "get_weather", ToolArgs: map[string]any{"city": "武汉"},
	}))
	require.NoError(t, p.AddStep(&plan.Step{
		StepID:           "s2",
		ToolName:         "check_progress",
		ToolArgs:         map[string]any{"task_id": "${s1}"},
		DependsOn:        []string{"s1"},
		PollingRequired:  true,
		PollingInterval:  0.001,
		PollingCondition: "任务完成",
	}))
	drain(t, s.Execute(context.Background(), p))

	assert.Equal(t, 3, progressCall, "polls until the completion signal")
	assert.True(t, p.Completed)

	s2, ok := p.Step("s2")
	require.True(t, ok)
	assert.Contains(t, s2.Result, "completed")
	assert.Equal(t, "任务ID: T42", s2.ToolArgs["task_id"], "step reference resolved before polling")
}
