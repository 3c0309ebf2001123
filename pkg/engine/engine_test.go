package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordo-ai/ordo/pkg/assess"
	"github.com/ordo-ai/ordo/pkg/config"
	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/mcp"
	"github.com/ordo-ai/ordo/pkg/plan"
)

// fakeInvoker records invocations and answers via a per-test handler.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   []string
	handler func(tool string, args map[string]any) (string, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, tool string, args map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tool)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(tool, args)
	}
	return "ok: " + tool, nil
}

func (f *fakeInvoker) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeInvoker) count(tool string) int {
	n := 0
	for _, c := range f.callOrder() {
		if c == tool {
			n++
		}
	}
	return n
}

// fakeAssessor returns canned assessments without touching an LLM.
type fakeAssessor struct {
	perStep func(tool, result string) assess.Assessment
	final   assess.FinalState
}

func (f *fakeAssessor) AssessToolResult(_ context.Context, _, tool string, _ map[string]any, result string, _ []plan.StepResult) assess.Assessment {
	if f.perStep != nil {
		return f.perStep(tool, result)
	}
	return assess.Assessment{
		Satisfied:         true,
		SatisfactionLevel: assess.LevelPartial,
		Confidence:        0.7,
		Reason:            "继续执行",
		NeedMoreTools:     true,
	}
}

func (f *fakeAssessor) AssessFinalState(_ context.Context, _ string, _ []plan.StepResult) assess.FinalState {
	return f.final
}

// scriptedCompleter answers by substring match against the prompt, counting
// every call.
type scriptedCompleter struct {
	mu        sync.Mutex
	calls     int
	responses map[string]string // prompt substring -> response
	fallback  string
	err       error
}

func (s *scriptedCompleter) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	text := req.Messages[len(req.Messages)-1].Content
	for key, resp := range s.responses {
		if strings.Contains(text, key) {
			return resp, nil
		}
	}
	return s.fallback, nil
}

func (s *scriptedCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// countingCompleter answers purely by call index.
type countingCompleter struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (string, error)
}

func (c *countingCompleter) Complete(_ context.Context, _ llm.CompletionRequest) (string, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	return c.fn(n)
}

func (c *countingCompleter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxIterations:        15,
		MaxToolRetries:       3,
		ToolExecutionTimeout: time.Second,
		ToolSelectionTimeout: time.Second,
		AssessmentTimeout:    time.Second,
		PollingInterval:      time.Millisecond,
	}
}

func testCatalog() *mcp.Catalog {
	return mcp.NewCatalog([]mcp.Tool{
		{Name: "get_weather", Description: "查询城市天气", Server: "weather"},
		{Name: "send_message", Description: "发送消息", Server: "notify"},
		{Name: "check_progress", Description: "查询异步任务进度", Server: "image"},
	})
}

func newTestScheduler(t *testing.T, completer Completer, invoker ToolInvoker, assessor Assessor) *Scheduler {
	t.Helper()
	if completer == nil {
		completer = &scriptedCompleter{fallback: "None"}
	}
	if invoker == nil {
		invoker = &fakeInvoker{}
	}
	if assessor == nil {
		assessor = &fakeAssessor{}
	}
	return NewScheduler(completer, invoker, assessor, testCatalog(), testEngineConfig())
}

func twoStepPlan(t *testing.T) *plan.Plan {
	t.Helper()
	p := plan.New("武汉天气如何，发消息告诉我")
	require.NoError(t, p.AddStep(&plan.Step{
		StepID:   "step1",
		ToolName: "get_weather",
		ToolArgs: map[string]any{"city": "武汉"},
	}))
	require.NoError(t, p.AddStep(&plan.Step{
		StepID:    "step2",
		ToolName:  "send_message",
		ToolArgs:  map[string]any{"message": "天气播报"},
		DependsOn: []string{"step1"},
	}))
	return p
}

// drain collects every progress record until the channel closes.
func drain(t *testing.T, ch <-chan Progress) []Progress {
	t.Helper()
	var records []Progress
	for {
		select {
		case pr, ok := <-ch:
			if !ok {
				return records
			}
			records = append(records, pr)
		case <-time.After(10 * time.Second):
			t.Fatal("scheduler did not finish in time")
		}
	}
}

func terminalRecord(t *testing.T, records []Progress) Progress {
	t.Helper()
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	require.True(t, last.Terminal, "last record must be terminal")
	for _, pr := range records[:len(records)-1] {
		assert.False(t, pr.Terminal, "only the last record may be terminal")
	}
	return last
}

func TestSchedulerExecutesDependentSteps(t *testing.T) {
	invoker := &fakeInvoker{}
	completer := &scriptedCompleter{fallback: "None"}
	assessor := &fakeAssessor{final: assess.FinalState{ProblemSolved: true, GenerateFinal: true}}
	s := newTestScheduler(t, completer, invoker, assessor)

	p := twoStepPlan(t)
	records := drain(t, s.Execute(context.Background(), p))

	require.Equal(t, []string{"get_weather", "send_message"}, invoker.callOrder())
	assert.Equal(t, []string{"step1", "step2"}, p.ExecutionOrder())

	var toolLines []string
	for _, pr := range records {
		if strings.HasPrefix(pr.Message, "执行工具: ") {
			toolLines = append(toolLines, strings.TrimSpace(pr.Message))
		}
	}
	assert.Equal(t, []string{"执行工具: get_weather", "执行工具: send_message"}, toolLines)

	last := terminalRecord(t, records)
	assert.True(t, last.ShouldGenerateFinal)
	require.NotNil(t, last.FinalAssessment)
	assert.True(t, last.FinalAssessment.ProblemSolved)
	assert.True(t, p.Completed)
	assert.Equal(t, "LLM判断问题已解决，不需要执行更多工具", p.FinalResult)
}

func TestSchedulerStopsWhenProblemSolved(t *testing.T) {
	invoker := &fakeInvoker{}
	assessor := &fakeAssessor{
		perStep: func(tool, result string) assess.Assessment {
			return assess.Assessment{
				Satisfied:         true,
				SatisfactionLevel: assess.LevelFull,
				Confidence:        0.95,
				ProblemSolved:     true,
			}
		},
		final: assess.FinalState{ProblemSolved: true},
	}
	s := newTestScheduler(t, nil, invoker, assessor)

	p := twoStepPlan(t)
	records := drain(t, s.Execute(context.Background(), p))

	assert.Equal(t, []string{"get_weather"}, invoker.callOrder(), "second step must not run")
	assert.True(t, p.Completed)
	assert.Equal(t, "工具执行结果表明问题已解决", p.FinalResult)
	assert.True(t, terminalRecord(t, records).ShouldGenerateFinal)
}

func TestSchedulerContinuesWhenAssessmentWantsMoreTools(t *testing.T) {
	// problem_solved alone is not enough to stop; need_more_tools keeps the
	// plan running.
	invoker := &fakeInvoker{}
	assessor := &fakeAssessor{
		perStep: func(tool, result string) assess.Assessment {
			return assess.Assessment{
				Satisfied:         true,
				SatisfactionLevel: assess.LevelPartial,
				Confidence:        0.8,
				ProblemSolved:     true,
				NeedMoreTools:     tool == "get_weather",
			}
		},
		final: assess.FinalState{ProblemSolved: true},
	}
	s := newTestScheduler(t, nil, invoker, assessor)

	p := twoStepPlan(t)
	drain(t, s.Execute(context.Background(), p))

	assert.Equal(t, []string{"get_weather", "send_message"}, invoker.callOrder())
	assert.True(t, p.Completed)
	assert.Equal(t, "工具执行结果表明问题已解决", p.FinalResult)
}

func TestSchedulerRecordsToolReportedFailure(t *testing.T) {
	// A tool that answers instead of erroring can still report failure via
	// the isError=True marker; the recorded success flag must reflect it.
	invoker := &fakeInvoker{handler: func(string, map[string]any) (string, error) {
		return "调用失败 isError=True: 连接超时", nil
	}}
	assessor := &fakeAssessor{
		perStep: func(tool, result string) assess.Assessment {
			return assess.Assessment{
				SatisfactionLevel: assess.LevelNone,
				Reason:            "工具执行失败",
				ToolFailed:        true,
			}
		},
	}
	s := newTestScheduler(t, nil, invoker, assessor)

	p := plan.New("查询天气")
	require.NoError(t, p.AddStep(&plan.Step{
		StepID: "step1", ToolName: "get_weather", ToolArgs: map[string]any{"city": "武汉"},
	}))
	drain(t, s.Execute(context.Background(), p))

	step, ok := p.Step("step1")
	require.True(t, ok)
	assert.True(t, step.Executed)
	assert.False(t, step.Success, "isError=True results must not record as successful")
	assert.Equal(t, "工具 get_weather 执行失败，且无法回退，任务终止", p.FinalResult)
}

func TestSchedulerRollsBackOnFailure(t *testing.T) {
	sendAttempts := 0
	invoker := &fakeInvoker{handler: func(tool string, _ map[string]any) (string, error) {
		if tool == "send_message" {
			sendAttempts++
			if sendAttempts == 1 {
				return "", errors.New("connection reset")
			}
		}
		return "ok: " + tool, nil
	}}
	assessor := &fakeAssessor{final: assess.FinalState{ProblemSolved: true}}
	s := newTestScheduler(t, &scriptedCompleter{fallback: "None"}, invoker, assessor)

	p := twoStepPlan(t)
	records := drain(t, s.Execute(context.Background(), p))

	// fail at step2, roll back to step1, re-run it, then retry step2
	require.Equal(t,
		[]string{"get_weather", "send_message", "get_weather", "send_message"},
		invoker.callOrder())
	assert.Equal(t, []string{"step1", "step2"}, p.ExecutionOrder(), "re-runs update in place")

	step2, ok := p.Step("step2")
	require.True(t, ok)
	assert.True(t, step2.Success)

	var failureLine bool
	for _, pr := range records {
		if strings.HasPrefix(pr.Message, "执行出错: ") {
			failureLine = true
		}
	}
	assert.True(t, failureLine, "the failed attempt must surface an error line")
}

func TestSchedulerWorkflowPairCap(t *testing.T) {
	invoker := &fakeInvoker{handler: func(tool string, _ map[string]any) (string, error) {
		if tool == "send_message" {
			return "", errors.New("always down")
		}
		return "ok: " + tool, nil
	}}
	s := newTestScheduler(t, &scriptedCompleter{fallback: "None"}, invoker, &fakeAssessor{})

	p := twoStepPlan(t)
	drain(t, s.Execute(context.Background(), p))

	assert.True(t, p.Completed)
	assert.Equal(t, "工作流 get_weather->send_message 重复执行 3 次仍失败，任务终止", p.FinalResult)
	assert.Equal(t, 3, invoker.count("send_message"))
}

func TestSchedulerCannotRollBackFromFirstStep(t *testing.T) {
	invoker := &fakeInvoker{handler: func(string, map[string]any) (string, error) {
		return "", errors.New("boom")
	}}
	s := newTestScheduler(t, nil, invoker, &fakeAssessor{})

	p := plan.New("查询天气")
	require.NoError(t, p.AddStep(&plan.Step{
		StepID: "step1", ToolName: "get_weather", ToolArgs: map[string]any{"city": "武汉"},
	}))
	records := drain(t, s.Execute(context.Background(), p))

	assert.True(t, p.Completed)
	assert.Equal(t, "工具 get_weather 执行失败，且无法回退，任务终止", p.FinalResult)

	var sawLine bool
	for _, pr := range records {
		if pr.Message == "工具 get_weather 执行失败，且无法回退，任务终止\n" {
			sawLine = true
		}
	}
	assert.True(t, sawLine)
	assert.Equal(t, 1, invoker.count("get_weather"))
}

func TestSchedulerIterationCapBoundsExecution(t *testing.T) {
	// The selector keeps proposing tools and every run "succeeds" without
	// solving the problem; the outer cap must stop the loop.
	invoker := &fakeInvoker{}
	completer := &scriptedCompleter{fallback: "get_weather"}
	assessor := &fakeAssessor{final: assess.FinalState{NeedMoreTools: true}}
	cfg := testEngineConfig()
	cfg.MaxIterations = 4
	s := NewScheduler(completer, invoker, assessor, testCatalog(), cfg)

	p := plan.New("一个永远做不完的任务")
	records := drain(t, s.Execute(context.Background(), p))

	assert.False(t, p.Completed)
	assert.Len(t, invoker.callOrder(), 4)

	last := terminalRecord(t, records)
	assert.True(t, last.ShouldGenerateFinal)
	assert.Equal(t, "已达到迭代次数上限，生成临时总结", last.Message)
}

func TestSchedulerRunsParallelGroupTogether(t *testing.T) {
	invoker := &fakeInvoker{}
	assessor := &fakeAssessor{final: assess.FinalState{ProblemSolved: true}}
	s := newTestScheduler(t, &scriptedCompleter{fallback: "None"}, invoker, assessor)

	p := plan.New("同时查天气和发消息")
	require.NoError(t, p.AddStep(&plan.Step{
		StepID: "a", ToolName: "get_weather", ToolArgs: map[string]any{"city": "武汉"}, ParallelGroup: "g1",
	}))
	require.NoError(t, p.AddStep(&plan.Step{
		StepID: "b", ToolName: "send_message", ToolArgs: map[string]any{"message": "hi"}, ParallelGroup: "g1",
	}))
	records := drain(t, s.Execute(context.Background(), p))

	calls := invoker.callOrder()
	assert.ElementsMatch(t, []string{"get_weather", "send_message"}, calls)
	for _, id := range []string{"a", "b"} {
		step, ok := p.Step(id)
		require.True(t, ok)
		assert.True(t, step.Executed)
		assert.True(t, step.Success)
	}

	var assessed int
	for _, pr := range records {
		if pr.Assessment != nil {
			assessed++
		}
	}
	assert.Equal(t, 2, assessed)
}

func TestSchedulerSnapshotRoundtrip(t *testing.T) {
	dir := t.TempDir()
	cfg := testEngineConfig()
	cfg.SnapshotDir = dir

	invoker := &fakeInvoker{}
	assessor := &fakeAssessor{
		perStep: func(string, string) assess.Assessment {
			return assess.Assessment{Satisfied: true, SatisfactionLevel: assess.LevelFull, ProblemSolved: true}
		},
		final: assess.FinalState{ProblemSolved: true},
	}
	s := NewScheduler(&scriptedCompleter{fallback: "None"}, invoker, assessor, testCatalog(), cfg)

	p := plan.New("查询武汉天气")
	require.NoError(t, p.AddStep(&plan.Step{
		StepID: "step1", ToolName: "get_weather", ToolArgs: map[string]any{"city": "武汉"},
	}))
	drain(t, s.Execute(context.Background(), p))
	require.True(t, p.Completed)

	// A second run of the same query restores the completed snapshot and
	// never touches the tools again.
	fresh := plan.New("查询武汉天气")
	require.NoError(t, fresh.AddStep(&plan.Step{
		StepID: "step1", ToolName: "get_weather", ToolArgs: map[string]any{"city": "武汉"},
	}))
	records := drain(t, s.Execute(context.Background(), fresh))

	assert.Equal(t, 1, invoker.count("get_weather"))
	assert.True(t, fresh.Completed)
	assert.True(t, terminalRecord(t, records).ShouldGenerateFinal)
}
