package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/plan"
	"github.com/ordo-ai/ordo/pkg/prompt"
)

// completionKeywords mark an async task as finished when they appear in a
// polling result or in its status/state JSON field.
var completionKeywords = []string{
	"completed", "finished", "done", "success", "complete",
	"完成", "成功", "结束", "就绪", "100%",
}

// judgeCompleteWords are what the LLM polling judge is expected to answer
// with when the task looks finished.
var judgeCompleteWords = []string{"已完成", "完成", "done", "completed"}

// pollStep repeatedly invokes an async tool until its result looks complete
// or the iteration cap is hit. Any invocation error fails the step; hitting
// the cap with a recorded result succeeds with the last one.
func (s *Scheduler) pollStep(ctx context.Context, step *plan.Step) (string, error) {
	interval := s.cfg.PollingInterval
	if step.PollingInterval > 0 {
		interval = time.Duration(step.PollingInterval * float64(time.Second))
	}

	var lastResult string
	haveResult := false
	for i := 1; i <= s.cfg.MaxIterations; i++ {
		step.PollingIteration = i
		s.logger.Info("Polling tool", "tool", step.ToolName, "iteration", i, "max", s.cfg.MaxIterations)

		result, err := s.invoker.Invoke(ctx, step.ToolName, step.ToolArgs)
		if err != nil {
			return "", fmt.Errorf("轮询第%d次失败: %w", i, err)
		}
		lastResult = result
		haveResult = true

		if pollingComplete(result) {
			s.logger.Info("Polling complete by heuristic", "tool", step.ToolName, "iteration", i)
			return result, nil
		}
		if step.PollingCondition == "" && s.judgeComplete(ctx, step, i, result) {
			s.logger.Info("Polling complete by LLM judge", "tool", step.ToolName, "iteration", i)
			return result, nil
		}

		if i < s.cfg.MaxIterations {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	if haveResult {
		s.logger.Info("Polling cap reached, keeping last result", "tool", step.ToolName)
		return lastResult, nil
	}
	return "", fmt.Errorf("轮询 %s 未获得任何结果", step.ToolName)
}

// pollingComplete checks the textual and JSON completion signals.
func pollingComplete(result string) bool {
	lower := strings.ToLower(result)
	for _, kw := range completionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(result), &obj); err != nil {
		return false
	}
	for _, key := range []string{"status", "state"} {
		if v, ok := obj[key].(string); ok {
			lv := strings.ToLower(v)
			for _, kw := range completionKeywords {
				if strings.Contains(lv, kw) {
					return true
				}
			}
		}
	}
	switch v := obj["progress"].(type) {
	case float64:
		return v == 100
	case string:
		return v == "100" || v == "100%"
	}
	return false
}

// judgeComplete asks the LLM whether the task has finished. An LLM failure
// means not complete, so polling continues.
func (s *Scheduler) judgeComplete(ctx context.Context, step *plan.Step, iteration int, result string) bool {
	answer, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{llm.User(prompt.PollingJudge(step.StepID, step.ToolName, iteration, result))},
		Temperature: 0.1,
	})
	if err != nil {
		s.logger.Warn("Polling judge failed", "tool", step.ToolName, "error", err)
		return false
	}
	answer = llm.StripThinking(answer)
	// The judge answers "已完成" or "未完成"; reject the negative before the
	// keyword scan, since "未完成" itself contains "完成".
	if strings.Contains(answer, "未完成") {
		return false
	}
	for _, word := range judgeCompleteWords {
		if strings.Contains(answer, word) {
			return true
		}
	}
	return false
}
