package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ordo-ai/ordo/pkg/plan"
)

// NeedTools builds the need-for-tools classifier prompt.
func NeedTools(toolList, userQuery string) string {
	return fmt.Sprintf(needToolsTemplate, toolList, userQuery)
}

// SelectTools builds the relevance filter prompt over a flat
// "- name: description" catalog listing.
func SelectTools(toolList, userQuery string) string {
	return fmt.Sprintf(selectToolsTemplate, toolList, userQuery)
}

// SynthesizePlan builds the plan synthesis prompt. toolSchemas is the
// detailed (parameter-level) description of the filtered tools.
func SynthesizePlan(userQuery, history, toolSchemas string) string {
	if history == "" {
		history = "无"
	}
	return fmt.Sprintf(synthesizePlanTemplate, userQuery, history, toolSchemas)
}

// ResolvePlaceholders builds the placeholder resolution prompt.
func ResolvePlaceholders(userQuery, argsJSON, priorContext string) string {
	return fmt.Sprintf(resolvePlaceholdersTemplate, userQuery, argsJSON, priorContext)
}

// NextTool builds the next-tool selector prompt.
func NextTool(userQuery, executedContext, availableList string) string {
	return fmt.Sprintf(nextToolTemplate, userQuery, executedContext, availableList)
}

// SetParameters builds the parameter setter prompt for a selector-chosen
// tool. previousContext may be empty for the first tool.
func SetParameters(toolName, toolDescription, schemaJSON, userQuery, previousContext string) string {
	var prior string
	if previousContext != "" {
		prior = fmt.Sprintf("\n## 之前工具的执行结果(请参考这些结果设置参数)\n%s\n", previousContext)
	}
	return fmt.Sprintf(setParametersTemplate, toolName, toolDescription, schemaJSON, userQuery, prior)
}

// ConfirmPolling builds the secondary polling confirmation prompt.
func ConfirmPolling(userQuery, toolsContext string) string {
	return fmt.Sprintf(confirmPollingTemplate, userQuery, toolsContext)
}

// RetryToolName builds the re-ask prompt for a concrete tool name.
func RetryToolName(userQuery, toolsContext string, toolNames []string) string {
	return fmt.Sprintf(retryToolNameTemplate, userQuery, toolsContext, strings.Join(toolNames, ", "))
}

// PollingJudge builds the async-completion judgment prompt.
func PollingJudge(stepID, toolName string, iteration int, result string) string {
	return fmt.Sprintf(pollingJudgeTemplate, stepID, toolName, iteration, result)
}

// TaskCompletion builds assessment stage 1.
func TaskCompletion(toolName, result string, hasError bool, previousTools []string, userQuery string) string {
	return fmt.Sprintf(taskCompletionTemplate, toolName, result, hasError, formatToolList(previousTools), userQuery)
}

// Assess builds assessment stage 2. The hint lines mirror the execution
// state: a failure forces 未解决, a coarse completion signal nudges towards
// 完全解决.
func Assess(userQuery, previousContext, toolName, inputArgs, result string, hasError, isComplete bool) string {
	status := "成功"
	errorHint := ""
	if hasError {
		status = "失败"
		errorHint = "注意: 由于执行失败，直接判定为未解决"
	}
	completeHint := ""
	if isComplete {
		completeHint = "问题可能已完全解决，请仔细评估"
	}
	return fmt.Sprintf(assessTemplate,
		userQuery, previousContext, toolName, inputArgs, result, status, errorHint, completeHint)
}

// PostProcessing builds assessment stage 3.
func PostProcessing(assessmentJSON, toolName, result string, hasError bool, previousTools []string, userQuery string) string {
	return fmt.Sprintf(postProcessingTemplate,
		assessmentJSON, toolName, result, hasError, formatToolList(previousTools), userQuery)
}

// TaskTypeAnalysis builds assessment stage 4.
func TaskTypeAnalysis(userQuery, toolName, result, reason string) string {
	return fmt.Sprintf(taskTypeAnalysisTemplate, userQuery, toolName, result, reason)
}

// FinalState builds the whole-plan assessment prompt.
func FinalState(userQuery, toolsContext string) string {
	return fmt.Sprintf(finalStateTemplate, userQuery, toolsContext)
}

// FinalAnswer builds the final answer generation prompt.
func FinalAnswer(userQuery, history, toolsContext string) string {
	if history == "" {
		history = "无"
	}
	return fmt.Sprintf(finalAnswerTemplate, userQuery, history, toolsContext)
}

// WithoutTools builds the system message for the direct-answer path, with
// the catalog embedded so the model can explain what exists.
func WithoutTools(toolCatalog string) string {
	return fmt.Sprintf(withoutToolsTemplate, toolCatalog)
}

// ToolTest builds the single-tool test prompt.
func ToolTest(toolName string, args map[string]any) string {
	return fmt.Sprintf(toolTestTemplate, toolName, MarshalArgs(args))
}

// ToolsContext renders recorded step results as the numbered block shared by
// the selector, confirmation, final-state, and final-answer prompts.
func ToolsContext(results []plan.StepResult) string {
	if len(results) == 0 {
		return "尚未执行任何工具\n"
	}
	var b strings.Builder
	for i, r := range results {
		status := "成功"
		if !r.Success {
			status = "失败"
		}
		fmt.Fprintf(&b, "\n工具 %d: %s (执行%s)\n结果: %s\n", i+1, r.ToolName, status, r.Result)
	}
	return b.String()
}

// PreviousContext renders prior results for the assessment prompt, with
// each tool's arguments.
func PreviousContext(results []plan.StepResult) string {
	if len(results) == 0 {
		return "无"
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "工具 %d: %s\n结果: %s\n\n", i+1, r.ToolName, r.Result)
	}
	return b.String()
}

// MarshalArgs renders an args map as compact JSON for embedding in prompts.
func MarshalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

func formatToolList(tools []string) string {
	if len(tools) == 0 {
		return "[]"
	}
	return "[" + strings.Join(tools, ", ") + "]"
}
