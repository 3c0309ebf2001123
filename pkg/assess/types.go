// Package assess evaluates tool execution results with chained LLM calls
// and parses the lightly structured responses into typed records.
package assess

import (
	"fmt"
	"strings"
)

// Satisfaction levels.
const (
	LevelFull    = "满足全部需求"
	LevelPartial = "满足部分需求"
	LevelNone    = "不满足需求"
)

// Assessment is the evaluation of one tool execution.
type Assessment struct {
	Satisfied          bool
	SatisfactionLevel  string
	Confidence         float64
	Reason             string
	ProblemSolved      bool
	FinalConfidence    float64
	NeedMoreTools      bool
	ToolFailed         bool
	NextToolSuggestion string
}

// Format renders the assessment as the progress block shown to the user.
func (a Assessment) Format() string {
	needMore := "否"
	if a.NeedMoreTools {
		needMore = "是"
	}
	failed := "False"
	if a.ToolFailed {
		failed = "True"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "工具结果评估: %s (置信度: %v) (工具执行成败：%s)\n原因: %s\n是否需要执行其他工具: %s\n",
		a.SatisfactionLevel, a.Confidence, failed, a.Reason, needMore)
	if a.ProblemSolved {
		b.WriteString("\n问题已完全解决，将生成最终回答\n")
	}
	return b.String()
}

// FinalState is the whole-plan evaluation produced at termination.
type FinalState struct {
	ProblemSolved   bool
	SolutionLevel   string
	Confidence      float64
	Reason          string
	NeedMoreTools   bool
	GenerateFinal   bool
	RemainingTasks  []string
	PartiallySolved bool
}
