package assess

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	levelRe      = regexp.MustCompile(`(?:工具结果评估|结果评估):\s*(完全解决|部分解决|未解决)\s*(?:\(置信度:\s*([\d.]+)\))?`)
	reasonRe     = regexp.MustCompile(`原因分析:\s*([^\n]+)`)
	needToolsRe  = regexp.MustCompile(`是否需要其他工具:\s*(是|否)`)
	confidenceRe = regexp.MustCompile(`置信度:\s*([\d.]+)`)
)

// parseAssessment parses the stage-2 structured-text response. Unparseable
// responses yield the conservative zero assessment (不满足需求, need more
// tools).
func parseAssessment(content string) Assessment {
	result := Assessment{
		SatisfactionLevel: LevelNone,
		NeedMoreTools:     true,
	}

	if m := levelRe.FindStringSubmatch(content); m != nil {
		level := m[1]
		result.SatisfactionLevel = mapLevel(level)
		result.Satisfied = level == "完全解决"
		result.ProblemSolved = level == "完全解决"
		if m[2] != "" {
			if c, err := strconv.ParseFloat(m[2], 64); err == nil {
				result.Confidence = c
			}
		} else {
			result.Confidence = defaultConfidence(level)
		}
	}

	if m := reasonRe.FindStringSubmatch(content); m != nil {
		result.Reason = strings.TrimSpace(m[1])
	}

	if m := needToolsRe.FindStringSubmatch(content); m != nil {
		result.NeedMoreTools = m[1] == "是"
	} else {
		result.NeedMoreTools = !result.ProblemSolved
	}

	if strings.Contains(content, "问题已完全解决") {
		result.ProblemSolved = true
		result.NeedMoreTools = false
		result.FinalConfidence = extractConfidence(content)
		if result.FinalConfidence == 0 {
			result.FinalConfidence = result.Confidence
			if result.FinalConfidence == 0 {
				result.FinalConfidence = 0.8
			}
		}
	}

	return result
}

func mapLevel(level string) string {
	switch level {
	case "完全解决":
		return LevelFull
	case "部分解决":
		return LevelPartial
	default:
		return LevelNone
	}
}

func defaultConfidence(level string) float64 {
	switch level {
	case "完全解决":
		return 0.9
	case "部分解决":
		return 0.7
	default:
		return 0.5
	}
}

func extractConfidence(content string) float64 {
	if m := confidenceRe.FindStringSubmatch(content); m != nil {
		if c, err := strconv.ParseFloat(m[1], 64); err == nil {
			return c
		}
	}
	return 0
}

// applyCorrections merges the stage-3 JSON correction fields over the parsed
// assessment. Only recognized keys with sane types are applied.
func applyCorrections(a *Assessment, corrections map[string]any) {
	for key, value := range corrections {
		switch key {
		case "satisfied":
			if v, ok := asBool(value); ok {
				a.Satisfied = v
			}
		case "satisfaction_level":
			if v, ok := value.(string); ok && v != "" {
				a.SatisfactionLevel = v
			}
		case "need_more_tools":
			if v, ok := asBool(value); ok {
				a.NeedMoreTools = v
			}
		case "problem_solved":
			if v, ok := asBool(value); ok {
				a.ProblemSolved = v
			}
		case "final_confidence":
			if v, ok := asFloat(value); ok {
				a.FinalConfidence = v
			}
		case "confidence":
			if v, ok := asFloat(value); ok {
				a.Confidence = v
			}
		case "reason":
			if v, ok := value.(string); ok && v != "" {
				a.Reason = v
			}
		case "next_tool_suggestion":
			if v, ok := value.(string); ok {
				a.NextToolSuggestion = v
			}
		}
	}
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(t) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
