// Package jsonx extracts structured JSON from LLM responses.
//
// Models rarely return clean JSON: they wrap it in markdown fences, prepend
// prose, or emit half-valid fragments. Every component that parses an LLM
// response goes through this one cascade so the failure behavior is uniform.
package jsonx

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedRe    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	stringPairRe = regexp.MustCompile(`"([^"]+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// ExtractObject extracts a JSON object from an LLM response.
//
// Cascade (first successful parse wins):
//  1. Raw JSON parse of the whole response.
//  2. Fenced code-block capture (```json ... ``` or ``` ... ```).
//  3. First balanced {...} match, string-literal aware.
//  4. Pair-of-string-keys fallback: every "key": "value" pair in the text.
//
// Returns (nil, false) when nothing object-shaped can be recovered.
func ExtractObject(content string) (map[string]any, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		return obj, true
	}

	if block, ok := FencedBlock(content); ok {
		if err := json.Unmarshal([]byte(block), &obj); err == nil {
			return obj, true
		}
	}

	if candidate, ok := firstObject(content); ok {
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return obj, true
		}
	}

	if pairs := stringPairs(content); len(pairs) > 0 {
		return pairs, true
	}

	return nil, false
}

// ExtractInto runs the cascade (stages 1-3) and unmarshals the recovered
// JSON into v. The string-pair fallback is skipped: it cannot produce a
// typed document. Returns the first unmarshal error when nothing parses.
func ExtractInto(content string, v any) error {
	content = strings.TrimSpace(content)

	firstErr := json.Unmarshal([]byte(content), v)
	if firstErr == nil {
		return nil
	}

	if block, ok := FencedBlock(content); ok {
		if err := json.Unmarshal([]byte(block), v); err == nil {
			return nil
		}
	}

	if candidate, ok := firstObject(content); ok {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}

	return firstErr
}

// FencedBlock returns the payload of the first markdown code fence.
func FencedBlock(content string) (string, bool) {
	m := fencedRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// firstObject scans for the first balanced top-level {...} span.
// Braces inside string literals (with escape handling) do not count.
func firstObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}

// stringPairs collects every "key": "value" pair in the text. Last resort:
// it loses non-string values but still recovers something usable from
// responses that mangle the surrounding JSON syntax.
func stringPairs(content string) map[string]any {
	matches := stringPairRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	result := make(map[string]any, len(matches))
	for _, m := range matches {
		var value string
		// Unquote to resolve \" and friends; fall back to the raw capture.
		if err := json.Unmarshal([]byte(`"`+m[2]+`"`), &value); err != nil {
			value = m[2]
		}
		result[m[1]] = value
	}
	return result
}
