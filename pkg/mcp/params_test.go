package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseToolArgs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]any
	}{
		{
			name:     "empty input",
			input:    "",
			expected: map[string]any{},
		},
		{
			name:     "json object",
			input:    `{"city": "北京", "days": 3}`,
			expected: map[string]any{"city": "北京", "days": float64(3)},
		},
		{
			name:     "json string wrapped",
			input:    `"北京"`,
			expected: map[string]any{"input": "北京"},
		},
		{
			name:     "json array wrapped",
			input:    `[1, 2]`,
			expected: map[string]any{"input": []any{float64(1), float64(2)}},
		},
		{
			name:     "key colon value pairs",
			input:    "city: 北京, days: 3",
			expected: map[string]any{"city": "北京", "days": int64(3)},
		},
		{
			name:     "key equals value pairs",
			input:    "city=北京\nverbose=true",
			expected: map[string]any{"city": "北京", "verbose": true},
		},
		{
			name:  "yaml with nested structure",
			input: "cities:\n  - 北京\n  - 上海",
			expected: map[string]any{
				"cities": []any{"北京", "上海"},
			},
		},
		{
			name:     "plain text falls back to input",
			input:    "查询北京的天气",
			expected: map[string]any{"input": "查询北京的天气"},
		},
		{
			name:     "null coercion",
			input:    "city: null",
			expected: map[string]any{"city": nil},
		},
		{
			name:     "float coercion",
			input:    "threshold: 0.7",
			expected: map[string]any{"threshold": 0.7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseToolArgs(tt.input))
		})
	}
}
