package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObjectCascade(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]any
		ok      bool
	}{
		{
			"raw json",
			`{"tool": "get_weather"}`,
			map[string]any{"tool": "get_weather"},
			true,
		},
		{
			"fenced json block",
			"好的，计划如下：\n```json\n{\"city\": \"武汉\"}\n```\n以上。",
			map[string]any{"city": "武汉"},
			true,
		},
		{
			"fence without language tag",
			"```\n{\"city\": \"武汉\"}\n```",
			map[string]any{"city": "武汉"},
			true,
		},
		{
			"embedded object in prose",
			`参数应该是 {"city": "武汉", "days": 3}，请确认。`,
			map[string]any{"city": "武汉", "days": float64(3)},
			true,
		},
		{
			"nested object",
			`前缀 {"a": {"b": "c"}} 后缀`,
			map[string]any{"a": map[string]any{"b": "c"}},
			true,
		},
		{
			"brace inside string literal",
			`{"message": "left { brace"}`,
			map[string]any{"message": "left { brace"},
			true,
		},
		{
			"string pair fallback",
			`"tool": "get_weather", "city": "武汉" — 但整体不是JSON`,
			map[string]any{"tool": "get_weather", "city": "武汉"},
			true,
		},
		{
			"escaped quote in pair fallback",
			`"message": "他说\"你好\""`,
			map[string]any{"message": `他说"你好"`},
			true,
		},
		{"plain prose", "没有任何结构化内容", nil, false},
		{"empty", "", nil, false},
		{"unbalanced braces", `{"a": 1`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractObject(tt.content)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractInto(t *testing.T) {
	type decision struct {
		ContinuePolling bool   `json:"continue_polling"`
		Reason          string `json:"reason"`
	}

	t.Run("raw", func(t *testing.T) {
		var d decision
		require.NoError(t, ExtractInto(`{"continue_polling": true, "reason": "任务未完成"}`, &d))
		assert.True(t, d.ContinuePolling)
		assert.Equal(t, "任务未完成", d.Reason)
	})

	t.Run("fenced", func(t *testing.T) {
		var d decision
		require.NoError(t, ExtractInto("```json\n{\"continue_polling\": true}\n```", &d))
		assert.True(t, d.ContinuePolling)
	})

	t.Run("embedded", func(t *testing.T) {
		var d decision
		require.NoError(t, ExtractInto(`我的结论: {"continue_polling": false, "reason": "已完成"}`, &d))
		assert.False(t, d.ContinuePolling)
		assert.Equal(t, "已完成", d.Reason)
	})

	t.Run("nothing parseable returns first error", func(t *testing.T) {
		var d decision
		assert.Error(t, ExtractInto("完全没有JSON", &d))
	})

	t.Run("no string pair fallback for typed targets", func(t *testing.T) {
		var d decision
		assert.Error(t, ExtractInto(`"reason": "某种理由"`, &d))
	})
}

func TestFencedBlock(t *testing.T) {
	block, ok := FencedBlock("before\n```json\n{\"a\": 1}\n```\nafter")
	require.True(t, ok)
	assert.Equal(t, `{"a": 1}`, block)

	_, ok = FencedBlock("no fences here")
	assert.False(t, ok)
}
