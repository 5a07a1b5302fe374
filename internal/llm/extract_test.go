package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fenced json block",
			input: "Here is the plan:\n```json\n{\"meta\": {}}\n```\nDone.",
			want:  `{"meta": {}}`,
		},
		{
			name:  "fenced block without language",
			input: "```\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "bare object with surrounding prose",
			input: `The answer is {"steps": [{"t": "goto"}]} as requested`,
			want:  `{"steps": [{"t": "goto"}]}`,
		},
		{
			name:  "braces inside strings ignored",
			input: `{"value": "curly } inside", "n": 1}`,
			want:  `{"value": "curly } inside", "n": 1}`,
		},
		{
			name:  "array payload",
			input: `result: [1, 2, {"x": 3}]`,
			want:  `[1, 2, {"x": 3}]`,
		},
		{
			name:  "escaped quote in string",
			input: `{"a": "say \"hi\" {"}`,
			want:  `{"a": "say \"hi\" {"}`,
		},
		{
			name:  "no json at all",
			input: "sorry, I cannot do that",
			want:  "",
		},
		{
			name:  "unbalanced object",
			input: `{"a": {"b": 1}`,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.input))
		})
	}
}

func TestNewClientRequiresKeyAndModel(t *testing.T) {
	_, err := NewClient(Config{Model: "gpt-4o"})
	require.Error(t, err)

	_, err = NewClient(Config{APIKey: "k"})
	require.Error(t, err)

	c, err := NewClient(Config{APIKey: "k", Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", c.GetModel())
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache()
	cache.Set("k", "v", -1)

	_, ok := cache.Get("k")
	assert.False(t, ok)

	cache.Set("k", "v", 1000000000)
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}
