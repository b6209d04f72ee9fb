package ref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Ref
		ok    bool
	}{
		{
			name:  "input root",
			input: "@input",
			want:  Ref{Raw: "@input", Kind: KindInput},
			ok:    true,
		},
		{
			name:  "input with path",
			input: "@input.user.email",
			want:  Ref{Raw: "@input.user.email", Kind: KindInput, Path: []string{"user", "email"}},
			ok:    true,
		},
		{
			name:  "item",
			input: "@item.id",
			want:  Ref{Raw: "@item.id", Kind: KindItem, Path: []string{"id"}},
			ok:    true,
		},
		{
			name:  "index",
			input: "@index",
			want:  Ref{Raw: "@index", Kind: KindIndex},
			ok:    true,
		},
		{
			name:  "step output",
			input: "@fetch.items.0.name",
			want:  Ref{Raw: "@fetch.items.0.name", Kind: KindStep, Step: "fetch", Path: []string{"items", "0", "name"}},
			ok:    true,
		},
		{
			name:  "bare step name",
			input: "@fetch",
			want:  Ref{Raw: "@fetch", Kind: KindStep, Step: "fetch"},
			ok:    true,
		},
		{
			name:  "without at sign",
			input: "fetch.items",
			want:  Ref{Raw: "fetch.items", Kind: KindStep, Step: "fetch", Path: []string{"items"}},
			ok:    true,
		},
		{
			name:  "not a ref",
			input: "user@example.com extra",
			ok:    false,
		},
		{
			name:  "empty",
			input: "",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want.Kind, got.Kind)
				assert.Equal(t, tt.want.Step, got.Step)
				assert.Equal(t, tt.want.Path, got.Path)
			}
		})
	}
}

func TestIsExact(t *testing.T) {
	assert.True(t, IsExact("@fetch.items"))
	assert.True(t, IsExact("@input"))
	assert.False(t, IsExact("prefix @fetch.items"))
	assert.False(t, IsExact("@fetch.items suffix"))
	assert.False(t, IsExact("no refs at all"))
}

func TestExtractRefs(t *testing.T) {
	input := map[string]any{
		"url":   "@config.base",
		"body":  []any{"@fetch.items", "plain", "@fetch.items"},
		"count": 3,
		"nested": map[string]any{
			"text": "hello @search.top and @input.name",
		},
	}

	refs := ExtractRefs(input)

	var raws []string
	for _, r := range refs {
		raws = append(raws, r.Raw)
	}
	// Deduplicated; each ref appears once.
	assert.Len(t, raws, 4)
	assert.Contains(t, raws, "@config.base")
	assert.Contains(t, raws, "@fetch.items")
	assert.Contains(t, raws, "@search.top")
	assert.Contains(t, raws, "@input.name")
}

func TestExtractRefsNoRefs(t *testing.T) {
	assert.Empty(t, ExtractRefs(map[string]any{"plain": "text", "n": 1}))
	assert.Empty(t, ExtractRefs(nil))
}
