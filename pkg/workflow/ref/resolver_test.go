package ref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() *Context {
	return NewContext(
		map[string]any{"user": map[string]any{"email": "a@b.c"}, "limit": float64(5)},
		map[string]any{
			"fetch": map[string]any{
				"items": []any{
					map[string]any{"name": "first"},
					map[string]any{"name": "second"},
				},
				"count": float64(2),
			},
			"empty": nil,
		},
	)
}

func TestResolveTypedValues(t *testing.T) {
	r := NewResolver(testContext())

	tests := []struct {
		ref  string
		want any
	}{
		{"@input.limit", float64(5)},
		{"@input.user.email", "a@b.c"},
		{"@fetch.count", float64(2)},
		{"@fetch.items.1.name", "second"},
		{"@fetch.items", []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			parsed, ok := Parse(tt.ref)
			require.True(t, ok)
			val, ok, rerr := r.Resolve(parsed)
			require.Nil(t, rerr)
			require.True(t, ok)
			assert.Equal(t, tt.want, val)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	r := NewResolver(testContext())

	tests := []struct {
		name string
		ref  string
	}{
		{"unknown step", "@missing.value"},
		{"missing key", "@fetch.nope"},
		{"index out of range", "@fetch.items.9.name"},
		{"non-numeric array index", "@fetch.items.first"},
		{"traverse null", "@empty.key"},
		{"traverse primitive", "@fetch.count.deeper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := Parse(tt.ref)
			require.True(t, ok)
			_, ok, rerr := r.Resolve(parsed)
			assert.False(t, ok)
			require.NotNil(t, rerr)
			assert.Equal(t, tt.ref, rerr.Ref)
		})
	}
}

func TestResolveItemAndIndex(t *testing.T) {
	base := testContext()
	r := NewResolver(base.WithItem(map[string]any{"id": "x1"}, 3))

	val, ok, rerr := r.Resolve(mustParse(t, "@item.id"))
	require.Nil(t, rerr)
	require.True(t, ok)
	assert.Equal(t, "x1", val)

	val, ok, rerr = r.Resolve(mustParse(t, "@index"))
	require.Nil(t, rerr)
	require.True(t, ok)
	assert.Equal(t, float64(3), val)

	// Outside a loop both are errors.
	outside := NewResolver(base)
	_, ok, rerr = outside.Resolve(mustParse(t, "@item.id"))
	assert.False(t, ok)
	assert.NotNil(t, rerr)
}

func TestResolveStringExactKeepsType(t *testing.T) {
	r := NewResolver(testContext())

	val, errs := r.ResolveString("@fetch.items")
	require.Empty(t, errs)
	assert.IsType(t, []any{}, val)
}

func TestResolveStringInterpolation(t *testing.T) {
	r := NewResolver(testContext())

	val, errs := r.ResolveString("user=@input.user.email count=@fetch.count")
	require.Empty(t, errs)
	assert.Equal(t, "user=a@b.c count=2", val)
}

func TestResolveStringUnresolvedInterpolatesEmpty(t *testing.T) {
	r := NewResolver(testContext())

	val, errs := r.ResolveString("got: @missing.value!")
	require.Len(t, errs, 1)
	assert.Equal(t, "got: !", val)
}

func TestResolveAllPure(t *testing.T) {
	r := NewResolver(testContext())

	input := map[string]any{
		"emails": []any{"@input.user.email"},
		"static": "no refs here",
		"n":      float64(7),
	}

	resolved, errs := r.ResolveAll(input)
	require.Empty(t, errs)

	m, ok := resolved.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"a@b.c"}, m["emails"])
	assert.Equal(t, "no refs here", m["static"])
	assert.Equal(t, float64(7), m["n"])

	// The original input is never mutated.
	assert.Equal(t, []any{"@input.user.email"}, input["emails"])
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "plain", Stringify("plain"))
	assert.Equal(t, "2", Stringify(float64(2)))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
	assert.Equal(t, "true", Stringify(true))
}

func mustParse(t *testing.T, s string) Ref {
	t.Helper()
	parsed, ok := Parse(s)
	require.True(t, ok)
	return parsed
}
