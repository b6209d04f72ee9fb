package ref

import (
	"regexp"
	"strings"
)

// Kind identifies what a ref's root resolves against.
type Kind string

const (
	// KindInput roots at the workflow input.
	KindInput Kind = "input"
	// KindItem roots at the current for-each element.
	KindItem Kind = "item"
	// KindIndex roots at the current for-each index.
	KindIndex Kind = "index"
	// KindStep roots at a named step's output.
	KindStep Kind = "step"
)

// Ref is a parsed @ref expression.
type Ref struct {
	// Raw is the full matched text including the leading '@'.
	Raw string

	// Kind selects the root value.
	Kind Kind

	// Step is the step name when Kind == KindStep.
	Step string

	// Path is the dotted segment list after the root. Segments that are
	// all digits index arrays during traversal.
	Path []string
}

// refPattern matches the ref grammar:
//
//	ref  := '@' ident ( '.' segment )*
//	ident := [A-Za-z_][A-Za-z0-9_]*
//	segment := [A-Za-z0-9_]+
var refPattern = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)((?:\.[A-Za-z0-9_]+)*)`)

// exactPattern matches a string that is exactly one ref.
var exactPattern = regexp.MustCompile(`^@([A-Za-z_][A-Za-z0-9_]*)((?:\.[A-Za-z0-9_]+)*)$`)

// Parse parses a single ref expression. The leading '@' is optional so
// condition refs may be written either way. Returns ok=false when the
// string is not a well-formed ref.
func Parse(s string) (Ref, bool) {
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	m := exactPattern.FindStringSubmatch(s)
	if m == nil {
		return Ref{}, false
	}
	return makeRef(s, m[1], m[2]), true
}

// IsExact reports whether the string is exactly one ref (typed
// substitution applies) rather than text with embedded refs.
func IsExact(s string) bool {
	return exactPattern.MatchString(s)
}

func makeRef(raw, root, rawPath string) Ref {
	var path []string
	if rawPath != "" {
		path = strings.Split(strings.TrimPrefix(rawPath, "."), ".")
	}
	r := Ref{Raw: raw, Path: path}
	switch root {
	case "input":
		r.Kind = KindInput
	case "item":
		r.Kind = KindItem
	case "index":
		r.Kind = KindIndex
	default:
		r.Kind = KindStep
		r.Step = root
	}
	return r
}

// findAll returns every ref embedded in the string, in order.
func findAll(s string) []Ref {
	matches := refPattern.FindAllStringSubmatch(s, -1)
	if matches == nil {
		return nil
	}
	refs := make([]Ref, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, makeRef(m[0], m[1], m[2]))
	}
	return refs
}

// ExtractRefs walks a JSON-shaped value and returns the deduped set of
// refs embedded in its string values, in first-seen order. The DAG
// analyzer uses this to derive step dependencies.
func ExtractRefs(v any) []Ref {
	var out []Ref
	seen := make(map[string]bool)
	extract(v, seen, &out)
	return out
}

func extract(v any, seen map[string]bool, out *[]Ref) {
	switch val := v.(type) {
	case string:
		for _, r := range findAll(val) {
			if !seen[r.Raw] {
				seen[r.Raw] = true
				*out = append(*out, r)
			}
		}
	case []any:
		for _, elem := range val {
			extract(elem, seen, out)
		}
	case map[string]any:
		for _, elem := range val {
			extract(elem, seen, out)
		}
	}
}
