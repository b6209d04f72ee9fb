package ref

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ResolutionError records a ref that could not be resolved. Resolution is
// best-effort, so callers receive both the partially resolved value and
// the error list.
type ResolutionError struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %s: %s", e.Ref, e.Reason)
}

// Resolver resolves refs against a Context.
type Resolver struct {
	ctx *Context
}

// NewResolver creates a resolver bound to the given context.
func NewResolver(ctx *Context) *Resolver {
	return &Resolver{ctx: ctx}
}

// Resolve resolves a parsed ref to its typed value. ok is false when the
// value is unresolved, in which case a ResolutionError describes why.
func (r *Resolver) Resolve(ref Ref) (any, bool, *ResolutionError) {
	var root any
	switch ref.Kind {
	case KindInput:
		root = r.ctx.WorkflowInput
	case KindItem:
		if !r.ctx.HasItem {
			return nil, false, &ResolutionError{Ref: ref.Raw, Reason: "no loop item in scope"}
		}
		root = r.ctx.Item
	case KindIndex:
		if !r.ctx.HasItem {
			return nil, false, &ResolutionError{Ref: ref.Raw, Reason: "no loop index in scope"}
		}
		root = float64(r.ctx.Index)
	case KindStep:
		out, ok := r.ctx.StepOutputs[ref.Step]
		if !ok {
			return nil, false, &ResolutionError{Ref: ref.Raw, Reason: fmt.Sprintf("step %q has no recorded output", ref.Step)}
		}
		root = out
	}

	return traverse(ref, root)
}

// traverse folds the path over the value, dispatching on the JSON variant
// at each segment.
func traverse(ref Ref, v any) (any, bool, *ResolutionError) {
	current := v
	for i, seg := range ref.Path {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[seg]
			if !ok {
				return nil, false, &ResolutionError{
					Ref:    ref.Raw,
					Reason: fmt.Sprintf("key %q not found at %s", seg, pathPrefix(ref, i)),
				}
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, false, &ResolutionError{
					Ref:    ref.Raw,
					Reason: fmt.Sprintf("array at %s requires a numeric index, got %q", pathPrefix(ref, i), seg),
				}
			}
			if idx < 0 || idx >= len(node) {
				return nil, false, &ResolutionError{
					Ref:    ref.Raw,
					Reason: fmt.Sprintf("index %d out of range at %s", idx, pathPrefix(ref, i)),
				}
			}
			current = node[idx]
		case nil:
			return nil, false, &ResolutionError{
				Ref:    ref.Raw,
				Reason: fmt.Sprintf("cannot traverse null at %s", pathPrefix(ref, i)),
			}
		default:
			return nil, false, &ResolutionError{
				Ref:    ref.Raw,
				Reason: fmt.Sprintf("cannot traverse %T at %s", current, pathPrefix(ref, i)),
			}
		}
	}
	return current, true, nil
}

func pathPrefix(ref Ref, upTo int) string {
	if upTo == 0 {
		return strings.TrimSuffix(ref.Raw, "."+strings.Join(ref.Path, "."))
	}
	base := strings.TrimSuffix(ref.Raw, "."+strings.Join(ref.Path, "."))
	return base + "." + strings.Join(ref.Path[:upTo], ".")
}

// ResolveString resolves a string value. When the string is exactly one
// ref the typed value is substituted; otherwise each embedded ref is
// interpolated as text and non-matching '@' characters are preserved.
func (r *Resolver) ResolveString(s string) (any, []ResolutionError) {
	if IsExact(s) {
		parsed, _ := Parse(s)
		val, ok, rerr := r.Resolve(parsed)
		if !ok {
			return nil, []ResolutionError{*rerr}
		}
		return val, nil
	}

	refs := findAll(s)
	if len(refs) == 0 {
		return s, nil
	}

	var errs []ResolutionError
	result := refPattern.ReplaceAllStringFunc(s, func(raw string) string {
		m := refPattern.FindStringSubmatch(raw)
		parsed := makeRef(m[0], m[1], m[2])
		val, ok, rerr := r.Resolve(parsed)
		if !ok {
			errs = append(errs, *rerr)
			return ""
		}
		return Stringify(val)
	})
	return result, errs
}

// ResolveAll recurses into arrays and objects, resolving every string
// value. It is a pure function of (input, context): inputs are never
// mutated and a value containing no '@' comes back identical.
func (r *Resolver) ResolveAll(input any) (any, []ResolutionError) {
	switch v := input.(type) {
	case string:
		return r.ResolveString(v)
	case []any:
		out := make([]any, len(v))
		var errs []ResolutionError
		for i, elem := range v {
			resolved, elemErrs := r.ResolveAll(elem)
			out[i] = resolved
			errs = append(errs, elemErrs...)
		}
		return out, errs
	case map[string]any:
		out := make(map[string]any, len(v))
		var errs []ResolutionError
		for k, elem := range v {
			resolved, elemErrs := r.ResolveAll(elem)
			out[k] = resolved
			errs = append(errs, elemErrs...)
		}
		return out, errs
	default:
		return input, nil
	}
}

// Stringify renders a resolved value for text interpolation: nil becomes
// the empty string, strings pass through, everything else renders as
// compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
