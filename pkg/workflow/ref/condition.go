package ref

import (
	"strconv"

	"github.com/tombee/stepflow/pkg/workflow"
)

// ConditionResult is the outcome of evaluating a condition.
//
// A missing left-hand ref yields Satisfied=false together with an error;
// the executor fails open on evaluation errors (an errored condition never
// skips a step), so callers must check Errors before acting on Satisfied.
type ConditionResult struct {
	Satisfied bool
	Errors    []ResolutionError
}

// EvaluateCondition resolves the condition's ref as the left side and, if
// the value is itself a ref, resolves the right side too, then applies the
// operator.
func (r *Resolver) EvaluateCondition(cond *workflow.Condition) ConditionResult {
	parsed, ok := Parse(cond.Ref)
	if !ok {
		return ConditionResult{
			Satisfied: false,
			Errors:    []ResolutionError{{Ref: cond.Ref, Reason: "not a valid ref"}},
		}
	}

	left, ok, rerr := r.Resolve(parsed)
	if !ok {
		return ConditionResult{Satisfied: false, Errors: []ResolutionError{*rerr}}
	}

	right := cond.Value
	if s, isStr := right.(string); isStr && IsExact(s) {
		rightRef, _ := Parse(s)
		val, ok, rerr := r.Resolve(rightRef)
		if !ok {
			return ConditionResult{Satisfied: false, Errors: []ResolutionError{*rerr}}
		}
		right = val
	}

	return ConditionResult{Satisfied: compare(cond.EffectiveOperator(), left, right)}
}

func compare(op workflow.Operator, left, right any) bool {
	switch op {
	case workflow.OpEqual:
		return deepEqual(left, right)
	case workflow.OpNotEqual:
		return !deepEqual(left, right)
	}

	// Ordering operators: numeric when both sides parse as numbers,
	// lexicographic on the string form otherwise.
	ln, lok := asNumber(left)
	rn, rok := asNumber(right)
	if lok && rok {
		switch op {
		case workflow.OpGreater:
			return ln > rn
		case workflow.OpGreaterOrEqual:
			return ln >= rn
		case workflow.OpLess:
			return ln < rn
		case workflow.OpLessOrEqual:
			return ln <= rn
		}
		return false
	}

	ls, rs := Stringify(left), Stringify(right)
	switch op {
	case workflow.OpGreater:
		return ls > rs
	case workflow.OpGreaterOrEqual:
		return ls >= rs
	case workflow.OpLess:
		return ls < rs
	case workflow.OpLessOrEqual:
		return ls <= rs
	}
	return false
}

// deepEqual compares JSON-shaped values structurally. Numbers compare by
// value regardless of Go type, since decoded JSON yields float64 while
// YAML and literals yield int.
func deepEqual(a, b any) bool {
	an, aok := asNumericType(a)
	bn, bok := asNumericType(b)
	if aok || bok {
		return aok && bok && an == bn
	}

	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !deepEqual(v, other) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// asNumericType coerces numeric Go types to float64. Strings are not
// numbers here: equality is structural, so "42" never equals 42.
func asNumericType(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asNumber additionally accepts numeric strings. Ordering operators use
// it so that "10" > "9" compares numerically, not lexicographically.
func asNumber(v any) (float64, bool) {
	if f, ok := asNumericType(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
