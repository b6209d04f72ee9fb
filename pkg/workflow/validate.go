package workflow

import (
	"fmt"

	"github.com/tombee/stepflow/pkg/errors"
)

// Validate checks a workflow definition for static errors: missing or
// duplicate step names, missing action bodies, unknown operators and
// malformed loop clauses. Dependency and cycle analysis is the DAG
// analyzer's job, not Validate's.
func Validate(w *Workflow) error {
	if w == nil {
		return &errors.ValidationError{
			Field:   "workflow",
			Message: "workflow cannot be nil",
		}
	}
	if len(w.Steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "workflow has no steps",
			Suggestion: "define at least one step",
		}
	}

	seen := make(map[string]bool, len(w.Steps))
	for i := range w.Steps {
		step := &w.Steps[i]
		if step.Name == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].name", i),
				Message: "step name cannot be empty",
			}
		}
		if seen[step.Name] {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].name", i),
				Message:    fmt.Sprintf("duplicate step name %q", step.Name),
				Suggestion: "step names must be unique within a workflow",
			}
		}
		seen[step.Name] = true

		if err := validateAction(step, i); err != nil {
			return err
		}
		if step.If != nil {
			if err := validateCondition(step.If, i); err != nil {
				return err
			}
		}
		if loop := step.LoopFor(); loop != nil && loop.Items == "" {
			return &errors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].config.loop.for.items", i),
				Message:    "for-each loop requires an items ref",
				Suggestion: "set items to an @ref that resolves to an array",
			}
		}
	}

	return nil
}

func validateAction(step *Step, idx int) error {
	field := fmt.Sprintf("steps[%d].action", idx)

	switch step.Action {
	case ActionTool:
		if step.Tool == nil || step.Tool.ConnectionID == "" || step.Tool.Name == "" {
			return &errors.ValidationError{
				Field:      field,
				Message:    fmt.Sprintf("tool step %q requires connection_id and name", step.Name),
				Suggestion: "set tool.connection_id and tool.name",
			}
		}
	case ActionCode:
		if step.Code == nil || step.Code.Source == "" {
			return &errors.ValidationError{
				Field:      field,
				Message:    fmt.Sprintf("code step %q requires source", step.Name),
				Suggestion: "set code.source to the snippet to run",
			}
		}
	case ActionSignal:
		if step.Signal == nil || step.Signal.Name == "" {
			return &errors.ValidationError{
				Field:      field,
				Message:    fmt.Sprintf("signal step %q requires a signal name", step.Name),
				Suggestion: "set signal.name to the event name to wait for",
			}
		}
	case ActionSleep:
		if step.Sleep == nil || step.Sleep.DurationMs <= 0 {
			return &errors.ValidationError{
				Field:      field,
				Message:    fmt.Sprintf("sleep step %q requires a positive duration", step.Name),
				Suggestion: "set sleep.duration_ms",
			}
		}
	default:
		return &errors.ValidationError{
			Field:      field,
			Message:    fmt.Sprintf("unsupported action type: %s", step.Action),
			Suggestion: "use one of: tool, code, signal, sleep",
		}
	}

	return nil
}

func validateCondition(cond *Condition, idx int) error {
	if cond.Ref == "" {
		return &errors.ValidationError{
			Field:      fmt.Sprintf("steps[%d].if.ref", idx),
			Message:    "condition requires a ref",
			Suggestion: "set ref to an @ref expression, e.g. \"@decide.ok\"",
		}
	}
	switch cond.EffectiveOperator() {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		return nil
	default:
		return &errors.ValidationError{
			Field:      fmt.Sprintf("steps[%d].if.operator", idx),
			Message:    fmt.Sprintf("unsupported operator %q", cond.Operator),
			Suggestion: "use one of: =, !=, >, >=, <, <=",
		}
	}
}
