package workflow

// ActionType identifies the kind of work a step performs.
type ActionType string

const (
	// ActionTool invokes a remote tool through the host-provided invoker.
	ActionTool ActionType = "tool"
	// ActionCode runs a user code snippet through the host-provided runner.
	ActionCode ActionType = "code"
	// ActionSignal waits for a named external event.
	ActionSignal ActionType = "signal"
	// ActionSleep suspends the execution durably until a wake time.
	ActionSleep ActionType = "sleep"
)

// Default step execution limits applied when Config leaves them unset.
const (
	// DefaultTimeoutMs bounds a single attempt of a step body.
	DefaultTimeoutMs int64 = 30_000
	// DefaultMaxAttempts is the number of attempts when no retry is configured.
	DefaultMaxAttempts = 1
)

// Workflow is a definition of a DAG of steps. It is read-only to the
// engine; executions carry a denormalized snapshot of Steps.
type Workflow struct {
	// ID uniquely identifies the workflow definition.
	ID string `json:"id" yaml:"id"`

	// Steps is the ordered list of step definitions. Order is the
	// tie-breaker for scheduling within a dependency level.
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step is a single node of the workflow DAG.
type Step struct {
	// Name uniquely identifies the step within its workflow. Other steps
	// reference its output as "@<name>" in their inputs.
	Name string `json:"name" yaml:"name"`

	// Action selects which of the kind-specific bodies below applies.
	Action ActionType `json:"action" yaml:"action"`

	// Tool is set when Action == ActionTool.
	Tool *ToolAction `json:"tool,omitempty" yaml:"tool,omitempty"`

	// Code is set when Action == ActionCode.
	Code *CodeAction `json:"code,omitempty" yaml:"code,omitempty"`

	// Signal is set when Action == ActionSignal.
	Signal *SignalAction `json:"signal,omitempty" yaml:"signal,omitempty"`

	// Sleep is set when Action == ActionSleep.
	Sleep *SleepAction `json:"sleep,omitempty" yaml:"sleep,omitempty"`

	// Input is arbitrary JSON passed to the action body. String values may
	// embed @refs which are resolved against the execution context.
	Input any `json:"input,omitempty" yaml:"input,omitempty"`

	// If guards the step: when the condition evaluates to false the step
	// and every step reachable only through it are skipped.
	If *Condition `json:"if,omitempty" yaml:"if,omitempty"`

	// Config holds optional retry, timeout and loop settings.
	Config *StepConfig `json:"config,omitempty" yaml:"config,omitempty"`
}

// ToolAction identifies a remote procedure on a connection.
type ToolAction struct {
	ConnectionID string `json:"connectionId" yaml:"connection_id"`
	Name         string `json:"toolName" yaml:"name"`
}

// CodeAction carries a user code snippet.
type CodeAction struct {
	Source string `json:"source" yaml:"source"`
}

// SignalAction waits for a named external event.
type SignalAction struct {
	// Name is the signal name matched against incoming events.
	Name string `json:"signalName" yaml:"name"`

	// TimeoutMs bounds the total wait. Zero means wait forever.
	// The timeout is measured from the first time the step observed no
	// pending event, and checked on each resumption.
	TimeoutMs int64 `json:"timeoutMs,omitempty" yaml:"timeout_ms,omitempty"`
}

// SleepAction suspends the execution for a duration. The sleep survives
// worker restarts: it is backed by a future-dated timer event, not an
// in-memory wait.
type SleepAction struct {
	DurationMs int64 `json:"durationMs" yaml:"duration_ms"`
}

// StepConfig holds per-step execution settings.
type StepConfig struct {
	// TimeoutMs bounds one attempt of the step body. Defaults to
	// DefaultTimeoutMs when zero.
	TimeoutMs int64 `json:"timeoutMs,omitempty" yaml:"timeout_ms,omitempty"`

	// MaxAttempts is the total number of attempts including the first.
	// Defaults to DefaultMaxAttempts when zero.
	MaxAttempts int `json:"maxAttempts,omitempty" yaml:"max_attempts,omitempty"`

	// BackoffMs is the base delay before the second attempt; subsequent
	// delays double (BackoffMs * 2^(attempt-2)).
	BackoffMs int64 `json:"backoffMs,omitempty" yaml:"backoff_ms,omitempty"`

	// Loop configures fan-out over a resolved array.
	Loop *LoopConfig `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// LoopConfig wraps the supported loop forms. Only for-each is defined.
type LoopConfig struct {
	For *ForClause `json:"for,omitempty" yaml:"for,omitempty"`
}

// ForClause iterates the step body over the elements of an array.
type ForClause struct {
	// Items is an @ref that must resolve to an array.
	Items string `json:"items" yaml:"items"`

	// Limit caps the number of iterations. Zero means the full array.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Operator is a comparison operator usable in a Condition.
type Operator string

// Supported condition operators. Equality operators use deep structural
// comparison; ordering operators coerce to numbers when both sides parse
// as numbers and compare string forms lexicographically otherwise.
const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
)

// Condition is a predicate over the execution's ref context. Ref is
// resolved as the left side; Value may itself be an @ref string, in which
// case it is resolved as the right side.
type Condition struct {
	Ref      string   `json:"ref" yaml:"ref"`
	Operator Operator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    any      `json:"value" yaml:"value"`
}

// EffectiveOperator returns the operator, defaulting to equality.
func (c *Condition) EffectiveOperator() Operator {
	if c.Operator == "" {
		return OpEqual
	}
	return c.Operator
}

// StepByName returns the step with the given name, or nil.
func (w *Workflow) StepByName(name string) *Step {
	for i := range w.Steps {
		if w.Steps[i].Name == name {
			return &w.Steps[i]
		}
	}
	return nil
}

// EffectiveTimeoutMs returns the step's attempt timeout with the default
// applied.
func (s *Step) EffectiveTimeoutMs() int64 {
	if s.Config != nil && s.Config.TimeoutMs > 0 {
		return s.Config.TimeoutMs
	}
	return DefaultTimeoutMs
}

// EffectiveMaxAttempts returns the step's attempt budget with the default
// applied.
func (s *Step) EffectiveMaxAttempts() int {
	if s.Config != nil && s.Config.MaxAttempts > 0 {
		return s.Config.MaxAttempts
	}
	return DefaultMaxAttempts
}

// LoopFor returns the step's for-each clause, or nil.
func (s *Step) LoopFor() *ForClause {
	if s.Config == nil || s.Config.Loop == nil {
		return nil
	}
	return s.Config.Loop.For
}
