package engine

import (
	"github.com/google/uuid"

	"github.com/tombee/stepflow/pkg/workflow"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	// StatusEnqueued means the execution is waiting to be claimed.
	StatusEnqueued ExecutionStatus = "enqueued"
	// StatusRunning means a worker holds the execution. An execution also
	// stays running while parked on a signal or timer.
	StatusRunning ExecutionStatus = "running"
	// StatusSuccess is terminal.
	StatusSuccess ExecutionStatus = "success"
	// StatusError is terminal.
	StatusError ExecutionStatus = "error"
	// StatusCancelled is terminal except for an explicit resume, which
	// moves the execution back to enqueued.
	StatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further progress.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

// Execution is one run of a workflow. It carries a denormalized snapshot
// of the workflow's steps so the definition can change without affecting
// in-flight runs.
type Execution struct {
	ID                 string          `json:"id"`
	WorkflowID         string          `json:"workflow_id"`
	Steps              []workflow.Step `json:"steps"`
	Input              any             `json:"input,omitempty"`
	Status             ExecutionStatus `json:"status"`
	StartAtEpochMs     int64           `json:"start_at_epoch_ms"`
	DeadlineAtEpochMs  *int64          `json:"deadline_at_epoch_ms,omitempty"`
	TimeoutMs          *int64          `json:"timeout_ms,omitempty"`
	CompletedAtEpochMs *int64          `json:"completed_at_epoch_ms,omitempty"`
	Output             any             `json:"output,omitempty"`
	Error              any             `json:"error,omitempty"`
	CreatedAt          int64           `json:"created_at"`
	UpdatedAt          int64           `json:"updated_at"`
}

// NewExecution creates an enqueued execution with a fresh UUID.
func NewExecution(workflowID string, steps []workflow.Step, input any, nowMs int64) *Execution {
	return &Execution{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		Steps:          steps,
		Input:          input,
		Status:         StatusEnqueued,
		StartAtEpochMs: nowMs,
		CreatedAt:      nowMs,
		UpdatedAt:      nowMs,
	}
}

// StepResult is the durable checkpoint for one step of one execution.
// Its presence means some worker began the step; a non-nil completion
// time means the recorded output (or skip marker) is final and must be
// reused verbatim on reruns.
type StepResult struct {
	ExecutionID        string `json:"execution_id"`
	StepID             string `json:"step_id"`
	StartedAtEpochMs   int64  `json:"started_at_epoch_ms"`
	CompletedAtEpochMs *int64 `json:"completed_at_epoch_ms,omitempty"`
	Output             any    `json:"output,omitempty"`
	Error              any    `json:"error,omitempty"`
}

// Completed reports whether the result is final.
func (r *StepResult) Completed() bool {
	return r != nil && r.CompletedAtEpochMs != nil
}

// SkippedOutput is the terminal output written for steps skipped by a
// false condition or a skipped branch root.
type SkippedOutput struct {
	Skipped bool   `json:"_skipped"`
	Reason  string `json:"reason"`
}

// AsValue returns the marker as a plain JSON object, the shape step
// outputs travel in.
func (s SkippedOutput) AsValue() map[string]any {
	return map[string]any{"_skipped": true, "reason": s.Reason}
}

// IsSkippedOutput reports whether a recorded output is a skip marker.
func IsSkippedOutput(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	skipped, ok := m["_skipped"].(bool)
	return ok && skipped
}

// skipReason extracts the reason from a skip marker, or "" when absent.
func skipReason(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	reason, _ := m["reason"].(string)
	return reason
}

// EventType classifies workflow events.
type EventType string

const (
	// EventSignal is an external signal awaited by a signal step.
	EventSignal EventType = "signal"
	// EventTimer is a future-dated wake-up for a sleep step.
	EventTimer EventType = "timer"
	// EventMessage is a free-form informational event.
	EventMessage EventType = "message"
	// EventOutput is a named output; unique per (execution, name).
	EventOutput EventType = "output"
	// EventStepStarted marks the first observation of a step, including a
	// signal step's wait origin.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted marks a step's terminal outcome.
	EventStepCompleted EventType = "step_completed"
	// EventWorkflowStarted marks a successful execution claim.
	EventWorkflowStarted EventType = "workflow_started"
	// EventWorkflowCompleted marks the execution's terminal write.
	EventWorkflowCompleted EventType = "workflow_completed"
)

// Event is a durable row in the execution's event log. VisibleAt governs
// delivery eligibility (an event is deliverable once visible_at <= now);
// ConsumedAt is write-once and enforced by conditional update.
type Event struct {
	ID                string    `json:"id"`
	ExecutionID       string    `json:"execution_id"`
	Type              EventType `json:"type"`
	Name              string    `json:"name,omitempty"`
	Payload           any       `json:"payload,omitempty"`
	CreatedAt         int64     `json:"created_at"`
	VisibleAt         int64     `json:"visible_at"`
	ConsumedAt        *int64    `json:"consumed_at,omitempty"`
	SourceExecutionID string    `json:"source_execution_id,omitempty"`
}

// NewEvent creates an event visible immediately.
func NewEvent(executionID string, typ EventType, name string, payload any, nowMs int64) *Event {
	return &Event{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		Type:        typ,
		Name:        name,
		Payload:     payload,
		CreatedAt:   nowMs,
		VisibleAt:   nowMs,
	}
}
