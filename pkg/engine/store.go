package engine

import (
	"context"
)

// ExecutionFilter selects executions for listing.
type ExecutionFilter struct {
	WorkflowID string          // filter by workflow, empty = all
	Status     ExecutionStatus // filter by status, empty = all
	Limit      int             // page size, 0 = no limit
	Offset     int             // rows to skip
}

// ExecutionUpdate is a partial update of an execution row. Zero-valued
// fields are left untouched; Set flags distinguish "set to null-ish"
// from "unchanged".
type ExecutionUpdate struct {
	Status ExecutionStatus // "" = unchanged

	SetOutput bool
	Output    any

	SetError bool
	Error    any

	SetCompletedAt     bool
	CompletedAtEpochMs int64
}

// StepUpdate is a partial update of a step-result row.
type StepUpdate struct {
	SetOutput bool
	Output    any

	SetError bool
	Error    any

	SetCompletedAt     bool
	CompletedAtEpochMs int64
}

// Store is the persistence contract the engine runs on. Implementations
// must make ClaimExecution, ClaimStep, UpdateStep and ConsumeEvent single
// atomic writes whose predicates encode the documented invariants; the
// engine's safety under concurrent workers rests entirely on them.
//
// Time never comes from the store: callers pass the engine clock's nowMs
// so manual clocks work in tests and predicates stay deterministic.
type Store interface {
	// CreateExecution inserts a new execution row.
	CreateExecution(ctx context.Context, exec *Execution) error

	// GetExecution returns the execution or a NotFoundError.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	// ListExecutions returns a page of executions plus the total count of
	// rows matching the filter regardless of paging.
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, int, error)

	// ClaimExecution atomically moves the execution from enqueued to
	// running and returns the claimed row. It returns (nil, nil) when the
	// claim is lost: another worker holds the execution or its status is
	// terminal. A missing row is a NotFoundError.
	ClaimExecution(ctx context.Context, id string, nowMs int64) (*Execution, error)

	// UpdateExecution applies a partial update and returns the new row.
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate, nowMs int64) (*Execution, error)

	// CancelExecution flips status to cancelled, conditional on the
	// current status being enqueued or running. Returns false when the
	// condition did not hold.
	CancelExecution(ctx context.Context, id string, nowMs int64) (bool, error)

	// ResumeExecution moves a cancelled execution back to enqueued and
	// clears its completion time. Returns false when the execution is not
	// cancelled.
	ResumeExecution(ctx context.Context, id string, nowMs int64) (bool, error)

	// GetStepResults returns all step-result rows of the execution.
	GetStepResults(ctx context.Context, executionID string) ([]*StepResult, error)

	// GetStepResult returns one step-result row or a NotFoundError.
	GetStepResult(ctx context.Context, executionID, stepID string) (*StepResult, error)

	// ClaimStep is the idempotent stale-claim upsert: it inserts the
	// checkpoint row, or refreshes started_at on an existing row whose
	// completion time is null and whose previous claim is older than
	// timeoutMs. It returns (nil, nil) when no progress is possible —
	// the step is already complete (reuse its output) or a live worker
	// holds it within the timeout window (StuckStepError territory).
	ClaimStep(ctx context.Context, executionID, stepID string, timeoutMs, nowMs int64) (*StepResult, error)

	// UpdateStep applies a partial update, refusing to overwrite a row
	// whose completion time is already set. When the predicate rejects
	// the write it returns the existing completed row instead.
	UpdateStep(ctx context.Context, executionID, stepID string, update StepUpdate) (*StepResult, error)

	// AppendEvent appends to the execution's event log. Appending a
	// second output event with the same name violates the unique index
	// and returns a ValidationError.
	AppendEvent(ctx context.Context, event *Event) error

	// NextEvent returns the oldest unconsumed event matching (type, name)
	// whose visible_at has passed, or (nil, nil).
	NextEvent(ctx context.Context, executionID string, typ EventType, name string, nowMs int64) (*Event, error)

	// PendingEvent is NextEvent without the visibility check; it lets the
	// timer path distinguish "not yet scheduled" from "not yet due".
	PendingEvent(ctx context.Context, executionID string, typ EventType, name string) (*Event, error)

	// ConsumeEvent marks the event consumed, conditional on it not being
	// consumed already. Returns false when another worker won.
	ConsumeEvent(ctx context.Context, eventID string, nowMs int64) (bool, error)
}
