package engine

import (
	"fmt"
)

// ExecutionCancelledError is raised when a worker observes a cancelled
// status at a gate. The execution is marked cancelled and no further step
// starts; a step body already running completes and its result is written
// normally.
type ExecutionCancelledError struct {
	ExecutionID string
}

// Error implements the error interface.
func (e *ExecutionCancelledError) Error() string {
	return fmt.Sprintf("execution %s was cancelled", e.ExecutionID)
}

// ErrorType identifies the error category for classification.
func (e *ExecutionCancelledError) ErrorType() string { return "cancelled" }

// IsRetryable reports whether retrying could succeed. Cancellation is an
// operator decision, not a fault.
func (e *ExecutionCancelledError) IsRetryable() bool { return false }

// WaitingForSignalError pauses an execution until a signal arrives. It is
// a cooperative yield, not a failure: the execution row stays running and
// the next delivery resumes it.
type WaitingForSignalError struct {
	ExecutionID   string
	StepName      string
	Signal        string
	TimeoutMs     int64
	WaitStartedAt int64
}

// Error implements the error interface.
func (e *WaitingForSignalError) Error() string {
	return fmt.Sprintf("step %q is waiting for signal %q", e.StepName, e.Signal)
}

// ErrorType identifies the error category for classification.
func (e *WaitingForSignalError) ErrorType() string { return "waiting_for_signal" }

// IsRetryable reports whether retrying could succeed. Waits resolve by
// delivery, not by retry.
func (e *WaitingForSignalError) IsRetryable() bool { return false }

// WaitingForTimerError pauses an execution until a scheduled wake time.
// Like a signal wait, it leaves the execution running; the future-dated
// timer delivery resumes it.
type WaitingForTimerError struct {
	ExecutionID   string
	StepName      string
	WakeAtEpochMs int64
}

// Error implements the error interface.
func (e *WaitingForTimerError) Error() string {
	return fmt.Sprintf("step %q is sleeping until %d", e.StepName, e.WakeAtEpochMs)
}

// ErrorType identifies the error category for classification.
func (e *WaitingForTimerError) ErrorType() string { return "waiting_for_timer" }

// IsRetryable reports whether retrying could succeed.
func (e *WaitingForTimerError) IsRetryable() bool { return false }

// StuckStepError is raised when a step claim loses to a live claim inside
// the timeout window. The attempt aborts without a terminal write and a
// short retry delivery is scheduled; a future attempt reclaims the row
// once the holder's window expires.
type StuckStepError struct {
	ExecutionID string
	StepName    string
}

// Error implements the error interface.
func (e *StuckStepError) Error() string {
	return fmt.Sprintf("step %q of execution %s is claimed by a live worker", e.StepName, e.ExecutionID)
}

// ErrorType identifies the error category for classification.
func (e *StuckStepError) ErrorType() string { return "stuck_step" }

// IsRetryable reports whether retrying could succeed. The claim window
// expires, so yes.
func (e *StuckStepError) IsRetryable() bool { return true }

// StepFailedError is raised when a step exhausts its attempts. It is
// terminal for the execution.
type StepFailedError struct {
	ExecutionID string
	StepName    string
	Message     string
}

// Error implements the error interface.
func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %q failed: %s", e.StepName, e.Message)
}

// ErrorType identifies the error category for classification.
func (e *StepFailedError) ErrorType() string { return "step_failed" }

// IsRetryable reports whether retrying could succeed. Attempt budget is
// already spent.
func (e *StepFailedError) IsRetryable() bool { return false }
