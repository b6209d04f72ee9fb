package engine

import (
	"context"
	"time"
)

// ToolInvoker resolves and calls remote procedures for tool steps. The
// host owns connections, credentials and transport; the engine only
// passes the resolved input through and enforces the step timeout via
// the context deadline.
type ToolInvoker interface {
	Invoke(ctx context.Context, connectionID, toolName string, args any) (any, error)
}

// CodeRunner executes user code snippets for code steps. The runner is
// assumed hermetic and deterministic per input; sandboxing is the host's
// concern.
type CodeRunner interface {
	// Run executes the snippet with the resolved input and returns its
	// value. The context deadline bounds execution.
	Run(ctx context.Context, source string, args any, stepName string) (any, error)

	// Validate checks a snippet without running it.
	Validate(ctx context.Context, source, stepName string) (*CodeValidation, error)
}

// CodeValidation is the result of validating a code snippet.
type CodeValidation struct {
	OK       bool           `json:"ok"`
	Problems []string       `json:"problems,omitempty"`
	Schemas  map[string]any `json:"schemas,omitempty"`
}

// Clock supplies the current time in epoch milliseconds. All engine
// timestamps flow through it so tests can run on a manual clock.
type Clock interface {
	Now() int64
}

// SystemClock is the wall-clock implementation.
type SystemClock struct{}

// Now returns the current time in epoch milliseconds.
func (SystemClock) Now() int64 { return time.Now().UnixMilli() }

// Delivery type values the engine consumes and publishes.
const (
	// DeliveryExecutionCreated announces a new enqueued execution.
	DeliveryExecutionCreated = "workflow.execution.created"
	// DeliveryExecutionRetry asks for an execution to be re-run; used to
	// wake signal waits and to reschedule after a stuck claim.
	DeliveryExecutionRetry = "workflow.execution.retry"
	// DeliverySignalSent carries an external signal toward an execution.
	DeliverySignalSent = "workflow.signal.sent"
	// DeliveryTimerScheduled is a future-dated wake-up.
	DeliveryTimerScheduled = "timer.scheduled"
)

// Delivery is one message on the bus. Subject is the execution ID.
// DeliverAt, when non-zero, asks the bus to hold the delivery until that
// epoch-millisecond time.
type Delivery struct {
	Type      string         `json:"type"`
	Subject   string         `json:"subject"`
	Data      map[string]any `json:"data,omitempty"`
	DeliverAt int64          `json:"deliver_at,omitempty"`
}

// Bus publishes deliveries. Delivery back into the engine is the driver's
// job (see Dispatcher); the bus guarantees at-least-once, and the engine
// tolerates duplicates through its conditional writes.
type Bus interface {
	Publish(ctx context.Context, delivery Delivery) error
}
