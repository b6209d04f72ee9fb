package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher routes bus deliveries into the executor. It is the single
// entry point a driver (daemon, queue consumer, test) needs.
type Dispatcher struct {
	store    Store
	executor *Executor
	clock    Clock
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store Store, executor *Executor, clock Clock) *Dispatcher {
	return &Dispatcher{
		store:    store,
		executor: executor,
		clock:    clock,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	d.logger = logger
	return d
}

// Dispatch handles one delivery. Deliveries are at-least-once; every
// branch tolerates duplicates through the store's conditional writes.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery Delivery) (*Outcome, error) {
	switch delivery.Type {
	case DeliveryExecutionCreated, DeliveryExecutionRetry, DeliveryTimerScheduled:
		return d.executor.Execute(ctx, delivery.Subject)

	case DeliverySignalSent:
		name, _ := delivery.Data["signalName"].(string)
		if name == "" {
			return nil, fmt.Errorf("signal delivery for execution %s has no signalName", delivery.Subject)
		}
		event := NewEvent(delivery.Subject, EventSignal, name, delivery.Data["payload"], d.clock.Now())
		if err := d.store.AppendEvent(ctx, event); err != nil {
			return nil, fmt.Errorf("appending signal event: %w", err)
		}
		d.logger.Info("signal delivery recorded",
			"execution_id", delivery.Subject,
			"signal", name)
		return d.executor.Execute(ctx, delivery.Subject)

	default:
		return nil, fmt.Errorf("unknown delivery type %q", delivery.Type)
	}
}
