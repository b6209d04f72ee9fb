package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Signals delivers external signals into executions. Sending appends a
// durable signal event and publishes a retry delivery so a parked
// execution is re-driven promptly.
type Signals struct {
	store  Store
	bus    Bus
	clock  Clock
	logger *slog.Logger
}

// NewSignals creates a signal sender.
func NewSignals(store Store, bus Bus, clock Clock) *Signals {
	return &Signals{
		store:  store,
		bus:    bus,
		clock:  clock,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *Signals) WithLogger(logger *slog.Logger) *Signals {
	s.logger = logger
	return s
}

// Send records a signal for the execution. The signal is durable
// regardless of whether any step is currently waiting for it; a later
// waiting step consumes the oldest matching event.
func (s *Signals) Send(ctx context.Context, executionID, name string, payload any) error {
	if name == "" {
		return fmt.Errorf("signal name cannot be empty")
	}
	exec, err := s.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return fmt.Errorf("cannot signal execution %s in terminal status %s", executionID, exec.Status)
	}

	now := s.clock.Now()
	if err := s.store.AppendEvent(ctx, NewEvent(executionID, EventSignal, name, payload, now)); err != nil {
		return fmt.Errorf("appending signal event: %w", err)
	}
	s.logger.Info("signal sent",
		"execution_id", executionID,
		"signal", name)

	if err := s.bus.Publish(ctx, Delivery{
		Type:    DeliveryExecutionRetry,
		Subject: executionID,
	}); err != nil {
		// The event row is durable; the next delivery for any reason will
		// pick it up.
		s.logger.Warn("failed to publish retry after signal",
			"execution_id", executionID,
			"error", err)
	}
	return nil
}

// Timers schedules durable wake-ups for sleep steps. A timer is an event
// row whose visible_at is in the future plus a future-dated bus delivery
// that re-drives the execution at wake time.
type Timers struct {
	store  Store
	bus    Bus
	clock  Clock
	logger *slog.Logger
}

// NewTimers creates a timer scheduler.
func NewTimers(store Store, bus Bus, clock Clock) *Timers {
	return &Timers{
		store:  store,
		bus:    bus,
		clock:  clock,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (t *Timers) WithLogger(logger *slog.Logger) *Timers {
	t.logger = logger
	return t
}

// Schedule records a timer for the step waking at wakeAtEpochMs. The
// event row is the source of truth; the delivery is best-effort and any
// later delivery also wakes the sleeper.
func (t *Timers) Schedule(ctx context.Context, executionID, stepName string, wakeAtEpochMs int64) error {
	now := t.clock.Now()
	event := NewEvent(executionID, EventTimer, stepName, nil, now)
	event.VisibleAt = wakeAtEpochMs
	if err := t.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("appending timer event: %w", err)
	}
	timersScheduled.Inc()
	t.logger.Info("timer scheduled",
		"execution_id", executionID,
		"step", stepName,
		"wake_at_epoch_ms", wakeAtEpochMs)

	if err := t.bus.Publish(ctx, Delivery{
		Type:    DeliveryTimerScheduled,
		Subject: executionID,
		Data: map[string]any{
			"executionId":   executionID,
			"stepName":      stepName,
			"wakeAtEpochMs": wakeAtEpochMs,
		},
		DeliverAt: wakeAtEpochMs,
	}); err != nil {
		t.logger.Warn("failed to publish timer delivery",
			"execution_id", executionID,
			"step", stepName,
			"error", err)
	}
	return nil
}
