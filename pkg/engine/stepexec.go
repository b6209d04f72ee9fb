package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

// StepExecutor runs a single step of an execution with at-least-once
// semantics. Every path goes through the step-result checkpoint: a
// completed row is reused verbatim, an open row is reclaimed only after
// its claim window expires, and terminal outcomes are written exactly
// once by conditional update.
type StepExecutor struct {
	store  Store
	tools  ToolInvoker
	code   CodeRunner
	timers *Timers
	clock  Clock
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewStepExecutor creates a step executor.
func NewStepExecutor(store Store, tools ToolInvoker, code CodeRunner, timers *Timers, clock Clock) *StepExecutor {
	return &StepExecutor{
		store:  store,
		tools:  tools,
		code:   code,
		timers: timers,
		clock:  clock,
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
}

// WithLogger sets the logger.
func (e *StepExecutor) WithLogger(logger *slog.Logger) *StepExecutor {
	e.logger = logger
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs one step and returns its output. stepID is the checkpoint
// identity; it equals the step name except for loop iterations, which
// append their index. Waits surface as WaitingForSignalError or
// WaitingForTimerError; they park the execution rather than fail it.
func (e *StepExecutor) Execute(ctx context.Context, exec *Execution, step workflow.Step, stepID string, input any) (any, error) {
	fresh, err := e.store.GetExecution(ctx, exec.ID)
	if err != nil {
		return nil, err
	}
	if fresh.Status == StatusCancelled {
		return nil, &ExecutionCancelledError{ExecutionID: exec.ID}
	}

	switch step.Action {
	case workflow.ActionSignal:
		return e.runSignal(ctx, exec, step, stepID)
	case workflow.ActionSleep:
		return e.runSleep(ctx, exec, step, stepID)
	case workflow.ActionTool, workflow.ActionCode:
		return e.runClaimed(ctx, exec, step, stepID, input)
	default:
		return nil, &errors.ValidationError{
			Field:   "step.action",
			Message: fmt.Sprintf("unknown action %q for step %q", step.Action, step.Name),
		}
	}
}

// runClaimed handles tool and code steps: claim the checkpoint, run the
// attempt loop, write the terminal row.
func (e *StepExecutor) runClaimed(ctx context.Context, exec *Execution, step workflow.Step, stepID string, input any) (any, error) {
	timeoutMs := step.EffectiveTimeoutMs()
	now := e.clock.Now()

	claimed, err := e.store.ClaimStep(ctx, exec.ID, stepID, timeoutMs, now)
	if err != nil {
		return nil, fmt.Errorf("claiming step %q: %w", stepID, err)
	}
	if claimed == nil {
		existing, err := e.store.GetStepResult(ctx, exec.ID, stepID)
		if err != nil {
			return nil, err
		}
		if existing.Completed() {
			e.logger.Debug("reusing completed step result",
				"execution_id", exec.ID,
				"step", stepID)
			return existing.Output, nil
		}
		stepsStuck.Inc()
		return nil, &StuckStepError{ExecutionID: exec.ID, StepName: stepID}
	}

	maxAttempts := step.EffectiveMaxAttempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := int64(0)
			if step.Config != nil && step.Config.BackoffMs > 0 {
				backoff = step.Config.BackoffMs << (attempt - 2)
			}
			if backoff > 0 {
				if err := e.sleep(ctx, time.Duration(backoff)*time.Millisecond); err != nil {
					return nil, err
				}
			}
		}

		started := time.Now()
		output, err := e.runAttempt(ctx, step, input, timeoutMs)
		if err == nil {
			stepDuration.WithLabelValues(string(step.Action), "success").Observe(time.Since(started).Seconds())
			updated, uerr := e.store.UpdateStep(ctx, exec.ID, stepID, StepUpdate{
				SetOutput:          true,
				Output:             output,
				SetCompletedAt:     true,
				CompletedAtEpochMs: e.clock.Now(),
			})
			if uerr != nil {
				return nil, fmt.Errorf("recording step %q result: %w", stepID, uerr)
			}
			return updated.Output, nil
		}
		if stderrors.Is(err, context.Canceled) {
			return nil, err
		}
		stepDuration.WithLabelValues(string(step.Action), "error").Observe(time.Since(started).Seconds())
		e.logger.Warn("step attempt failed",
			"execution_id", exec.ID,
			"step", stepID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err)
		lastErr = err
	}

	// The error is recorded but completed_at stays null: a later retry
	// delivery may reclaim the row once the claim window lapses.
	if _, uerr := e.store.UpdateStep(ctx, exec.ID, stepID, StepUpdate{
		SetError: true,
		Error:    map[string]any{"message": lastErr.Error()},
	}); uerr != nil {
		e.logger.Error("failed to record step error",
			"execution_id", exec.ID,
			"step", stepID,
			"error", uerr)
	}
	return nil, &StepFailedError{ExecutionID: exec.ID, StepName: stepID, Message: lastErr.Error()}
}

func (e *StepExecutor) runAttempt(ctx context.Context, step workflow.Step, input any, timeoutMs int64) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	var output any
	var err error
	switch step.Action {
	case workflow.ActionTool:
		output, err = e.tools.Invoke(attemptCtx, step.Tool.ConnectionID, step.Tool.Name, input)
	case workflow.ActionCode:
		output, err = e.code.Run(attemptCtx, step.Code.Source, input, step.Name)
	}
	if err != nil && stderrors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("step %q timed out after %dms", step.Name, timeoutMs)
	}
	return output, err
}

// runSignal handles signal steps. A matching durable event completes the
// step with the signal payload; otherwise the step parks the execution,
// with the wait origin pinned by a durable step_started event so the
// timeout survives process restarts.
func (e *StepExecutor) runSignal(ctx context.Context, exec *Execution, step workflow.Step, stepID string) (any, error) {
	if existing, err := e.store.GetStepResult(ctx, exec.ID, stepID); err == nil && existing.Completed() {
		return existing.Output, nil
	}

	signalName := step.Signal.Name
	now := e.clock.Now()

	event, err := e.store.NextEvent(ctx, exec.ID, EventSignal, signalName, now)
	if err != nil {
		return nil, fmt.Errorf("polling signal %q: %w", signalName, err)
	}
	if event != nil {
		consumed, err := e.store.ConsumeEvent(ctx, event.ID, now)
		if err != nil {
			return nil, err
		}
		if !consumed {
			// Lost the consume race; the winner may have been a duplicate
			// delivery of this same execution. Poll once more before
			// parking.
			event, err = e.store.NextEvent(ctx, exec.ID, EventSignal, signalName, now)
			if err != nil {
				return nil, err
			}
			if event != nil {
				if consumed, err = e.store.ConsumeEvent(ctx, event.ID, now); err != nil {
					return nil, err
				}
			}
		}
		if event != nil && consumed {
			signalsConsumed.Inc()
			e.logger.Info("signal consumed",
				"execution_id", exec.ID,
				"step", stepID,
				"signal", signalName)
			return e.completeStep(ctx, exec.ID, stepID, step.EffectiveTimeoutMs(), event.Payload)
		}
	}

	waitStart, err := e.waitOrigin(ctx, exec.ID, stepID, now)
	if err != nil {
		return nil, err
	}
	if step.Signal.TimeoutMs > 0 && now-waitStart > step.Signal.TimeoutMs {
		msg := fmt.Sprintf("timed out waiting for signal %q after %dms", signalName, step.Signal.TimeoutMs)
		if _, err := e.store.ClaimStep(ctx, exec.ID, stepID, step.EffectiveTimeoutMs(), now); err != nil {
			return nil, err
		}
		if _, err := e.store.UpdateStep(ctx, exec.ID, stepID, StepUpdate{
			SetError: true,
			Error:    map[string]any{"message": msg},
		}); err != nil {
			return nil, err
		}
		return nil, &StepFailedError{ExecutionID: exec.ID, StepName: stepID, Message: msg}
	}

	return nil, &WaitingForSignalError{
		ExecutionID:   exec.ID,
		StepName:      stepID,
		Signal:        signalName,
		TimeoutMs:     step.Signal.TimeoutMs,
		WaitStartedAt: waitStart,
	}
}

// waitOrigin returns the durable start of the wait, appending the
// step_started event on first observation.
func (e *StepExecutor) waitOrigin(ctx context.Context, executionID, stepID string, nowMs int64) (int64, error) {
	event, err := e.store.PendingEvent(ctx, executionID, EventStepStarted, stepID)
	if err != nil {
		return 0, err
	}
	if event != nil {
		return event.CreatedAt, nil
	}
	if err := e.store.AppendEvent(ctx, NewEvent(executionID, EventStepStarted, stepID, nil, nowMs)); err != nil {
		return 0, err
	}
	return nowMs, nil
}

// runSleep handles sleep steps via the durable timer event. The wake
// time is fixed on first observation and survives reruns.
func (e *StepExecutor) runSleep(ctx context.Context, exec *Execution, step workflow.Step, stepID string) (any, error) {
	if existing, err := e.store.GetStepResult(ctx, exec.ID, stepID); err == nil && existing.Completed() {
		return existing.Output, nil
	}

	now := e.clock.Now()
	event, err := e.store.PendingEvent(ctx, exec.ID, EventTimer, stepID)
	if err != nil {
		return nil, fmt.Errorf("polling timer for step %q: %w", stepID, err)
	}
	if event == nil {
		wakeAt := now + step.Sleep.DurationMs
		if err := e.timers.Schedule(ctx, exec.ID, stepID, wakeAt); err != nil {
			return nil, err
		}
		return nil, &WaitingForTimerError{ExecutionID: exec.ID, StepName: stepID, WakeAtEpochMs: wakeAt}
	}
	if event.VisibleAt > now {
		return nil, &WaitingForTimerError{ExecutionID: exec.ID, StepName: stepID, WakeAtEpochMs: event.VisibleAt}
	}

	// Due. Consuming may lose to a concurrent worker; the checkpoint row
	// still converges because completeStep reuses a completed row.
	if _, err := e.store.ConsumeEvent(ctx, event.ID, now); err != nil {
		return nil, err
	}
	return e.completeStep(ctx, exec.ID, stepID, step.EffectiveTimeoutMs(),
		map[string]any{"wake_at_epoch_ms": event.VisibleAt})
}

// completeStep claims the checkpoint row and writes the terminal output.
// A concurrently completed row wins and is returned as-is.
func (e *StepExecutor) completeStep(ctx context.Context, executionID, stepID string, timeoutMs int64, output any) (any, error) {
	now := e.clock.Now()
	claimed, err := e.store.ClaimStep(ctx, executionID, stepID, timeoutMs, now)
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		existing, err := e.store.GetStepResult(ctx, executionID, stepID)
		if err != nil {
			return nil, err
		}
		if existing.Completed() {
			return existing.Output, nil
		}
		return nil, &StuckStepError{ExecutionID: executionID, StepName: stepID}
	}
	updated, err := e.store.UpdateStep(ctx, executionID, stepID, StepUpdate{
		SetOutput:          true,
		Output:             output,
		SetCompletedAt:     true,
		CompletedAtEpochMs: now,
	})
	if err != nil {
		return nil, err
	}
	return updated.Output, nil
}
