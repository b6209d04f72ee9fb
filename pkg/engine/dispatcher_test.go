package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/workflow"
)

func newDispatcherEnv(t *testing.T) (*Dispatcher, *executorEnv) {
	t.Helper()
	env := newExecutorEnv(t)
	return NewDispatcher(env.store, env.executor, env.clock), env
}

func TestDispatchCreatedDrivesExecution(t *testing.T) {
	ctx := context.Background()
	dispatcher, env := newDispatcherEnv(t)
	exec := env.createExecution(t, []workflow.Step{codeTestStep("only")}, nil)

	outcome, err := dispatcher.Dispatch(ctx, Delivery{
		Type:    DeliveryExecutionCreated,
		Subject: exec.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome.Status)
}

func TestDispatchSignalAppendsEventThenDrives(t *testing.T) {
	ctx := context.Background()
	dispatcher, env := newDispatcherEnv(t)
	steps := []workflow.Step{
		{
			Name:   "approval",
			Action: workflow.ActionSignal,
			Signal: &workflow.SignalAction{Name: "approve"},
		},
	}
	exec := env.createExecution(t, steps, nil)

	// Park the execution on the signal first.
	outcome, err := dispatcher.Dispatch(ctx, Delivery{
		Type:    DeliveryExecutionCreated,
		Subject: exec.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeWaitingForSignal, outcome.Status)

	payload := map[string]any{"approved": true}
	outcome, err = dispatcher.Dispatch(ctx, Delivery{
		Type:    DeliverySignalSent,
		Subject: exec.ID,
		Data:    map[string]any{"signalName": "approve", "payload": payload},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome.Status)

	result, err := env.store.GetStepResult(ctx, exec.ID, "approval")
	require.NoError(t, err)
	assert.Equal(t, payload, result.Output)
}

func TestDispatchSignalWithoutName(t *testing.T) {
	ctx := context.Background()
	dispatcher, env := newDispatcherEnv(t)
	exec := env.createExecution(t, []workflow.Step{codeTestStep("only")}, nil)

	_, err := dispatcher.Dispatch(ctx, Delivery{
		Type:    DeliverySignalSent,
		Subject: exec.ID,
		Data:    map[string]any{"payload": "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signalName")
}

func TestDispatchUnknownType(t *testing.T) {
	ctx := context.Background()
	dispatcher, _ := newDispatcherEnv(t)

	_, err := dispatcher.Dispatch(ctx, Delivery{Type: "nonsense", Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown delivery type")
}

func TestDispatchTimerWakesSleeper(t *testing.T) {
	ctx := context.Background()
	dispatcher, env := newDispatcherEnv(t)
	steps := []workflow.Step{
		{
			Name:   "cooldown",
			Action: workflow.ActionSleep,
			Sleep:  &workflow.SleepAction{DurationMs: 10_000},
		},
	}
	exec := env.createExecution(t, steps, nil)

	outcome, err := dispatcher.Dispatch(ctx, Delivery{
		Type:    DeliveryExecutionCreated,
		Subject: exec.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDurableSleep, outcome.Status)

	// The timer delivery arrives once the wake time has passed.
	env.clock.Advance(10_000)
	outcome, err = dispatcher.Dispatch(ctx, Delivery{
		Type:    DeliveryTimerScheduled,
		Subject: exec.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome.Status)
}
