package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

func newTestExecution(t *testing.T, store Store, workflowID string, nowMs int64) *Execution {
	t.Helper()
	exec := NewExecution(workflowID, []workflow.Step{
		{Name: "only", Action: workflow.ActionCode, Code: &workflow.CodeAction{Source: "return 1;"}},
	}, map[string]any{"n": float64(1)}, nowMs)
	require.NoError(t, store.CreateExecution(context.Background(), exec))
	return exec
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, got.ID)
	assert.Equal(t, StatusEnqueued, got.Status)

	_, err = store.GetExecution(ctx, "missing")
	var notFound *errors.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestMemoryClaimExecution(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)

	claimed, err := store.ClaimExecution(ctx, exec.ID, 2000)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, StatusRunning, claimed.Status)

	// A second claim on a running execution is lost, not an error.
	again, err := store.ClaimExecution(ctx, exec.ID, 2001)
	require.NoError(t, err)
	assert.Nil(t, again)

	// Terminal executions are never claimable.
	_, err = store.UpdateExecution(ctx, exec.ID, ExecutionUpdate{Status: StatusSuccess}, 3000)
	require.NoError(t, err)
	lost, err := store.ClaimExecution(ctx, exec.ID, 3001)
	require.NoError(t, err)
	assert.Nil(t, lost)

	var notFound *errors.NotFoundError
	_, err = store.ClaimExecution(ctx, "missing", 1)
	require.ErrorAs(t, err, &notFound)
}

func TestMemoryCancelAndResume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)

	cancelled, err := store.CancelExecution(ctx, exec.ID, 2000)
	require.NoError(t, err)
	assert.True(t, cancelled)

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// Cancelling again is a no-op.
	cancelled, err = store.CancelExecution(ctx, exec.ID, 2001)
	require.NoError(t, err)
	assert.False(t, cancelled)

	resumed, err := store.ResumeExecution(ctx, exec.ID, 3000)
	require.NoError(t, err)
	assert.True(t, resumed)

	got, err = store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnqueued, got.Status)
	assert.Nil(t, got.CompletedAtEpochMs)

	// Only cancelled executions resume.
	resumed, err = store.ResumeExecution(ctx, exec.ID, 3001)
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestMemoryClaimStep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)
	const timeout = int64(30000)

	// Fresh claim inserts the checkpoint row.
	res, err := store.ClaimStep(ctx, exec.ID, "only", timeout, 2000)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int64(2000), res.StartedAtEpochMs)
	assert.False(t, res.Completed())

	// A live claim within the timeout window blocks progress.
	res, err = store.ClaimStep(ctx, exec.ID, "only", timeout, 10000)
	require.NoError(t, err)
	assert.Nil(t, res)

	// A stale claim is taken over: started_at refreshes.
	res, err = store.ClaimStep(ctx, exec.ID, "only", timeout, 2000+timeout+1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2000+timeout+1, res.StartedAtEpochMs)

	// Completed rows are never reclaimed, however stale.
	_, err = store.UpdateStep(ctx, exec.ID, "only", StepUpdate{
		SetOutput:          true,
		Output:             map[string]any{"v": float64(1)},
		SetCompletedAt:     true,
		CompletedAtEpochMs: 40000,
	})
	require.NoError(t, err)
	res, err = store.ClaimStep(ctx, exec.ID, "only", timeout, 999999)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestMemoryUpdateStepCompletedRowIsImmutable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)

	_, err := store.ClaimStep(ctx, exec.ID, "only", 30000, 2000)
	require.NoError(t, err)

	first, err := store.UpdateStep(ctx, exec.ID, "only", StepUpdate{
		SetOutput:          true,
		Output:             map[string]any{"v": "first"},
		SetCompletedAt:     true,
		CompletedAtEpochMs: 3000,
	})
	require.NoError(t, err)
	require.True(t, first.Completed())

	// The predicate rejects the second write and returns the winning row.
	second, err := store.UpdateStep(ctx, exec.ID, "only", StepUpdate{
		SetOutput:          true,
		Output:             map[string]any{"v": "second"},
		SetCompletedAt:     true,
		CompletedAtEpochMs: 4000,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": "first"}, second.Output)
	assert.Equal(t, int64(3000), *second.CompletedAtEpochMs)
}

func TestMemoryOutputEventUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)

	require.NoError(t, store.AppendEvent(ctx, NewEvent(exec.ID, EventOutput, "report", "v1", 2000)))

	err := store.AppendEvent(ctx, NewEvent(exec.ID, EventOutput, "report", "v2", 2001))
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)

	// Other event types are not unique by name.
	require.NoError(t, store.AppendEvent(ctx, NewEvent(exec.ID, EventSignal, "report", nil, 2002)))
	require.NoError(t, store.AppendEvent(ctx, NewEvent(exec.ID, EventSignal, "report", nil, 2003)))
}

func TestMemoryNextEventAndConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)

	// No event yet.
	got, err := store.NextEvent(ctx, exec.ID, EventSignal, "approve", 5000)
	require.NoError(t, err)
	assert.Nil(t, got)

	older := NewEvent(exec.ID, EventSignal, "approve", "first", 2000)
	newer := NewEvent(exec.ID, EventSignal, "approve", "second", 3000)
	require.NoError(t, store.AppendEvent(ctx, older))
	require.NoError(t, store.AppendEvent(ctx, newer))

	// Oldest visible event wins.
	got, err = store.NextEvent(ctx, exec.ID, EventSignal, "approve", 5000)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.ID, got.ID)

	ok, err := store.ConsumeEvent(ctx, got.ID, 5001)
	require.NoError(t, err)
	assert.True(t, ok)

	// Consumption is write-once.
	ok, err = store.ConsumeEvent(ctx, got.ID, 5002)
	require.NoError(t, err)
	assert.False(t, ok)

	// The consumed event no longer matches.
	got, err = store.NextEvent(ctx, exec.ID, EventSignal, "approve", 5003)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID)
}

func TestMemoryEventVisibility(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)

	timer := NewEvent(exec.ID, EventTimer, "cooldown", nil, 2000)
	timer.VisibleAt = 9000
	require.NoError(t, store.AppendEvent(ctx, timer))

	// Not yet due: NextEvent hides it, PendingEvent does not.
	got, err := store.NextEvent(ctx, exec.ID, EventTimer, "cooldown", 5000)
	require.NoError(t, err)
	assert.Nil(t, got)

	pending, err := store.PendingEvent(ctx, exec.ID, EventTimer, "cooldown")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, timer.ID, pending.ID)

	got, err = store.NextEvent(ctx, exec.ID, EventTimer, "cooldown", 9000)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestMemoryListExecutions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := newTestExecution(t, store, "alpha", 1000)
	b := newTestExecution(t, store, "alpha", 2000)
	_ = newTestExecution(t, store, "beta", 3000)
	_, err := store.UpdateExecution(ctx, a.ID, ExecutionUpdate{Status: StatusSuccess}, 4000)
	require.NoError(t, err)

	// Newest first.
	execs, total, err := store.ListExecutions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, execs, 3)
	assert.Equal(t, "beta", execs[0].WorkflowID)

	execs, total, err = store.ListExecutions(ctx, ExecutionFilter{WorkflowID: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, execs, 2)

	execs, total, err = store.ListExecutions(ctx, ExecutionFilter{Status: StatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, execs, 1)
	assert.Equal(t, a.ID, execs[0].ID)

	// Paging returns a slice but the full total.
	execs, total, err = store.ListExecutions(ctx, ExecutionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, execs, 1)
	assert.Equal(t, b.ID, execs[0].ID)
}

func TestMemoryCopyOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	exec := newTestExecution(t, store, "wf", 1000)

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	got.Status = StatusError

	fresh, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnqueued, fresh.Status)
}
