package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/stepflow/pkg/errors"
)

// MemoryStore is an in-memory implementation of Store. It is thread-safe
// and implements the same conditional-write semantics as the SQL
// backends, which makes it suitable for tests and single-process
// deployments. Stored JSON values are treated as immutable by callers.
type MemoryStore struct {
	mu         sync.Mutex
	executions map[string]*Execution
	steps      map[string]*StepResult // key: executionID + "\x00" + stepID
	events     []*Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*Execution),
		steps:      make(map[string]*StepResult),
	}
}

func stepKey(executionID, stepID string) string {
	return executionID + "\x00" + stepID
}

// CreateExecution inserts a new execution row.
func (s *MemoryStore) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec == nil || exec.ID == "" {
		return &errors.ValidationError{Field: "execution.id", Message: "execution ID cannot be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[exec.ID]; exists {
		return &errors.ValidationError{
			Field:      "execution.id",
			Message:    fmt.Sprintf("execution %s already exists", exec.ID),
			Suggestion: "execution IDs are unique; create a new execution instead",
		}
	}
	s.executions[exec.ID] = copyExecution(exec)
	return nil
}

// GetExecution returns the execution or a NotFoundError.
func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "execution", ID: id}
	}
	return copyExecution(exec), nil
}

// ListExecutions returns a page plus the total count under the same
// filter.
func (s *MemoryStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Execution
	for _, exec := range s.executions {
		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && exec.Status != filter.Status {
			continue
		}
		matched = append(matched, exec)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt != matched[j].CreatedAt {
			return matched[i].CreatedAt > matched[j].CreatedAt
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*Execution{}, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	page := make([]*Execution, len(matched))
	for i, exec := range matched {
		page[i] = copyExecution(exec)
	}
	return page, total, nil
}

// ClaimExecution atomically moves enqueued to running.
func (s *MemoryStore) ClaimExecution(ctx context.Context, id string, nowMs int64) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "execution", ID: id}
	}
	if exec.Status != StatusEnqueued {
		return nil, nil
	}
	exec.Status = StatusRunning
	exec.UpdatedAt = nowMs
	return copyExecution(exec), nil
}

// UpdateExecution applies a partial update.
func (s *MemoryStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate, nowMs int64) (*Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "execution", ID: id}
	}
	if update.Status != "" {
		exec.Status = update.Status
	}
	if update.SetOutput {
		exec.Output = update.Output
	}
	if update.SetError {
		exec.Error = update.Error
	}
	if update.SetCompletedAt {
		completed := update.CompletedAtEpochMs
		exec.CompletedAtEpochMs = &completed
	}
	exec.UpdatedAt = nowMs
	return copyExecution(exec), nil
}

// CancelExecution flips status to cancelled when enqueued or running.
func (s *MemoryStore) CancelExecution(ctx context.Context, id string, nowMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return false, &errors.NotFoundError{Resource: "execution", ID: id}
	}
	if exec.Status != StatusEnqueued && exec.Status != StatusRunning {
		return false, nil
	}
	exec.Status = StatusCancelled
	exec.UpdatedAt = nowMs
	return true, nil
}

// ResumeExecution moves cancelled back to enqueued.
func (s *MemoryStore) ResumeExecution(ctx context.Context, id string, nowMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.executions[id]
	if !ok {
		return false, &errors.NotFoundError{Resource: "execution", ID: id}
	}
	if exec.Status != StatusCancelled {
		return false, nil
	}
	exec.Status = StatusEnqueued
	exec.CompletedAtEpochMs = nil
	exec.UpdatedAt = nowMs
	return true, nil
}

// GetStepResults returns all step rows of the execution.
func (s *MemoryStore) GetStepResults(ctx context.Context, executionID string) ([]*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*StepResult
	for _, r := range s.steps {
		if r.ExecutionID == executionID {
			results = append(results, copyStepResult(r))
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].StartedAtEpochMs != results[j].StartedAtEpochMs {
			return results[i].StartedAtEpochMs < results[j].StartedAtEpochMs
		}
		return results[i].StepID < results[j].StepID
	})
	return results, nil
}

// GetStepResult returns one step row or a NotFoundError.
func (s *MemoryStore) GetStepResult(ctx context.Context, executionID, stepID string) (*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.steps[stepKey(executionID, stepID)]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "step result", ID: executionID + "/" + stepID}
	}
	return copyStepResult(r), nil
}

// ClaimStep is the stale-claim upsert: insert the checkpoint row, or
// refresh started_at when the row is incomplete and its claim is older
// than timeoutMs. (nil, nil) means no progress is possible.
func (s *MemoryStore) ClaimStep(ctx context.Context, executionID, stepID string, timeoutMs, nowMs int64) (*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stepKey(executionID, stepID)
	existing, ok := s.steps[key]
	if !ok {
		r := &StepResult{
			ExecutionID:      executionID,
			StepID:           stepID,
			StartedAtEpochMs: nowMs,
		}
		s.steps[key] = r
		return copyStepResult(r), nil
	}
	if existing.CompletedAtEpochMs != nil {
		return nil, nil
	}
	if existing.StartedAtEpochMs >= nowMs-timeoutMs {
		return nil, nil
	}
	existing.StartedAtEpochMs = nowMs
	return copyStepResult(existing), nil
}

// UpdateStep applies a partial update unless the row is already
// completed, in which case the existing row is returned untouched.
func (s *MemoryStore) UpdateStep(ctx context.Context, executionID, stepID string, update StepUpdate) (*StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.steps[stepKey(executionID, stepID)]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "step result", ID: executionID + "/" + stepID}
	}
	if r.CompletedAtEpochMs != nil {
		return copyStepResult(r), nil
	}
	if update.SetOutput {
		r.Output = update.Output
	}
	if update.SetError {
		r.Error = update.Error
	}
	if update.SetCompletedAt {
		completed := update.CompletedAtEpochMs
		r.CompletedAtEpochMs = &completed
	}
	return copyStepResult(r), nil
}

// AppendEvent appends to the event log, enforcing the one-output-per-name
// unique index.
func (s *MemoryStore) AppendEvent(ctx context.Context, event *Event) error {
	if event == nil || event.ID == "" {
		return &errors.ValidationError{Field: "event.id", Message: "event ID cannot be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.Type == EventOutput {
		for _, e := range s.events {
			if e.ExecutionID == event.ExecutionID && e.Type == EventOutput && e.Name == event.Name {
				return &errors.ValidationError{
					Field:      "event.name",
					Message:    fmt.Sprintf("output event %q already exists for execution %s", event.Name, event.ExecutionID),
					Suggestion: "output names are unique per execution",
				}
			}
		}
	}
	s.events = append(s.events, copyEvent(event))
	return nil
}

// NextEvent returns the oldest unconsumed visible event matching
// (type, name), or (nil, nil).
func (s *MemoryStore) NextEvent(ctx context.Context, executionID string, typ EventType, name string, nowMs int64) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findEvent(executionID, typ, name, &nowMs), nil
}

// PendingEvent is NextEvent without the visibility check.
func (s *MemoryStore) PendingEvent(ctx context.Context, executionID string, typ EventType, name string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findEvent(executionID, typ, name, nil), nil
}

func (s *MemoryStore) findEvent(executionID string, typ EventType, name string, visibleBy *int64) *Event {
	var oldest *Event
	for _, e := range s.events {
		if e.ExecutionID != executionID || e.Type != typ || e.Name != name || e.ConsumedAt != nil {
			continue
		}
		if visibleBy != nil && e.VisibleAt > *visibleBy {
			continue
		}
		if oldest == nil || e.CreatedAt < oldest.CreatedAt {
			oldest = e
		}
	}
	if oldest == nil {
		return nil
	}
	return copyEvent(oldest)
}

// ConsumeEvent marks an event consumed once; false means lost the race.
func (s *MemoryStore) ConsumeEvent(ctx context.Context, eventID string, nowMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID != eventID {
			continue
		}
		if e.ConsumedAt != nil {
			return false, nil
		}
		consumed := nowMs
		e.ConsumedAt = &consumed
		return true, nil
	}
	return false, &errors.NotFoundError{Resource: "event", ID: eventID}
}

// copyExecution creates a row copy so callers cannot mutate stored state.
// JSON payload fields are shared; callers treat them as immutable.
func copyExecution(e *Execution) *Execution {
	if e == nil {
		return nil
	}
	cp := *e
	if e.DeadlineAtEpochMs != nil {
		v := *e.DeadlineAtEpochMs
		cp.DeadlineAtEpochMs = &v
	}
	if e.TimeoutMs != nil {
		v := *e.TimeoutMs
		cp.TimeoutMs = &v
	}
	if e.CompletedAtEpochMs != nil {
		v := *e.CompletedAtEpochMs
		cp.CompletedAtEpochMs = &v
	}
	return &cp
}

func copyStepResult(r *StepResult) *StepResult {
	if r == nil {
		return nil
	}
	cp := *r
	if r.CompletedAtEpochMs != nil {
		v := *r.CompletedAtEpochMs
		cp.CompletedAtEpochMs = &v
	}
	return &cp
}

func copyEvent(e *Event) *Event {
	if e == nil {
		return nil
	}
	cp := *e
	if e.ConsumedAt != nil {
		v := *e.ConsumedAt
		cp.ConsumedAt = &v
	}
	return &cp
}
