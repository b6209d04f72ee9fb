// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a SQLite store implementation for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/stepflow/pkg/engine"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

// Compile-time interface assertion.
var _ engine.Store = (*Store)(nil)

// Store is a SQLite storage backend.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New creates a new SQLite store.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// configurePragmas sets SQLite configuration options.
func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",         // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",       // 5 second timeout for lock contention
		"PRAGMA auto_vacuum=INCREMENTAL", // Incremental auto-vacuum for space reclamation
		"PRAGMA synchronous=NORMAL",      // Balance between performance and durability
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL") // Enable WAL mode for concurrent reads
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflow_executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			steps TEXT NOT NULL,
			input TEXT,
			status TEXT NOT NULL,
			start_at_epoch_ms INTEGER NOT NULL,
			deadline_at_epoch_ms INTEGER,
			timeout_ms INTEGER,
			completed_at_epoch_ms INTEGER,
			output TEXT,
			error TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_status ON workflow_executions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_workflow ON workflow_executions(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_created_at ON workflow_executions(created_at)`,
		`CREATE TABLE IF NOT EXISTS execution_step_results (
			execution_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			started_at_epoch_ms INTEGER NOT NULL,
			completed_at_epoch_ms INTEGER,
			output TEXT,
			error TEXT,
			PRIMARY KEY (execution_id, step_id),
			FOREIGN KEY (execution_id) REFERENCES workflow_executions(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_events (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			payload TEXT,
			created_at INTEGER NOT NULL,
			visible_at INTEGER NOT NULL,
			consumed_at INTEGER,
			source_execution_id TEXT,
			FOREIGN KEY (execution_id) REFERENCES workflow_executions(id) ON DELETE CASCADE
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_output_unique
			ON workflow_events(execution_id, name) WHERE type = 'output'`,
		`CREATE INDEX IF NOT EXISTS idx_events_pending
			ON workflow_events(execution_id, type, name, visible_at) WHERE consumed_at IS NULL`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// CreateExecution creates a new execution row.
func (s *Store) CreateExecution(ctx context.Context, exec *engine.Execution) error {
	stepsJSON, err := workflow.MarshalSteps(exec.Steps)
	if err != nil {
		return err
	}
	inputJSON, err := marshalNullable(exec.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (id, workflow_id, steps, input, status,
			start_at_epoch_ms, deadline_at_epoch_ms, timeout_ms, completed_at_epoch_ms,
			output, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		exec.ID, exec.WorkflowID, string(stepsJSON), inputJSON, string(exec.Status),
		exec.StartAtEpochMs, nullInt(exec.DeadlineAtEpochMs), nullInt(exec.TimeoutMs),
		nullInt(exec.CompletedAtEpochMs), nil, nil, exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &errors.ValidationError{
				Field:      "execution.id",
				Message:    fmt.Sprintf("execution %s already exists", exec.ID),
				Suggestion: "execution IDs are unique; create a new execution instead",
			}
		}
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, id string) (*engine.Execution, error) {
	query := executionSelect + ` WHERE id = ?`
	exec, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "execution", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return exec, nil
}

// ListExecutions lists executions with optional filtering, newest first,
// plus the total count under the same filter.
func (s *Store) ListExecutions(ctx context.Context, filter engine.ExecutionFilter) ([]*engine.Execution, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.WorkflowID != "" {
		where += " AND workflow_id = ?"
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_executions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	query := executionSelect + where + " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var execs []*engine.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	return execs, total, rows.Err()
}

// ClaimExecution atomically moves an enqueued execution to running.
func (s *Store) ClaimExecution(ctx context.Context, id string, nowMs int64) (*engine.Execution, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workflow_executions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(engine.StatusRunning), nowMs, id, string(engine.StatusEnqueued),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim execution: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		// Either the row does not exist or the claim was lost.
		if _, err := s.GetExecution(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s.GetExecution(ctx, id)
}

// UpdateExecution applies a partial update and returns the new row.
func (s *Store) UpdateExecution(ctx context.Context, id string, update engine.ExecutionUpdate, nowMs int64) (*engine.Execution, error) {
	sets := []string{"updated_at = ?"}
	args := []any{nowMs}

	if update.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(update.Status))
	}
	if update.SetOutput {
		outputJSON, err := marshalNullable(update.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal output: %w", err)
		}
		sets = append(sets, "output = ?")
		args = append(args, outputJSON)
	}
	if update.SetError {
		errJSON, err := marshalNullable(update.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error: %w", err)
		}
		sets = append(sets, "error = ?")
		args = append(args, errJSON)
	}
	if update.SetCompletedAt {
		sets = append(sets, "completed_at_epoch_ms = ?")
		args = append(args, update.CompletedAtEpochMs)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE workflow_executions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update execution: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return nil, &errors.NotFoundError{Resource: "execution", ID: id}
	}
	return s.GetExecution(ctx, id)
}

// CancelExecution flips status to cancelled when enqueued or running.
func (s *Store) CancelExecution(ctx context.Context, id string, nowMs int64) (bool, error) {
	return s.conditionalStatusFlip(ctx, id,
		`UPDATE workflow_executions SET status = ?, updated_at = ?
			WHERE id = ? AND status IN (?, ?)`,
		string(engine.StatusCancelled), nowMs, id,
		string(engine.StatusEnqueued), string(engine.StatusRunning))
}

// ResumeExecution moves a cancelled execution back to enqueued.
func (s *Store) ResumeExecution(ctx context.Context, id string, nowMs int64) (bool, error) {
	return s.conditionalStatusFlip(ctx, id,
		`UPDATE workflow_executions SET status = ?, completed_at_epoch_ms = NULL, updated_at = ?
			WHERE id = ? AND status = ?`,
		string(engine.StatusEnqueued), nowMs, id, string(engine.StatusCancelled))
}

func (s *Store) conditionalStatusFlip(ctx context.Context, id, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update execution status: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		if _, err := s.GetExecution(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// GetStepResults retrieves all step results for an execution.
func (s *Store) GetStepResults(ctx context.Context, executionID string) ([]*engine.StepResult, error) {
	query := stepResultSelect + ` WHERE execution_id = ? ORDER BY started_at_epoch_ms ASC, step_id ASC`
	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step results: %w", err)
	}
	defer rows.Close()

	var results []*engine.StepResult
	for rows.Next() {
		r, err := scanStepResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetStepResult retrieves a step result by execution ID and step ID.
func (s *Store) GetStepResult(ctx context.Context, executionID, stepID string) (*engine.StepResult, error) {
	query := stepResultSelect + ` WHERE execution_id = ? AND step_id = ?`
	r, err := scanStepResult(s.db.QueryRowContext(ctx, query, executionID, stepID))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "step result", ID: executionID + "/" + stepID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get step result: %w", err)
	}
	return r, nil
}

// ClaimStep inserts the checkpoint row, or refreshes a stale incomplete
// claim. Zero affected rows means no progress is possible.
func (s *Store) ClaimStep(ctx context.Context, executionID, stepID string, timeoutMs, nowMs int64) (*engine.StepResult, error) {
	query := `
		INSERT INTO execution_step_results (execution_id, step_id, started_at_epoch_ms)
		VALUES (?, ?, ?)
		ON CONFLICT (execution_id, step_id) DO UPDATE SET
			started_at_epoch_ms = excluded.started_at_epoch_ms
		WHERE completed_at_epoch_ms IS NULL AND started_at_epoch_ms < ?
	`
	result, err := s.db.ExecContext(ctx, query, executionID, stepID, nowMs, nowMs-timeoutMs)
	if err != nil {
		return nil, fmt.Errorf("failed to claim step: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return nil, nil
	}
	return s.GetStepResult(ctx, executionID, stepID)
}

// UpdateStep applies a partial update unless the row is already
// completed, in which case the existing row is returned untouched.
func (s *Store) UpdateStep(ctx context.Context, executionID, stepID string, update engine.StepUpdate) (*engine.StepResult, error) {
	sets := []string{}
	args := []any{}

	if update.SetOutput {
		outputJSON, err := marshalNullable(update.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal output: %w", err)
		}
		sets = append(sets, "output = ?")
		args = append(args, outputJSON)
	}
	if update.SetError {
		errJSON, err := marshalNullable(update.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error: %w", err)
		}
		sets = append(sets, "error = ?")
		args = append(args, errJSON)
	}
	if update.SetCompletedAt {
		sets = append(sets, "completed_at_epoch_ms = ?")
		args = append(args, update.CompletedAtEpochMs)
	}
	if len(sets) == 0 {
		return s.GetStepResult(ctx, executionID, stepID)
	}
	args = append(args, executionID, stepID)

	query := "UPDATE execution_step_results SET " + strings.Join(sets, ", ") +
		" WHERE execution_id = ? AND step_id = ? AND completed_at_epoch_ms IS NULL"
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update step result: %w", err)
	}
	return s.GetStepResult(ctx, executionID, stepID)
}

// AppendEvent appends to the execution's event log.
func (s *Store) AppendEvent(ctx context.Context, event *engine.Event) error {
	payloadJSON, err := marshalNullable(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO workflow_events (id, execution_id, type, name, payload,
			created_at, visible_at, consumed_at, source_execution_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		event.ID, event.ExecutionID, string(event.Type), event.Name, payloadJSON,
		event.CreatedAt, event.VisibleAt, nullInt(event.ConsumedAt),
		nullString(event.SourceExecutionID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &errors.ValidationError{
				Field:      "event.name",
				Message:    fmt.Sprintf("output event %q already exists for execution %s", event.Name, event.ExecutionID),
				Suggestion: "output names are unique per execution",
			}
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// NextEvent returns the oldest unconsumed visible event matching
// (type, name), or nil.
func (s *Store) NextEvent(ctx context.Context, executionID string, typ engine.EventType, name string, nowMs int64) (*engine.Event, error) {
	query := eventSelect + `
		WHERE execution_id = ? AND type = ? AND name = ?
			AND consumed_at IS NULL AND visible_at <= ?
		ORDER BY created_at ASC, id ASC LIMIT 1`
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, executionID, string(typ), name, nowMs))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query next event: %w", err)
	}
	return event, nil
}

// PendingEvent is NextEvent without the visibility check.
func (s *Store) PendingEvent(ctx context.Context, executionID string, typ engine.EventType, name string) (*engine.Event, error) {
	query := eventSelect + `
		WHERE execution_id = ? AND type = ? AND name = ? AND consumed_at IS NULL
		ORDER BY created_at ASC, id ASC LIMIT 1`
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, executionID, string(typ), name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending event: %w", err)
	}
	return event, nil
}

// ConsumeEvent marks an event consumed, conditional on it not being
// consumed already.
func (s *Store) ConsumeEvent(ctx context.Context, eventID string, nowMs int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workflow_events SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`,
		nowMs, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to consume event: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM workflow_events WHERE id = ?`, eventID).Scan(&exists)
		if err == sql.ErrNoRows {
			return false, &errors.NotFoundError{Resource: "event", ID: eventID}
		}
		if err != nil {
			return false, fmt.Errorf("failed to check event: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Scan helpers

const executionSelect = `
	SELECT id, workflow_id, steps, input, status, start_at_epoch_ms,
		deadline_at_epoch_ms, timeout_ms, completed_at_epoch_ms,
		output, error, created_at, updated_at
	FROM workflow_executions`

const stepResultSelect = `
	SELECT execution_id, step_id, started_at_epoch_ms, completed_at_epoch_ms, output, error
	FROM execution_step_results`

const eventSelect = `
	SELECT id, execution_id, type, name, payload, created_at, visible_at,
		consumed_at, source_execution_id
	FROM workflow_events`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*engine.Execution, error) {
	var exec engine.Execution
	var stepsJSON string
	var inputJSON, outputJSON, errorJSON sql.NullString
	var deadlineAt, timeoutMs, completedAt sql.NullInt64
	var status string

	err := row.Scan(
		&exec.ID, &exec.WorkflowID, &stepsJSON, &inputJSON, &status,
		&exec.StartAtEpochMs, &deadlineAt, &timeoutMs, &completedAt,
		&outputJSON, &errorJSON, &exec.CreatedAt, &exec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	exec.Status = engine.ExecutionStatus(status)
	steps, err := workflow.ParseSteps([]byte(stepsJSON))
	if err != nil {
		return nil, err
	}
	exec.Steps = steps

	if err := unmarshalNullable(inputJSON, &exec.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input: %w", err)
	}
	if err := unmarshalNullable(outputJSON, &exec.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	if err := unmarshalNullable(errorJSON, &exec.Error); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error: %w", err)
	}

	if deadlineAt.Valid {
		exec.DeadlineAtEpochMs = &deadlineAt.Int64
	}
	if timeoutMs.Valid {
		exec.TimeoutMs = &timeoutMs.Int64
	}
	if completedAt.Valid {
		exec.CompletedAtEpochMs = &completedAt.Int64
	}
	return &exec, nil
}

func scanStepResult(row rowScanner) (*engine.StepResult, error) {
	var r engine.StepResult
	var completedAt sql.NullInt64
	var outputJSON, errorJSON sql.NullString

	err := row.Scan(&r.ExecutionID, &r.StepID, &r.StartedAtEpochMs, &completedAt, &outputJSON, &errorJSON)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		r.CompletedAtEpochMs = &completedAt.Int64
	}
	if err := unmarshalNullable(outputJSON, &r.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	if err := unmarshalNullable(errorJSON, &r.Error); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error: %w", err)
	}
	return &r, nil
}

func scanEvent(row rowScanner) (*engine.Event, error) {
	var event engine.Event
	var typ string
	var payloadJSON, sourceID sql.NullString
	var consumedAt sql.NullInt64

	err := row.Scan(
		&event.ID, &event.ExecutionID, &typ, &event.Name, &payloadJSON,
		&event.CreatedAt, &event.VisibleAt, &consumedAt, &sourceID,
	)
	if err != nil {
		return nil, err
	}

	event.Type = engine.EventType(typ)
	if err := unmarshalNullable(payloadJSON, &event.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if consumedAt.Valid {
		event.ConsumedAt = &consumedAt.Int64
	}
	if sourceID.Valid {
		event.SourceExecutionID = sourceID.String
	}
	return &event, nil
}

// Helper functions

// marshalNullable marshals a JSON value, mapping nil to SQL NULL.
func marshalNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// unmarshalNullable decodes a nullable JSON column into dest.
func unmarshalNullable(col sql.NullString, dest *any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}

// nullInt returns nil if the pointer is nil, otherwise the value.
func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// nullString returns nil if string is empty, otherwise the string.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation reports whether the error is a unique constraint
// failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
