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

package daemon

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/stepflow/pkg/engine"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/executions", d.handleCreateExecution)
	mux.HandleFunc("GET /v1/executions", d.handleListExecutions)
	mux.HandleFunc("GET /v1/executions/{id}", d.handleGetExecution)
	mux.HandleFunc("GET /v1/executions/{id}/steps", d.handleGetSteps)
	mux.HandleFunc("POST /v1/executions/{id}/signals", d.handleSendSignal)
	mux.HandleFunc("POST /v1/executions/{id}/cancel", d.handleCancel)
	mux.HandleFunc("POST /v1/executions/{id}/resume", d.handleResume)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": d.opts.Version})
	})

	return mux
}

type createExecutionRequest struct {
	WorkflowID     string          `json:"workflowId"`
	Steps          []workflow.Step `json:"steps"`
	Input          any             `json:"input,omitempty"`
	StartAtEpochMs int64           `json:"startAtEpochMs,omitempty"`
	TimeoutMs      *int64          `json:"timeoutMs,omitempty"`
}

func (d *Daemon) handleCreateExecution(w http.ResponseWriter, r *http.Request) {
	var req createExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &errors.ValidationError{Field: "body", Message: "request body is not valid JSON"})
		return
	}
	if err := workflow.Validate(&workflow.Workflow{ID: req.WorkflowID, Steps: req.Steps}); err != nil {
		writeError(w, err)
		return
	}

	now := d.clock.Now()
	exec := engine.NewExecution(req.WorkflowID, req.Steps, req.Input, now)
	if req.StartAtEpochMs > now {
		exec.StartAtEpochMs = req.StartAtEpochMs
	}
	if req.TimeoutMs != nil && *req.TimeoutMs > 0 {
		exec.TimeoutMs = req.TimeoutMs
		deadline := exec.StartAtEpochMs + *req.TimeoutMs
		exec.DeadlineAtEpochMs = &deadline
	}

	if err := d.store.CreateExecution(r.Context(), exec); err != nil {
		writeError(w, err)
		return
	}
	if err := d.bus.Publish(r.Context(), engine.Delivery{
		Type:      engine.DeliveryExecutionCreated,
		Subject:   exec.ID,
		DeliverAt: exec.StartAtEpochMs,
	}); err != nil {
		d.logger.Warn("failed to publish created delivery",
			"execution_id", exec.ID,
			"error", err)
	}

	writeJSON(w, http.StatusCreated, exec)
}

type listExecutionsResponse struct {
	Executions []*engine.Execution `json:"executions"`
	TotalCount int                 `json:"totalCount"`
}

func (d *Daemon) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.ExecutionFilter{
		WorkflowID: q.Get("workflowId"),
		Status:     engine.ExecutionStatus(q.Get("status")),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	execs, total, err := d.store.ListExecutions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if execs == nil {
		execs = []*engine.Execution{}
	}
	writeJSON(w, http.StatusOK, listExecutionsResponse{Executions: execs, TotalCount: total})
}

func (d *Daemon) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := d.store.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (d *Daemon) handleGetSteps(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := d.store.GetExecution(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	results, err := d.store.GetStepResults(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []*engine.StepResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": results})
}

type sendSignalRequest struct {
	Name    string `json:"name"`
	Payload any    `json:"payload,omitempty"`
}

func (d *Daemon) handleSendSignal(w http.ResponseWriter, r *http.Request) {
	var req sendSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &errors.ValidationError{Field: "body", Message: "request body is not valid JSON"})
		return
	}
	if req.Name == "" {
		writeError(w, &errors.ValidationError{Field: "name", Message: "signal name is required"})
		return
	}
	if err := d.signals.Send(r.Context(), r.PathValue("id"), req.Name, req.Payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (d *Daemon) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cancelled, err := d.store.CancelExecution(r.Context(), id, d.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cancelled})
}

func (d *Daemon) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resumed, err := d.store.ResumeExecution(r.Context(), id, d.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if resumed {
		if err := d.bus.Publish(r.Context(), engine.Delivery{
			Type:    engine.DeliveryExecutionRetry,
			Subject: id,
		}); err != nil {
			d.logger.Warn("failed to publish resume delivery",
				"execution_id", id,
				"error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resumed": resumed})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var validation *errors.ValidationError
	var notFound *errors.NotFoundError
	switch {
	case stderrors.As(err, &validation):
		status = http.StatusBadRequest
	case stderrors.As(err, &notFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
