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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tombee/stepflow/internal/config"
	"github.com/tombee/stepflow/pkg/engine"
)

func newTestDaemon(t *testing.T) (*Daemon, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	d, err := New(cfg, Options{Version: "test"})
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	server := httptest.NewServer(d.routes())
	t.Cleanup(func() {
		server.Close()
		if err := d.Shutdown(context.Background()); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	})
	return d, server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// waitForStatus polls the execution until it reaches the wanted status.
func waitForStatus(t *testing.T, d *Daemon, executionID string, want engine.ExecutionStatus) *engine.Execution {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := d.store.GetExecution(context.Background(), executionID)
		if err != nil {
			t.Fatalf("GetExecution failed: %v", err)
		}
		if exec.Status == want {
			return exec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached status %s", executionID, want)
	return nil
}

func TestCreateExecutionRunsToCompletion(t *testing.T) {
	d, server := newTestDaemon(t)

	resp := postJSON(t, server.URL+"/v1/executions", map[string]any{
		"workflowId": "hello",
		"steps": []map[string]any{
			{
				"name":   "greet",
				"action": "code",
				"code":   map[string]any{"source": "return {greeting: 'hi'};"},
			},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created engine.Execution
	decodeBody(t, resp, &created)
	if created.ID == "" {
		t.Fatal("expected execution ID in response")
	}

	final := waitForStatus(t, d, created.ID, engine.StatusSuccess)
	out, ok := final.Output.(map[string]any)
	if !ok || out["message"] != "workflow completed" {
		t.Errorf("unexpected final output: %+v", final.Output)
	}

	// The step results endpoint exposes the checkpoint.
	stepsResp, err := http.Get(server.URL + "/v1/executions/" + created.ID + "/steps")
	if err != nil {
		t.Fatalf("GET steps failed: %v", err)
	}
	var stepsBody struct {
		Steps []*engine.StepResult `json:"steps"`
	}
	decodeBody(t, stepsResp, &stepsBody)
	if len(stepsBody.Steps) != 1 || stepsBody.Steps[0].StepID != "greet" {
		t.Fatalf("unexpected steps payload: %+v", stepsBody.Steps)
	}
}

func TestCreateExecutionValidation(t *testing.T) {
	_, server := newTestDaemon(t)

	resp := postJSON(t, server.URL+"/v1/executions", map[string]any{
		"workflowId": "broken",
		"steps":      []map[string]any{},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSignalRoundTrip(t *testing.T) {
	d, server := newTestDaemon(t)

	resp := postJSON(t, server.URL+"/v1/executions", map[string]any{
		"workflowId": "approval-flow",
		"steps": []map[string]any{
			{
				"name":   "approval",
				"action": "signal",
				"signal": map[string]any{"signalName": "approve"},
			},
		},
	})
	var created engine.Execution
	decodeBody(t, resp, &created)

	// The execution parks on the signal.
	waitForStatus(t, d, created.ID, engine.StatusRunning)

	sigResp := postJSON(t, server.URL+"/v1/executions/"+created.ID+"/signals", map[string]any{
		"name":    "approve",
		"payload": map[string]any{"approved": true},
	})
	defer sigResp.Body.Close()
	if sigResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", sigResp.StatusCode)
	}

	final := waitForStatus(t, d, created.ID, engine.StatusSuccess)
	if final.CompletedAtEpochMs == nil {
		t.Error("expected completion time")
	}
}

func TestCancelAndResume(t *testing.T) {
	d, server := newTestDaemon(t)

	resp := postJSON(t, server.URL+"/v1/executions", map[string]any{
		"workflowId": "cancellable",
		"steps": []map[string]any{
			{
				"name":   "wait",
				"action": "signal",
				"signal": map[string]any{"signalName": "never"},
			},
		},
	})
	var created engine.Execution
	decodeBody(t, resp, &created)
	waitForStatus(t, d, created.ID, engine.StatusRunning)

	cancelResp := postJSON(t, server.URL+"/v1/executions/"+created.ID+"/cancel", map[string]any{})
	var cancelBody map[string]any
	decodeBody(t, cancelResp, &cancelBody)
	if cancelBody["cancelled"] != true {
		t.Fatalf("expected cancellation, got %v", cancelBody)
	}
	waitForStatus(t, d, created.ID, engine.StatusCancelled)

	resumeResp := postJSON(t, server.URL+"/v1/executions/"+created.ID+"/resume", map[string]any{})
	var resumeBody map[string]any
	decodeBody(t, resumeResp, &resumeBody)
	if resumeBody["resumed"] != true {
		t.Fatalf("expected resume, got %v", resumeBody)
	}
	waitForStatus(t, d, created.ID, engine.StatusRunning)
}

func TestListExecutions(t *testing.T) {
	d, server := newTestDaemon(t)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, server.URL+"/v1/executions", map[string]any{
			"workflowId": fmt.Sprintf("wf-%d", i),
			"steps": []map[string]any{
				{
					"name":   "greet",
					"action": "code",
					"code":   map[string]any{"source": "return 1;"},
				},
			},
		})
		var created engine.Execution
		decodeBody(t, resp, &created)
		waitForStatus(t, d, created.ID, engine.StatusSuccess)
	}

	resp, err := http.Get(server.URL + "/v1/executions?limit=2")
	if err != nil {
		t.Fatalf("GET executions failed: %v", err)
	}
	var body struct {
		Executions []*engine.Execution `json:"executions"`
		TotalCount int                 `json:"totalCount"`
	}
	decodeBody(t, resp, &body)
	if body.TotalCount != 3 {
		t.Errorf("expected total 3, got %d", body.TotalCount)
	}
	if len(body.Executions) != 2 {
		t.Errorf("expected 2 on page, got %d", len(body.Executions))
	}

	filtered, err := http.Get(server.URL + "/v1/executions?workflowId=wf-1")
	if err != nil {
		t.Fatalf("GET filtered executions failed: %v", err)
	}
	decodeBody(t, filtered, &body)
	if body.TotalCount != 1 {
		t.Errorf("expected 1 for wf-1, got %d", body.TotalCount)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	_, server := newTestDaemon(t)

	resp, err := http.Get(server.URL + "/v1/executions/missing")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	_, server := newTestDaemon(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz failed: %v", err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("unexpected healthz body: %v", body)
	}
}
