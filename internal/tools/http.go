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

// Package tools invokes remote tools over HTTP. A tool call POSTs the
// resolved step input to the connection's endpoint and the JSON response
// body becomes the step output.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tombee/stepflow/internal/config"
	"github.com/tombee/stepflow/pkg/engine"
	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/httpclient"
)

// Compile-time interface assertion.
var _ engine.ToolInvoker = (*HTTPInvoker)(nil)

// HTTPInvoker resolves connection IDs to HTTP endpoints. Invocation
// retries are left to the engine's attempt loop, so the client itself
// does not retry.
type HTTPInvoker struct {
	connections map[string]config.ConnectionConfig
	client      *http.Client
	logger      *slog.Logger
}

// invokeRequest is the wire format of a tool call.
type invokeRequest struct {
	Tool  string `json:"tool"`
	Input any    `json:"input,omitempty"`
}

// NewHTTPInvoker creates an invoker for the configured connections.
func NewHTTPInvoker(connections map[string]config.ConnectionConfig) (*HTTPInvoker, error) {
	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "stepflow/1.0"
	// Per-request deadlines come from the step timeout context.
	cfg.Timeout = 0
	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool client: %w", err)
	}
	return &HTTPInvoker{
		connections: connections,
		client:      client,
		logger:      slog.Default(),
	}, nil
}

// WithLogger sets the logger.
func (i *HTTPInvoker) WithLogger(logger *slog.Logger) *HTTPInvoker {
	i.logger = logger
	return i
}

// Invoke calls the tool and returns the decoded JSON response body.
func (i *HTTPInvoker) Invoke(ctx context.Context, connectionID, toolName string, args any) (any, error) {
	conn, ok := i.connections[connectionID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "tool connection", ID: connectionID}
	}

	body, err := json.Marshal(invokeRequest{Tool: toolName, Input: args})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conn.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	i.logger.Debug("invoking tool",
		"connection_id", connectionID,
		"tool", toolName)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool %s/%s: %w", connectionID, toolName, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("tool %s/%s: failed to read response: %w", connectionID, toolName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool %s/%s returned status %d: %s",
			connectionID, toolName, resp.StatusCode, truncate(string(data), 512))
	}

	if len(data) == 0 {
		return nil, nil
	}
	var output any
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("tool %s/%s returned invalid JSON: %w", connectionID, toolName, err)
	}
	return output, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
