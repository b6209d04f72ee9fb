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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Error("expected default output to be stderr")
	}
	if cfg.AddSource {
		t.Error("expected AddSource to default to false")
	}
}

func TestFromEnvDebug(t *testing.T) {
	t.Setenv("STEPFLOW_DEBUG", "1")
	t.Setenv("STEPFLOW_LOG_LEVEL", "error")

	cfg := FromEnv()
	if cfg.Level != "debug" {
		t.Errorf("expected STEPFLOW_DEBUG to force debug level, got %q", cfg.Level)
	}
	if !cfg.AddSource {
		t.Error("expected STEPFLOW_DEBUG to enable source logging")
	}
}

func TestFromEnvLevelPrecedence(t *testing.T) {
	t.Setenv("STEPFLOW_DEBUG", "")
	t.Setenv("STEPFLOW_LOG_LEVEL", "warn")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := FromEnv()
	if cfg.Level != "warn" {
		t.Errorf("expected STEPFLOW_LOG_LEVEL to win, got %q", cfg.Level)
	}
}

func TestFromEnvFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "TEXT")

	cfg := FromEnv()
	if cfg.Format != FormatText {
		t.Errorf("expected text format, got %q", cfg.Format)
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("hello", ExecutionIDKey, "exec-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("expected msg 'hello', got %v", entry["msg"])
	}
	if entry[ExecutionIDKey] != "exec-1" {
		t.Errorf("expected execution_id field, got %v", entry[ExecutionIDKey])
	}
}

func TestNewTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	logger.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected info to be suppressed at warn level, got %q", buf.String())
	}

	logger.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("expected warn to be emitted")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestWithExecution(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithExecution(logger, "exec-9").Info("scoped")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry[ExecutionIDKey] != "exec-9" {
		t.Errorf("expected execution_id 'exec-9', got %v", entry[ExecutionIDKey])
	}
}
