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

// Package coderunner executes step code snippets on an embedded
// JavaScript interpreter. Each run gets a fresh VM: snippets share no
// state and cannot reach the host beyond the values passed in.
package coderunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dop251/goja"

	"github.com/tombee/stepflow/pkg/engine"
)

// Compile-time interface assertion.
var _ engine.CodeRunner = (*Runner)(nil)

// Runner runs JavaScript snippets for code steps. The snippet body
// receives `input` (the resolved step input) and `step` (the step name)
// and its completion value becomes the step output.
type Runner struct {
	logger *slog.Logger
}

// New creates a runner.
func New() *Runner {
	return &Runner{logger: slog.Default()}
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// wrap embeds the snippet in a function so `return` works at the top
// level and the arguments are plain locals.
func wrap(source string) string {
	return "(function(input, step) {\n" + source + "\n})(__input, __step)"
}

// Run executes the snippet. The context deadline interrupts the VM, so a
// snippet stuck in a loop cannot outlive its step timeout.
func (r *Runner) Run(ctx context.Context, source string, args any, stepName string) (any, error) {
	program, err := goja.Compile(stepName+".js", wrap(source), true)
	if err != nil {
		return nil, fmt.Errorf("code step %q does not compile: %w", stepName, err)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if err := vm.Set("__input", args); err != nil {
		return nil, fmt.Errorf("failed to bind input: %w", err)
	}
	if err := vm.Set("__step", stepName); err != nil {
		return nil, fmt.Errorf("failed to bind step name: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	value, err := vm.RunProgram(program)
	if err != nil {
		if _, interrupted := err.(*goja.InterruptedError); interrupted {
			return nil, fmt.Errorf("code step %q interrupted: %w", stepName, ctx.Err())
		}
		return nil, fmt.Errorf("code step %q failed: %w", stepName, err)
	}
	return normalize(value.Export())
}

// Validate compiles the snippet without running it.
func (r *Runner) Validate(ctx context.Context, source, stepName string) (*engine.CodeValidation, error) {
	if _, err := goja.Compile(stepName+".js", wrap(source), true); err != nil {
		return &engine.CodeValidation{
			OK:       false,
			Problems: []string{err.Error()},
		}, nil
	}
	return &engine.CodeValidation{OK: true}, nil
}

// normalize round-trips the exported value through JSON so outputs have
// the same shape (map[string]any, []any, float64) regardless of which Go
// types the VM produced.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("code output is not JSON-serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
