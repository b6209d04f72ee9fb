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

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents workflow definition or input validation failures.
// Use this for duplicate step names, circular dependencies, malformed refs,
// or any other constraint violation that makes an execution non-runnable.
type ValidationError struct {
	// Field identifies which field or step failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType identifies the error category for classification.
func (e *ValidationError) ErrorType() string { return "validation" }

// IsRetryable reports whether retrying could succeed. Validation failures
// are deterministic, so never.
func (e *ValidationError) IsRetryable() bool { return false }

// NotFoundError represents a resource not found error.
// Use this when a requested execution, step result, or event does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "execution", "step result")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType identifies the error category for classification.
func (e *NotFoundError) ErrorType() string { return "not_found" }

// IsRetryable reports whether retrying could succeed.
func (e *NotFoundError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for missing store backends, unset ports, or invalid settings.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "store", "tool_invoker")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType identifies the error category for classification.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable reports whether retrying could succeed.
func (e *ConfigError) IsRetryable() bool { return false }

// TimeoutError represents operation timeouts.
// Use this when a step body or port invocation exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "tool invocation", "step body")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType identifies the error category for classification.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable reports whether retrying could succeed. Timeouts are
// transient by nature.
func (e *TimeoutError) IsRetryable() bool { return true }
