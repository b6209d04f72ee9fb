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
	"log/slog"
	"time"
)

// DeliveryRecord describes one bus delivery for logging purposes.
type DeliveryRecord struct {
	// Type is the delivery type (e.g., "workflow.execution.created").
	Type string

	// Subject is the execution the delivery targets.
	Subject string

	// DeliverAt is the requested delivery time in epoch milliseconds,
	// zero for immediate deliveries.
	DeliverAt int64
}

// DispatchResult describes the outcome of dispatching a delivery.
type DispatchResult struct {
	// Outcome is the execution outcome label (completed, error, ...).
	Outcome string

	// Error is the error message if dispatch failed.
	Error string

	// Duration is how long the dispatch took.
	Duration time.Duration
}

// LogDelivery logs an incoming bus delivery.
func LogDelivery(logger *slog.Logger, rec *DeliveryRecord) {
	attrs := []any{
		EventKey, "delivery_received",
		"type", rec.Type,
		ExecutionIDKey, rec.Subject,
	}
	if rec.DeliverAt > 0 {
		attrs = append(attrs, "deliver_at_epoch_ms", rec.DeliverAt)
	}
	logger.Debug("delivery received", attrs...)
}

// LogDispatchResult logs the outcome of a dispatched delivery. Failures
// log at warn, everything else at debug.
func LogDispatchResult(logger *slog.Logger, rec *DeliveryRecord, res *DispatchResult) {
	attrs := []any{
		EventKey, "delivery_dispatched",
		"type", rec.Type,
		ExecutionIDKey, rec.Subject,
		"outcome", res.Outcome,
		DurationKey, res.Duration.Milliseconds(),
	}
	if res.Error != "" {
		attrs = append(attrs, "error", res.Error)
		logger.Warn("delivery dispatch failed", attrs...)
		return
	}
	logger.Debug("delivery dispatched", attrs...)
}
