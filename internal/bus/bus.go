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

// Package bus provides an in-process delivery bus for single-node
// deployments. Deliveries are handed to the registered handler on their
// own goroutine; future-dated deliveries are held on a timer. The bus is
// at-least-once and makes no ordering promises, matching what the engine
// tolerates.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/stepflow/pkg/engine"
)

// Compile-time interface assertion.
var _ engine.Bus = (*InProcess)(nil)

// Handler consumes one delivery.
type Handler func(ctx context.Context, delivery engine.Delivery)

// InProcess is an in-process delivery bus.
type InProcess struct {
	mu      sync.Mutex
	handler Handler
	timers  map[*time.Timer]struct{}
	closed  bool

	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates an in-process bus. Deliveries published before Subscribe
// is called are dropped with a warning.
func New() *InProcess {
	return &InProcess{
		timers: make(map[*time.Timer]struct{}),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (b *InProcess) WithLogger(logger *slog.Logger) *InProcess {
	b.logger = logger
	return b
}

// Subscribe registers the handler. Only one handler is supported; the
// dispatcher fans out internally.
func (b *InProcess) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

// Publish enqueues a delivery. A DeliverAt in the future holds the
// delivery on a timer; everything else is handed off immediately.
func (b *InProcess) Publish(ctx context.Context, delivery engine.Delivery) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	handler := b.handler
	b.mu.Unlock()

	if handler == nil {
		b.logger.Warn("delivery dropped: no handler subscribed",
			"type", delivery.Type,
			"subject", delivery.Subject)
		return nil
	}

	delay := time.Duration(delivery.DeliverAt-time.Now().UnixMilli()) * time.Millisecond
	if delivery.DeliverAt == 0 || delay <= 0 {
		b.dispatch(handler, delivery)
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return
		}
		b.dispatch(handler, delivery)
	})
	b.timers[timer] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *InProcess) dispatch(handler Handler, delivery engine.Delivery) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		handler(context.Background(), delivery)
	}()
}

// Close stops pending timers and waits for in-flight handlers.
func (b *InProcess) Close() {
	b.mu.Lock()
	b.closed = true
	for timer := range b.timers {
		timer.Stop()
	}
	b.timers = make(map[*time.Timer]struct{})
	b.mu.Unlock()
	b.wg.Wait()
}
