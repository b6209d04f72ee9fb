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

// Package daemon wires the engine, storage backend, bus and HTTP API
// into a long-running process.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/stepflow/internal/backend/postgres"
	"github.com/tombee/stepflow/internal/backend/sqlite"
	"github.com/tombee/stepflow/internal/bus"
	"github.com/tombee/stepflow/internal/coderunner"
	"github.com/tombee/stepflow/internal/config"
	"github.com/tombee/stepflow/internal/log"
	"github.com/tombee/stepflow/internal/tools"
	"github.com/tombee/stepflow/pkg/engine"
)

// Options carries build metadata injected by the binary.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the long-running stepflow process.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	store      engine.Store
	closeStore func() error
	bus        *bus.InProcess
	signals    *engine.Signals
	dispatcher *engine.Dispatcher
	clock      engine.Clock

	server *http.Server
}

// New creates a daemon from configuration.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logger := slog.Default()
	clock := engine.SystemClock{}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	deliveryBus := bus.New().WithLogger(logger)
	timers := engine.NewTimers(store, deliveryBus, clock).WithLogger(logger)
	signals := engine.NewSignals(store, deliveryBus, clock).WithLogger(logger)

	invoker, err := tools.NewHTTPInvoker(cfg.Tools.Connections)
	if err != nil {
		closeStore()
		return nil, err
	}
	invoker = invoker.WithLogger(logger)
	runner := coderunner.New().WithLogger(logger)

	stepExec := engine.NewStepExecutor(store, invoker, runner, timers, clock).WithLogger(logger)
	executor := engine.New(store, stepExec, deliveryBus, clock).
		WithLogger(logger).
		WithParallelConcurrency(cfg.Engine.Concurrency)
	dispatcher := engine.NewDispatcher(store, executor, clock).WithLogger(logger)

	d := &Daemon{
		cfg:        cfg,
		opts:       opts,
		logger:     logger,
		store:      store,
		closeStore: closeStore,
		bus:        deliveryBus,
		signals:    signals,
		dispatcher: dispatcher,
		clock:      clock,
	}

	deliveryBus.Subscribe(d.handleDelivery)
	return d, nil
}

func openStore(cfg *config.Config) (engine.Store, func() error, error) {
	switch cfg.Backend.Type {
	case "memory":
		return engine.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := sqlite.New(sqlite.Config{
			Path: cfg.Backend.SQLite.Path,
			WAL:  cfg.Backend.SQLite.WAL == nil || *cfg.Backend.SQLite.WAL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.New(postgres.Config{
			DSN:          cfg.Backend.Postgres.DSN,
			MaxOpenConns: cfg.Backend.Postgres.MaxOpenConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}

// handleDelivery is the bus subscription: every delivery flows through
// the dispatcher, with outcomes logged.
func (d *Daemon) handleDelivery(ctx context.Context, delivery engine.Delivery) {
	rec := &log.DeliveryRecord{
		Type:      delivery.Type,
		Subject:   delivery.Subject,
		DeliverAt: delivery.DeliverAt,
	}
	log.LogDelivery(d.logger, rec)

	started := time.Now()
	outcome, err := d.dispatcher.Dispatch(ctx, delivery)
	res := &log.DispatchResult{Duration: time.Since(started)}
	if err != nil {
		res.Error = err.Error()
	} else if outcome != nil {
		res.Outcome = string(outcome.Status)
	}
	log.LogDispatchResult(d.logger, rec, res)
}

// Start runs the HTTP API until the context is cancelled or the
// listener fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.server = &http.Server{
		Addr:              d.cfg.Listen.Addr,
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.logger.Info("daemon listening",
		"addr", d.cfg.Listen.Addr,
		"backend", d.cfg.Backend.Type,
		"version", d.opts.Version)

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains the HTTP server, stops the bus, and closes the store.
func (d *Daemon) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Listen.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	d.bus.Close()
	if err := d.closeStore(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
