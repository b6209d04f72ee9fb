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

// Package config loads the daemon configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

// Config represents the complete stepflow daemon configuration.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Log     LogConfig     `yaml:"log"`
	Backend BackendConfig `yaml:"backend"`
	Engine  EngineConfig  `yaml:"engine"`
	Tools   ToolsConfig   `yaml:"tools"`
}

// ListenConfig configures the daemon's HTTP listener.
type ListenConfig struct {
	// Addr is the address to listen on.
	// Environment: STEPFLOW_LISTEN
	// Default: 127.0.0.1:8472
	Addr string `yaml:"addr,omitempty"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// LogConfig configures logging. The environment variables documented in
// internal/log take precedence over these fields.
type LogConfig struct {
	// Level sets the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format sets the output format (json, text).
	Format string `yaml:"format,omitempty"`
}

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	// Type is the backend type: memory, sqlite, or postgres.
	// Environment: STEPFLOW_BACKEND
	// Default: memory
	Type string `yaml:"type,omitempty"`

	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Environment: STEPFLOW_SQLITE_PATH
	Path string `yaml:"path,omitempty"`

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	// Default: true
	WAL *bool `yaml:"wal,omitempty"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is the connection string.
	// Environment: STEPFLOW_POSTGRES_DSN
	DSN string `yaml:"dsn,omitempty"`

	// MaxOpenConns bounds the connection pool. Default: 10
	MaxOpenConns int `yaml:"max_open_conns,omitempty"`
}

// EngineConfig configures execution behavior.
type EngineConfig struct {
	// Concurrency bounds how many steps of one dependency level run at
	// once. Default: 4
	Concurrency int `yaml:"concurrency,omitempty"`
}

// ToolsConfig maps connection IDs to tool endpoints.
type ToolsConfig struct {
	Connections map[string]ConnectionConfig `yaml:"connections,omitempty"`
}

// ConnectionConfig describes one tool connection.
type ConnectionConfig struct {
	// URL is the base URL tool invocations are POSTed to.
	URL string `yaml:"url"`

	// Timeout bounds a single invocation round-trip. Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	wal := true
	return &Config{
		Listen: ListenConfig{
			Addr:            "127.0.0.1:8472",
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Backend: BackendConfig{
			Type:   "memory",
			SQLite: SQLiteConfig{WAL: &wal},
			Postgres: PostgresConfig{
				MaxOpenConns: 10,
			},
		},
		Engine: EngineConfig{
			Concurrency: 4,
		},
	}
}

// Load reads configuration from the given path (empty means defaults
// only), applies defaults to zero values, and then applies environment
// overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &stepflowerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &stepflowerrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyDefaults fills in zero values with sensible defaults. This allows
// minimal configs to work without specifying all fields explicitly.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Listen.Addr == "" {
		c.Listen.Addr = defaults.Listen.Addr
	}
	if c.Listen.ShutdownTimeout == 0 {
		c.Listen.ShutdownTimeout = defaults.Listen.ShutdownTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Backend.Type == "" {
		c.Backend.Type = defaults.Backend.Type
	}
	if c.Backend.SQLite.WAL == nil {
		c.Backend.SQLite.WAL = defaults.Backend.SQLite.WAL
	}
	if c.Backend.Postgres.MaxOpenConns == 0 {
		c.Backend.Postgres.MaxOpenConns = defaults.Backend.Postgres.MaxOpenConns
	}
	if c.Engine.Concurrency == 0 {
		c.Engine.Concurrency = defaults.Engine.Concurrency
	}
	for id, conn := range c.Tools.Connections {
		if conn.Timeout == 0 {
			conn.Timeout = 30 * time.Second
			c.Tools.Connections[id] = conn
		}
	}
}

// loadFromEnv applies environment variable overrides.
func (c *Config) loadFromEnv() {
	if addr := os.Getenv("STEPFLOW_LISTEN"); addr != "" {
		c.Listen.Addr = addr
	}
	if backend := os.Getenv("STEPFLOW_BACKEND"); backend != "" {
		c.Backend.Type = backend
	}
	if path := os.Getenv("STEPFLOW_SQLITE_PATH"); path != "" {
		c.Backend.SQLite.Path = path
	}
	if dsn := os.Getenv("STEPFLOW_POSTGRES_DSN"); dsn != "" {
		c.Backend.Postgres.DSN = dsn
	}
	if conc := os.Getenv("STEPFLOW_CONCURRENCY"); conc != "" {
		if n, err := strconv.Atoi(conc); err == nil && n > 0 {
			c.Engine.Concurrency = n
		}
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "memory":
	case "sqlite":
		if c.Backend.SQLite.Path == "" {
			return fmt.Errorf("backend.sqlite.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Backend.Postgres.DSN == "" {
			return fmt.Errorf("backend.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend type %q (expected memory, sqlite, or postgres)", c.Backend.Type)
	}

	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be at least 1")
	}

	for id, conn := range c.Tools.Connections {
		if conn.URL == "" {
			return fmt.Errorf("tools.connections.%s.url is required", id)
		}
	}
	return nil
}
