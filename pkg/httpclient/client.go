// Package httpclient builds the HTTP clients stepflow uses to call tool
// connection endpoints. Every client carries the same transport stack:
// User-Agent injection, a correlation header derived from the active
// trace, sanitized request logging, TLS 1.2+ and pooled connections.
//
// Retries are deliberately absent here: step retry policy belongs to
// the engine, and a transport-level retry would multiply attempts
// behind the engine's back.
//
// Example usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "stepflow/1.0"
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
//
//	resp, err := client.Get("https://shop.example.com/tools")
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Config carries the per-client knobs.
type Config struct {
	// Timeout bounds the whole request including body read. Zero means
	// the caller supplies deadlines through the request context.
	Timeout time.Duration

	// UserAgent is sent on requests that do not set their own.
	// Required.
	UserAgent string
}

// DefaultConfig returns the settings used for tool connections.
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		UserAgent: "stepflow-http-client/1.0",
	}
}

// Validate reports a config the factory would refuse.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", c.Timeout)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}
	return nil
}

// New builds an HTTP client from the configuration.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: newLoggingTransport(base, cfg.UserAgent),
		Timeout:   cfg.Timeout,
	}, nil
}
