package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	client, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if client.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", client.Timeout)
	}
}

func TestNewZeroTimeoutDefersToContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("expected no client timeout, got %v", client.Timeout)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"negative timeout", func(cfg *Config) { cfg.Timeout = -time.Second }},
		{"empty user agent", func(cfg *Config) { cfg.UserAgent = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected config error")
			}
		})
	}
}

func TestClientCarriesUserAgent(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "stepflow/test"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if gotAgent != "stepflow/test" {
		t.Errorf("expected User-Agent stepflow/test, got %q", gotAgent)
	}
}
