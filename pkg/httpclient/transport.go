package httpclient

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// loggingTransport decorates a RoundTripper with the ambient behavior
// every stepflow client carries: User-Agent injection, a correlation
// header from the active trace, and sanitized request logs.
type loggingTransport struct {
	base      http.RoundTripper
	userAgent string
}

func newLoggingTransport(base http.RoundTripper, userAgent string) *loggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &loggingTransport{base: base, userAgent: userAgent}
}

// RoundTrip implements http.RoundTripper.
func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if sc := trace.SpanContextFromContext(req.Context()); sc.HasTraceID() {
		req.Header.Set("X-Correlation-ID", sc.TraceID().String())
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start).Milliseconds()

	logURL := sanitizeURL(req.URL)
	switch {
	case err != nil:
		slog.Warn("http request failed",
			"method", req.Method,
			"url", logURL,
			"duration_ms", elapsed,
			"error", err.Error())
	case resp.StatusCode >= 400:
		slog.Warn("http request",
			"method", req.Method,
			"url", logURL,
			"status", resp.StatusCode,
			"duration_ms", elapsed)
	default:
		slog.Debug("http request",
			"method", req.Method,
			"url", logURL,
			"status", resp.StatusCode,
			"duration_ms", elapsed)
	}
	return resp, err
}
