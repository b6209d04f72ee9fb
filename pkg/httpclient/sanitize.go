package httpclient

import (
	"net/url"
	"strings"
)

// Query parameter names whose values never belong in a log line.
// Matched as substrings, case-insensitively, so api_key, ApiKey and
// access_token are all caught.
var redactedParams = []string{
	"key",
	"token",
	"secret",
	"password",
	"auth",
	"credential",
}

// sanitizeURL renders a URL for logging with sensitive query values
// replaced by a placeholder.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	for name := range q {
		lower := strings.ToLower(name)
		for _, marker := range redactedParams {
			if strings.Contains(lower, marker) {
				q.Set(name, "[REDACTED]")
				break
			}
		}
	}

	clean := *u
	clean.RawQuery = q.Encode()
	return clean.String()
}
