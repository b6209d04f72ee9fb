package httpclient

import (
	"net/url"
	"testing"
)

func TestSanitizeURLRedactsSensitiveParams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"api key",
			"https://shop.example.com/tools?api_key=abc123&status=pending",
			"https://shop.example.com/tools?api_key=%5BREDACTED%5D&status=pending",
		},
		{
			"mixed-case token",
			"https://shop.example.com/tools?Access_Token=zzz",
			"https://shop.example.com/tools?Access_Token=%5BREDACTED%5D",
		},
		{
			"password and secret",
			"https://shop.example.com/tools?password=p&webhook_secret=s",
			"https://shop.example.com/tools?password=%5BREDACTED%5D&webhook_secret=%5BREDACTED%5D",
		},
		{
			"clean url untouched",
			"https://shop.example.com/tools?limit=10&page=2",
			"https://shop.example.com/tools?limit=10&page=2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			if err != nil {
				t.Fatalf("failed to parse URL: %v", err)
			}
			if got := sanitizeURL(u); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSanitizeURLNil(t *testing.T) {
	if got := sanitizeURL(nil); got != "" {
		t.Errorf("expected empty string for nil URL, got %q", got)
	}
}
