package llm

import (
	"net/http"
	"strings"
	"time"
)

// Option tweaks a backend client.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient overrides the internal HTTP client (useful for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// pickSystem prefers the configured prompt over the extractor's default.
func pickSystem(configured, fromRequest string) string {
	if p := strings.TrimSpace(configured); p != "" {
		return p
	}
	return strings.TrimSpace(fromRequest)
}
