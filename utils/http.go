package utils

import (
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a single cloud request.
const DefaultHTTPTimeout = 30 * time.Second

// NewHTTPClient returns a client for cloud calls. Zero timeout means the default.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}
