package provider

import (
	"context"
	"fmt"
	"time"
)

// Provider is the model boundary: one synchronous completion call. Callers
// own retries, rate limiting and circuit breaking.
type Provider interface {
	ID() string
	Complete(ctx context.Context, req *CompletionRequest) (string, error)
	HealthCheck(ctx context.Context) error
}

// CompletionRequest is a single chat-completion request. JSONOnly asks the
// provider for a constrained JSON object response where supported.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSONOnly    bool
}

// Config holds connection settings for a provider instance.
type Config struct {
	Type     string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// APIError is a non-2xx provider response. Status drives the caller's
// transient/terminal classification.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error %d: %s", e.Status, e.Body)
}

// Transient reports whether the failure is worth retrying: rate limiting or
// a server-side error.
func (e *APIError) Transient() bool {
	return e.Status == 429 || e.Status >= 500
}
