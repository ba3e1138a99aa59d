package ai

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited matches every rate-limit failure through errors.Is.
var ErrRateLimited = errors.New("rate_limited")

// RateLimitError represents a 429 or an explicit quota rejection from a provider.
type RateLimitError struct {
	Provider   string
	Model      string
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit: %s/%s - %s", e.Provider, e.Model, e.Reason)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// HTTPError represents an HTTP status error from a provider that has no more specific type.
type HTTPError struct {
	StatusCode int
	Body       string
	Provider   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Provider, e.Body)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == 429
}

// AuthError is returned for 401/403 and missing credentials. Never retried.
type AuthError struct {
	StatusCode int
	Provider   string
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("auth error from %s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("auth error from %s (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

// NetworkError wraps transport failures, including adapter-enforced timeouts.
type NetworkError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *NetworkError) Error() string {
	kind := "network error"
	if e.Timeout {
		kind = "timeout"
	}
	return fmt.Sprintf("%s calling %s: %v", kind, e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError represents a malformed request. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// StatusError maps a non-2xx provider status onto the taxonomy.
func StatusError(provider, model string, status int, body string, retryAfter time.Duration) error {
	switch {
	case status == 429:
		return &RateLimitError{Provider: provider, Model: model, Reason: body, RetryAfter: retryAfter}
	case status == 401 || status == 403:
		return &AuthError{StatusCode: status, Provider: provider, Message: body}
	case status == 400 || status == 422:
		return &ValidationError{Message: fmt.Sprintf("%s rejected request (HTTP %d): %s", provider, status, body)}
	default:
		return &HTTPError{StatusCode: status, Body: body, Provider: provider}
	}
}
