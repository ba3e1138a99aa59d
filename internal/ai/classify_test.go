package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"rate limit type", &RateLimitError{Provider: "anthropic", Model: "m"}, KindRateLimit},
		{"429 http", &HTTPError{StatusCode: 429, Provider: "openai"}, KindRateLimit},
		{"rate limit message", errors.New("Request failed: rate_limit_error"), KindRateLimit},
		{"too many requests message", errors.New("Too Many Requests"), KindRateLimit},
		{"500", &HTTPError{StatusCode: 500}, KindServer},
		{"503 wrapped", fmt.Errorf("call: %w", &HTTPError{StatusCode: 503}), KindServer},
		{"404", &HTTPError{StatusCode: 404}, KindInvalid},
		{"401 http", &HTTPError{StatusCode: 401}, KindAuth},
		{"auth", &AuthError{StatusCode: 403, Message: "rate limit exceeded for key"}, KindAuth},
		{"validation", &ValidationError{Message: "bad"}, KindInvalid},
		{"network", &NetworkError{Provider: "x", Err: errors.New("dial")}, KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"connection reset", errors.New("read: connection reset by peer"), KindNetwork},
		{"unexpected eof", errors.New("unexpected EOF"), KindNetwork},
		{"rate limited word", errors.New("provider ratelimited the key"), KindRateLimit},
		{"429 in text", errors.New("upstream returned status 429"), KindRateLimit},
		{"429 inside id", errors.New("request 84291 failed"), KindUnknown},
		{"eof inside word", errors.New("reviewer geoffrey rejected the draft"), KindUnknown},
		{"timeout in text", errors.New("read tcp: i/o timeout"), KindNetwork},
		{"malformed", errors.New("malformed payload"), KindInvalid},
		{"other", errors.New("something odd"), KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestRecoverability(t *testing.T) {
	assert.True(t, IsRecoverable(&RateLimitError{}))
	assert.True(t, IsRecoverable(&HTTPError{StatusCode: 502}))
	assert.True(t, IsRecoverable(&NetworkError{Timeout: true, Err: context.DeadlineExceeded}))
	assert.False(t, IsRecoverable(&AuthError{StatusCode: 401}))
	assert.False(t, IsRecoverable(&HTTPError{StatusCode: 400}))
	assert.False(t, IsRecoverable(errors.New("something odd")))

	assert.True(t, IsFatal(&AuthError{}))
	assert.True(t, IsFatal(&ValidationError{}))
	assert.False(t, IsFatal(&RateLimitError{}))

	assert.True(t, IsRateLimit(fmt.Errorf("wrapped: %w", &RateLimitError{})))
	assert.False(t, IsRateLimit(&HTTPError{StatusCode: 500}))
}

func TestStatusError(t *testing.T) {
	var rl *RateLimitError
	assert.ErrorAs(t, StatusError("p", "m", 429, "slow down", 0), &rl)
	assert.ErrorIs(t, StatusError("p", "m", 429, "", 0), ErrRateLimited)

	var ae *AuthError
	assert.ErrorAs(t, StatusError("p", "m", 401, "", 0), &ae)
	assert.ErrorAs(t, StatusError("p", "m", 403, "", 0), &ae)

	var ve *ValidationError
	assert.ErrorAs(t, StatusError("p", "m", 400, "", 0), &ve)

	var he *HTTPError
	assert.ErrorAs(t, StatusError("p", "m", 529, "overloaded", 0), &he)
	assert.Equal(t, 529, he.StatusCode)
}
