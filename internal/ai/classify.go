package ai

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
)

// Kind is the recoverability class of a provider failure.
type Kind string

const (
	KindNone      Kind = ""
	KindRateLimit Kind = "rate_limit"
	KindServer    Kind = "server"
	KindNetwork   Kind = "network"
	KindAuth      Kind = "auth"
	KindInvalid   Kind = "invalid"
	KindUnknown   Kind = "unknown"
)

// Signatures match whole words only.
var (
	rateLimitSignature = regexp.MustCompile(`\b(?:rate[ _]?limit\w*|too[ _]many[ _]requests|429)\b`)
	networkSignature   = regexp.MustCompile(`\b(?:connection refused|connection reset|broken pipe|timeout|timed out|network|no such host|eof)\b`)
)

// Classify sorts err into one of the recoverability classes.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	// Fatal classes are checked first so a 401 body mentioning "rate limit" stays fatal.
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return KindAuth
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return KindInvalid
	}

	if errors.Is(err, ErrRateLimited) {
		return KindRateLimit
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500 && httpErr.StatusCode < 600:
			return KindServer
		case httpErr.StatusCode == 401 || httpErr.StatusCode == 403:
			return KindAuth
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
			return KindInvalid
		}
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	var stdNetErr net.Error
	if errors.As(err, &stdNetErr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	if rateLimitSignature.MatchString(msg) {
		return KindRateLimit
	}
	if strings.Contains(msg, "malformed") || strings.Contains(msg, "invalid request") || strings.Contains(msg, "bad request") {
		return KindInvalid
	}
	if networkSignature.MatchString(msg) {
		return KindNetwork
	}
	return KindUnknown
}

// IsRateLimit reports whether err should be shown to the caller as "service busy".
func IsRateLimit(err error) bool { return Classify(err) == KindRateLimit }

// IsRecoverable reports whether a retry is likely to succeed: rate limits, 5xx and network errors.
func IsRecoverable(err error) bool {
	switch Classify(err) {
	case KindRateLimit, KindServer, KindNetwork:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err must fail immediately without consuming retry budget.
func IsFatal(err error) bool {
	switch Classify(err) {
	case KindAuth, KindInvalid:
		return true
	default:
		return false
	}
}
