// Package retry runs an operation with capped exponential backoff, retrying only recoverable
// failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
)

// Config is the backoff schedule: retry k waits min(BaseDelay*BackoffMultiplier^(k-1), MaxDelay).
type Config struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// Default is the process-wide schedule.
var Default = Config{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffMultiplier: 2}

func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("retry: max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.BaseDelay < 0 || c.BaseDelay > c.MaxDelay {
		return fmt.Errorf("retry: base delay %s must be between 0 and max delay %s", c.BaseDelay, c.MaxDelay)
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("retry: backoff multiplier must be > 1, got %g", c.BackoffMultiplier)
	}
	return nil
}

// Delay returns the wait before retry number k (1-based).
func Delay(c Config, k int) time.Duration {
	if k < 1 {
		return 0
	}
	d := float64(c.BaseDelay) * math.Pow(c.BackoffMultiplier, float64(k-1))
	if d >= float64(c.MaxDelay) || math.IsInf(d, 1) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

type options struct {
	shouldRetry func(error) bool
	onRetry     func(attempt int, delay time.Duration, err error)
}

type Option func(*options)

// WithShouldRetry replaces the recoverability predicate (ai.IsRecoverable by default).
func WithShouldRetry(fn func(error) bool) Option {
	return func(o *options) { o.shouldRetry = fn }
}

// WithOnRetry is called before the backoff sleep of every retry. attempt is the number of the
// attempt about to run (2 for the first retry).
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Run calls op until it succeeds, fails with a non-recoverable error, or MaxRetries retries are
// spent. The last error is returned unchanged.
func Run[T any](ctx context.Context, op func(ctx context.Context) (T, error), cfg Config, opts ...Option) (T, error) {
	var zero T
	if err := cfg.Validate(); err != nil {
		return zero, err
	}
	o := options{shouldRetry: ai.IsRecoverable}
	for _, fn := range opts {
		fn(&o)
	}

	retries := 0
	backoff := goretry.WithMaxRetries(uint64(cfg.MaxRetries), goretry.BackoffFunc(func() (time.Duration, bool) {
		retries++
		return Delay(cfg, retries), false
	}))

	var (
		result  T
		lastErr error
		attempt int
	)
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || !o.shouldRetry(err) || attempt > cfg.MaxRetries {
			return err
		}
		if o.onRetry != nil {
			o.onRetry(attempt+1, Delay(cfg, attempt), err)
		}
		return goretry.RetryableError(err)
	})
	if err != nil {
		// Cancellation during a backoff sleep surfaces as ctx.Err(); keep the provider failure
		// visible alongside it.
		if lastErr != nil && !errors.Is(err, lastErr) && errors.Is(err, ctx.Err()) {
			return zero, fmt.Errorf("%w (last error: %w)", err, lastErr)
		}
		return zero, err
	}
	return result, nil
}
