// Package breaker keeps per provider/model cooldown state in Redis so that every instance of the
// service stops calling a model service that keeps failing.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	DefaultBaseBackoff = 30 * time.Second
	DefaultMaxBackoff  = 5 * time.Minute

	recordTTL = 10 * time.Minute
)

// Breaker stores one hash per provider:model under cb:<provider>:<model>.
type Breaker struct {
	rdb         redis.Cmdable
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

// Status is the stored breaker record.
type Status struct {
	State    string
	Failures int
	RetryAt  time.Time
}

func New(rdb redis.Cmdable, baseBackoff, maxBackoff time.Duration) *Breaker {
	if baseBackoff <= 0 {
		baseBackoff = DefaultBaseBackoff
	}
	if maxBackoff < baseBackoff {
		maxBackoff = DefaultMaxBackoff
		if maxBackoff < baseBackoff {
			maxBackoff = baseBackoff
		}
	}
	return &Breaker{rdb: rdb, baseBackoff: baseBackoff, maxBackoff: maxBackoff, now: time.Now}
}

func key(provider, model string) string {
	return fmt.Sprintf("cb:%s:%s", provider, model)
}

// Cooldown is the wait after the given number of consecutive failures: base, 2×base, ... capped.
func (b *Breaker) Cooldown(failures int) time.Duration {
	backoff := b.baseBackoff
	for i := 1; i < failures; i++ {
		backoff *= 2
		if backoff >= b.maxBackoff {
			return b.maxBackoff
		}
	}
	return backoff
}

// Open records a failure and starts (or extends) the cooldown.
func (b *Breaker) Open(ctx context.Context, provider, model string) (time.Duration, error) {
	k := key(provider, model)
	failures, err := b.rdb.HIncrBy(ctx, k, "failures", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("breaker open %s: %w", k, err)
	}

	backoff := b.Cooldown(int(failures))
	now := b.now()
	retryAt := now.Add(backoff)

	_, err = b.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, map[string]interface{}{
			"state":     StateOpen,
			"retry_at":  retryAt.Unix(),
			"opened_at": now.Unix(),
		})
		p.Expire(ctx, k, recordTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("breaker open %s: %w", k, err)
	}

	log.Warn().
		Str("provider", provider).
		Str("model", model).
		Dur("cooldown", backoff).
		Int64("failures", failures).
		Time("retry_at", retryAt).
		Msg("circuit breaker opened")
	return backoff, nil
}

// IsOpen reports whether calls should be skipped. An expired cooldown moves the breaker to
// half-open and lets one trial call through.
func (b *Breaker) IsOpen(ctx context.Context, provider, model string) (bool, error) {
	st, err := b.Status(ctx, provider, model)
	if err != nil {
		return false, err
	}
	if st.State != StateOpen {
		return false, nil
	}
	if b.now().Before(st.RetryAt) {
		return true, nil
	}

	if err := b.rdb.HSet(ctx, key(provider, model), "state", StateHalfOpen).Err(); err != nil {
		return false, fmt.Errorf("breaker half-open: %w", err)
	}
	log.Info().Str("provider", provider).Str("model", model).Msg("circuit breaker half-open")
	return false, nil
}

// Close resets the breaker after a successful call and reports whether a record existed.
func (b *Breaker) Close(ctx context.Context, provider, model string) (bool, error) {
	k := key(provider, model)
	n, err := b.rdb.Del(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("breaker close %s: %w", k, err)
	}
	if n > 0 {
		log.Info().Str("provider", provider).Str("model", model).Msg("circuit breaker closed")
	}
	return n > 0, nil
}

func (b *Breaker) Status(ctx context.Context, provider, model string) (Status, error) {
	vals, err := b.rdb.HGetAll(ctx, key(provider, model)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Status{}, fmt.Errorf("breaker status: %w", err)
	}
	st := Status{State: vals["state"]}
	if st.State == "" {
		st.State = StateClosed
	}
	st.Failures, _ = strconv.Atoi(vals["failures"])
	if sec, err := strconv.ParseInt(vals["retry_at"], 10, 64); err == nil {
		st.RetryAt = time.Unix(sec, 0)
	}
	return st, nil
}
