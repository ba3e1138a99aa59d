package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T) (*Breaker, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Unix(1_700_000_000, 0)
	b := New(rdb, 30*time.Second, 5*time.Minute)
	b.now = func() time.Time { return now }
	return b, mr, &now
}

func TestCooldownDoublesAndCaps(t *testing.T) {
	b := New(nil, 30*time.Second, 5*time.Minute)
	assert.Equal(t, 30*time.Second, b.Cooldown(1))
	assert.Equal(t, 60*time.Second, b.Cooldown(2))
	assert.Equal(t, 240*time.Second, b.Cooldown(4))
	assert.Equal(t, 5*time.Minute, b.Cooldown(5))
	assert.Equal(t, 5*time.Minute, b.Cooldown(12))
}

func TestOpenHalfOpenClose(t *testing.T) {
	ctx := context.Background()
	b, mr, now := newTestBreaker(t)

	open, err := b.IsOpen(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.False(t, open)

	d, err := b.Open(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
	assert.True(t, mr.Exists("cb:anthropic:claude"))
	assert.Equal(t, recordTTL, mr.TTL("cb:anthropic:claude"))

	open, err = b.IsOpen(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.True(t, open)

	// other models are unaffected
	open, err = b.IsOpen(ctx, "anthropic", "haiku")
	require.NoError(t, err)
	assert.False(t, open)

	*now = now.Add(31 * time.Second)
	open, err = b.IsOpen(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.False(t, open)
	st, err := b.Status(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, st.State)

	// failed trial call doubles the cooldown
	d, err = b.Open(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, d)

	closed, err := b.Close(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.True(t, closed)
	assert.False(t, mr.Exists("cb:anthropic:claude"))
	st, err = b.Status(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.Equal(t, StateClosed, st.State)
	assert.Zero(t, st.Failures)

	closed, err = b.Close(ctx, "anthropic", "claude")
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestRedisDown(t *testing.T) {
	b, mr, _ := newTestBreaker(t)
	mr.Close()
	_, err := b.IsOpen(context.Background(), "openai", "gpt")
	assert.Error(t, err)
}
