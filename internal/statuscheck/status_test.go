package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/limiter"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type bucketFunc func(ctx context.Context, bucket string) error

func (f bucketFunc) Ping(ctx context.Context, bucket string) error { return f(ctx, bucket) }

type available bool

func (a available) Available() bool { return bool(a) }

func TestSummaryAllHealthy(t *testing.T) {
	var bucket string
	c := New(Options{
		Redis:     pingFunc(func(context.Context) error { return nil }),
		Objects:   bucketFunc(func(_ context.Context, b string) error { bucket = b; return nil }),
		Bucket:    "course-files",
		Converter: available(true),
		Providers: []Provider{{Name: "anthropic", Model: "claude", APIKey: "k"}},
		Governors: []*limiter.Governor{limiter.New("anthropic", limiter.Options{})},
	})

	s := c.Summary(context.Background())
	assert.True(t, s.OK)
	assert.Equal(t, "course-files", bucket)
	assert.True(t, s.Redis.OK)
	assert.True(t, s.S3.OK)
	assert.True(t, s.LibreOffice.OK)
	assert.Equal(t, "Configured (claude)", s.Providers["anthropic"].Message)
	assert.Len(t, s.Governors, 1)
	assert.Equal(t, "anthropic", s.Governors[0].Name)
}

func TestSummaryOptionalDependencies(t *testing.T) {
	s := New(Options{
		Converter: available(false),
		Providers: []Provider{{Name: "anthropic", APIKey: "k"}},
	}).Summary(context.Background())

	assert.True(t, s.OK)
	assert.True(t, s.Redis.Disabled)
	assert.True(t, s.S3.Disabled)
	assert.True(t, s.LibreOffice.Disabled)
	assert.Equal(t, "Binary not found", s.LibreOffice.Message)
}

func TestSummaryFailures(t *testing.T) {
	s := New(Options{
		Redis:     pingFunc(func(context.Context) error { return errors.New(strings.Repeat("x", 200)) }),
		Objects:   bucketFunc(func(context.Context, string) error { return context.DeadlineExceeded }),
		Bucket:    "b",
		Providers: []Provider{{Name: "cohere"}},
	}).Summary(context.Background())

	assert.False(t, s.OK)
	assert.Len(t, s.Redis.Message, 120)
	assert.Equal(t, "timeout", s.S3.Message)
	assert.Equal(t, "API key missing", s.Providers["cohere"].Message)
}
