// Package statuscheck reports the readiness of the services quiz generation depends on.
package statuscheck

import (
	"context"
	"errors"
	"time"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/limiter"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BucketPinger checks that a bucket is reachable.
type BucketPinger interface {
	Ping(ctx context.Context, bucket string) error
}

// ConverterStatus reports whether office conversion can run.
type ConverterStatus interface {
	Available() bool
}

// Provider describes one configured model service.
type Provider struct {
	Name   string
	Model  string
	APIKey string
}

// Options configures the Checker. Nil dependencies are reported as disabled.
type Options struct {
	Redis     RedisPinger
	Objects   BucketPinger
	Bucket    string
	Converter ConverterStatus
	Providers []Provider
	Governors []*limiter.Governor
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK       bool   `json:"ok"`
	Disabled bool   `json:"disabled,omitempty"`
	Message  string `json:"message"`
}

// GovernorStatus is the admission window of one provider.
type GovernorStatus struct {
	Name          string    `json:"name"`
	CallsInWindow int       `json:"calls_in_window"`
	LastCall      time.Time `json:"last_call,omitempty"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	OK          bool              `json:"ok"`
	Redis       Status            `json:"redis"`
	S3          Status            `json:"s3"`
	LibreOffice Status            `json:"libreoffice"`
	Providers   map[string]Status `json:"providers"`
	Governors   []GovernorStatus  `json:"governors,omitempty"`
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
	opts Options
}

func New(opts Options) *Checker {
	return &Checker{opts: opts}
}

// Summary returns the current status snapshot. OK is false only when a configured
// dependency is failing.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{
		Redis:       c.checkRedis(ctx),
		S3:          c.checkS3(ctx),
		LibreOffice: c.checkLibreOffice(),
		Providers:   make(map[string]Status, len(c.opts.Providers)),
	}
	s.OK = healthy(s.Redis) && healthy(s.S3)
	for _, p := range c.opts.Providers {
		st := checkProvider(p)
		s.Providers[p.Name] = st
		s.OK = s.OK && healthy(st)
	}
	for _, g := range c.opts.Governors {
		snap := g.Snapshot()
		s.Governors = append(s.Governors, GovernorStatus{Name: snap.Name, CallsInWindow: snap.CallsInWindow, LastCall: snap.LastCall})
	}
	return s
}

func healthy(s Status) bool { return s.OK || s.Disabled }

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.opts.Redis == nil {
		return Status{Disabled: true, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.opts.Redis.Ping(ctx); err != nil {
		return Status{Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.opts.Objects == nil || c.opts.Bucket == "" {
		return Status{Disabled: true, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.opts.Objects.Ping(ctx, c.opts.Bucket); err != nil {
		return Status{Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// Office conversion is optional, so a missing binary never fails the summary.
func (c *Checker) checkLibreOffice() Status {
	if c.opts.Converter == nil {
		return Status{Disabled: true, Message: "Not configured"}
	}
	if !c.opts.Converter.Available() {
		return Status{Disabled: true, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

func checkProvider(p Provider) Status {
	if p.APIKey == "" {
		return Status{Message: "API key missing"}
	}
	return Status{OK: true, Message: "Configured (" + p.Model + ")"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
