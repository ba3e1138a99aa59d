// Package limiter paces calls to a model service inside a rolling admission window.
package limiter

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultCallsPerMinute  = 10
	DefaultTokensPerMinute = 50000
	DefaultLargeCooldown   = 3 * time.Second
	DefaultWindow          = time.Minute
)

type Options struct {
	CallsPerMinute  int
	TokensPerMinute int
	// LargeCooldown is added when one request exceeds a tenth of TokensPerMinute.
	LargeCooldown time.Duration
	Window        time.Duration

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Governor admits one caller at a time and spaces calls evenly across the window.
// Use one instance per provider and share it between requests.
type Governor struct {
	name string
	opts Options
	slot chan struct{}

	mu          sync.Mutex
	lastCall    time.Time
	windowStart time.Time
	callCount   int
}

// Snapshot is the governor state for diagnostics.
type Snapshot struct {
	Name          string
	CallsInWindow int
	WindowStart   time.Time
	LastCall      time.Time
}

func New(name string, opts Options) *Governor {
	if opts.CallsPerMinute <= 0 {
		opts.CallsPerMinute = DefaultCallsPerMinute
	}
	if opts.TokensPerMinute <= 0 {
		opts.TokensPerMinute = DefaultTokensPerMinute
	}
	if opts.LargeCooldown < 0 {
		opts.LargeCooldown = 0
	} else if opts.LargeCooldown == 0 {
		opts.LargeCooldown = DefaultLargeCooldown
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Governor{name: name, opts: opts, slot: make(chan struct{}, 1)}
}

func (g *Governor) Name() string { return g.name }

// Admit blocks until the caller may issue a request of estimatedTokens. It only fails when ctx
// is cancelled, with ctx.Err().
func (g *Governor) Admit(ctx context.Context, estimatedTokens int) error {
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.slot }()

	wait := g.plan(estimatedTokens)
	if wait > 0 {
		if err := g.opts.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.lastCall = g.opts.Now()
	g.callCount++
	g.mu.Unlock()
	return nil
}

// plan resets an elapsed window and returns how long the caller has to wait.
func (g *Governor) plan(estimatedTokens int) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.opts.Now()
	if g.windowStart.IsZero() || now.Sub(g.windowStart) >= g.opts.Window {
		g.windowStart = now
		g.callCount = 0
	}

	var wait time.Duration
	if !g.lastCall.IsZero() {
		spacing := g.opts.Window / time.Duration(g.opts.CallsPerMinute)
		if since := now.Sub(g.lastCall); since < spacing {
			wait = spacing - since
		}
	}
	if estimatedTokens > g.opts.TokensPerMinute/10 {
		wait += g.opts.LargeCooldown
	}
	return wait
}

func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{Name: g.name, CallsInWindow: g.callCount, WindowStart: g.windowStart, LastCall: g.lastCall}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Registry hands out one Governor per provider name, so services that share a provider
// share its admission window.
type Registry struct {
	opts Options

	mu     sync.Mutex
	byName map[string]*Governor
	order  []string
}

func NewRegistry(opts Options) *Registry {
	return &Registry{opts: opts, byName: make(map[string]*Governor)}
}

// Get returns the governor for name, creating it on first use.
func (r *Registry) Get(name string) *Governor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.byName[name]; ok {
		return g
	}
	g := New(name, r.opts)
	r.byName[name] = g
	r.order = append(r.order, name)
	return g
}

// All returns every governor in creation order.
func (r *Registry) All() []*Governor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Governor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
