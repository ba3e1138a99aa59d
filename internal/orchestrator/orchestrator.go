// Package orchestrator drives one quiz generation: it prepares documents, picks a strategy,
// paces and retries provider calls, and interprets the answer.
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/ai"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/chunking"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/document"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/interpreter"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/limiter"
	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/retry"
)

// Progress receives human-readable status lines. It may be nil.
type Progress func(message string)

// Service is one model service with the governor that paces it. Governors are shared across
// generations; the same governor must be used for every call to a provider.
type Service struct {
	Client   ai.Client
	Model    string
	Governor *limiter.Governor
}

// Preparer turns a reference into prepared content.
type Preparer interface {
	Prepare(ctx context.Context, ref document.Reference) (*document.Prepared, error)
}

// Cooldown is a shared per provider/model circuit breaker.
type Cooldown interface {
	IsOpen(ctx context.Context, provider, model string) (bool, error)
	Open(ctx context.Context, provider, model string) (time.Duration, error)
	Close(ctx context.Context, provider, model string) (bool, error)
}

// Status is the last known state of a generation, for polling clients.
type Status struct {
	Status   string
	Stage    string
	Message  string
	Start    *time.Time
	End      *time.Time
	Metadata map[string]any
}

// StatusStore keeps generation status and progress lines by request id.
type StatusStore interface {
	Set(ctx context.Context, requestID string, st Status) error
	AppendProgress(ctx context.Context, requestID, message string) error
}

// Budgets are token budgets per document role.
type Budgets struct {
	Primary   int
	Reference int
	// LargeFile marks a document as large; binary documents are estimated at this size.
	LargeFile int
}

var DefaultBudgets = Budgets{Primary: 12000, Reference: 8000, LargeFile: 15000}

// Dependencies wires an Orchestrator. Primary, Secondary and Documents are required.
type Dependencies struct {
	Primary   Service
	Secondary Service
	Documents Preparer

	Segmenter   chunking.Segmenter // nil uses the heuristic segmenter
	Interpreter *interpreter.Interpreter
	Breaker     Cooldown    // nil disables cooldown checks
	Status      StatusStore // nil disables status tracking

	// Retry is the schedule for paths whose own schedule is unset; zero uses retry.Default.
	Retry     retry.Config
	FileRetry retry.Config
	TextRetry retry.Config
	Budgets   Budgets

	// ServiceLabel names the primary service in progress messages.
	ServiceLabel string
	Temperature  float64
	MaxTokens    int
	NewID        func() string
}

type Orchestrator struct {
	deps       Dependencies
	strategies []strategy
}

func New(deps Dependencies) *Orchestrator {
	if deps.Interpreter == nil {
		deps.Interpreter = interpreter.New()
	}
	if deps.Retry == (retry.Config{}) {
		deps.Retry = retry.Default
	}
	if deps.FileRetry == (retry.Config{}) {
		deps.FileRetry = deps.Retry
	}
	if deps.TextRetry == (retry.Config{}) {
		deps.TextRetry = deps.Retry
	}
	if deps.Budgets.Primary <= 0 {
		deps.Budgets.Primary = DefaultBudgets.Primary
	}
	if deps.Budgets.Reference <= 0 {
		deps.Budgets.Reference = DefaultBudgets.Reference
	}
	if deps.Budgets.LargeFile <= 0 {
		deps.Budgets.LargeFile = DefaultBudgets.LargeFile
	}
	if deps.ServiceLabel == "" {
		deps.ServiceLabel = "Smart Hive AI"
	}
	if deps.Temperature == 0 {
		deps.Temperature = 0.7
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	o := &Orchestrator{deps: deps}
	o.strategies = o.defaultStrategies()
	return o
}
