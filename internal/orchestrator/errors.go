package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

const (
	StagePreparation = "preparation"
	StageProvider    = "provider"
	StageParsing     = "parsing"
)

// StageError says which step of a generation failed. The wrapped error keeps its original
// classification for errors.As.
type StageError struct {
	Stage    string
	Strategy string
	Err      error
	// ContentTooLarge is set when rate limiting hit a request carrying large documents.
	ContentTooLarge bool
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage)
	b.WriteString(" failed")
	if e.Strategy != "" {
		fmt.Fprintf(&b, " (%s)", e.Strategy)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if e.ContentTooLarge {
		b.WriteString("; the documents are probably too large")
	}
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

// ExhaustedError is returned when the primary service and at least one fallback all failed.
type ExhaustedError struct {
	Attempts []error
}

func (e *ExhaustedError) Error() string {
	msgs := make([]string, len(e.Attempts))
	for i, err := range e.Attempts {
		msgs[i] = err.Error()
	}
	return "both primary and backup AI services failed: " + strings.Join(msgs, "; ")
}

func (e *ExhaustedError) Unwrap() []error { return e.Attempts }

// attemptError labels a strategy failure with the strategy that produced it.
type attemptError struct {
	strategy string
	err      error
}

func (e *attemptError) Error() string { return e.strategy + ": " + e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

// StageOf returns the failing stage, or "" when err is not a StageError.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
