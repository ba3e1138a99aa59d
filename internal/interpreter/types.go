// Package interpreter turns raw model output into validated quiz questions, or a clearly tagged
// fallback when the output cannot be trusted.
package interpreter

import "fmt"

const (
	StatusOK       = "ok"
	StatusFallback = "fallback"

	FormatDirectAnswer = "direct-answer"
	FormatAccounting   = "accounting"
)

type Question struct {
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
}

type Quiz struct {
	Questions []Question `json:"questions"`
}

// FallbackResult carries whatever could be salvaged from output that failed validation.
type FallbackResult struct {
	SolutionFormat string     `json:"solutionFormat"`
	AccountingType string     `json:"accountingType,omitempty"`
	Question       string     `json:"question,omitempty"`
	CorrectAnswer  string     `json:"correctAnswer,omitempty"`
	FinalAnswer    string     `json:"finalAnswer,omitempty"`
	Explanation    string     `json:"explanation,omitempty"`
	Questions      []Question `json:"questions,omitempty"`
	Reason         string     `json:"reason"`
	RawPreview     string     `json:"rawPreview"`
}

// Result is either a validated quiz (Status ok) or a fallback (Status fallback). Callers must
// branch on Status.
type Result struct {
	Status   string          `json:"status"`
	Quiz     *Quiz           `json:"quiz,omitempty"`
	Fallback *FallbackResult `json:"fallback,omitempty"`
}

func (r Result) IsFallback() bool { return r.Status == StatusFallback }

// ParseError is returned only when nothing usable could be recovered.
type ParseError struct {
	Reason     string
	RawPreview string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %s", e.Reason)
}

// OptionCountError reports a question whose option list has the wrong length.
type OptionCountError struct {
	Index    int // 1-based
	Question string
	Expected int
	Got      int
}

func (e *OptionCountError) Error() string {
	return fmt.Sprintf("question %d (%q) has %d options: expected %d, got %d", e.Index, clipRunes(e.Question, 80), e.Got, e.Expected, e.Got)
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
