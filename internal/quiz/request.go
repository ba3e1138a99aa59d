// Package quiz describes a generation request and renders the prompts sent to model services.
package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/document"
)

const (
	TypeMCQ         = "mcq"
	TypeTrueFalse   = "trueFalse"
	TypeShortAnswer = "shortAnswer"

	DefaultQuestionCount = 10
	MaxQuestionCount     = 50
)

var ErrInvalidRequest = errors.New("invalid quiz request")

var (
	knownTypes        = map[string]bool{TypeMCQ: true, TypeTrueFalse: true, TypeShortAnswer: true}
	knownDifficulties = map[string]bool{"easy": true, "medium": true, "hard": true, "mixed": true}
)

// Request is one quiz generation call. Documents may be empty, in which case Prompt is the topic.
type Request struct {
	Prompt        string               `json:"prompt"`
	Documents     []document.Reference `json:"documents,omitempty"`
	QuestionCount int                  `json:"questionCount"`
	QuestionTypes []string             `json:"questionTypes,omitempty"`
	Difficulty    string               `json:"difficulty,omitempty"`
	FeedbackMode  string               `json:"feedbackMode,omitempty"`
}

// Validate fills defaults and rejects requests that cannot be generated.
func (r *Request) Validate() error {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.Prompt == "" && len(r.Documents) == 0 {
		return fmt.Errorf("%w: a prompt or at least one document is required", ErrInvalidRequest)
	}

	if r.QuestionCount == 0 {
		r.QuestionCount = DefaultQuestionCount
	}
	if r.QuestionCount < 1 || r.QuestionCount > MaxQuestionCount {
		return fmt.Errorf("%w: question count must be between 1 and %d", ErrInvalidRequest, MaxQuestionCount)
	}

	if len(r.QuestionTypes) == 0 {
		r.QuestionTypes = []string{TypeMCQ}
	}
	for _, t := range r.QuestionTypes {
		if !knownTypes[t] {
			return fmt.Errorf("%w: unknown question type %q", ErrInvalidRequest, t)
		}
	}

	r.Difficulty = strings.ToLower(strings.TrimSpace(r.Difficulty))
	if r.Difficulty == "" {
		r.Difficulty = "medium"
	}
	if !knownDifficulties[r.Difficulty] {
		return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, r.Difficulty)
	}
	if r.FeedbackMode == "" {
		r.FeedbackMode = "immediate"
	}

	for i := range r.Documents {
		d := &r.Documents[i]
		if d.Role == "" {
			d.Role = document.RolePrimary
		}
		if d.Role != document.RolePrimary && d.Role != document.RoleReference {
			return fmt.Errorf("%w: document %d has unknown role %q", ErrInvalidRequest, i+1, d.Role)
		}
		if d.URI == "" && d.Text == "" {
			return fmt.Errorf("%w: document %d has neither uri nor text", ErrInvalidRequest, i+1)
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("document-%d", i+1)
		}
	}
	return nil
}

// HasDocuments reports whether the file-based path applies.
func (r *Request) HasDocuments() bool { return len(r.Documents) > 0 }

// Names returns the names of the documents with the given role.
func (r *Request) Names(role string) []string {
	var out []string
	for _, d := range r.Documents {
		if d.Role == role {
			out = append(out, d.Name)
		}
	}
	return out
}
