package ai

import (
	"context"
	"time"
)

// Document roles. Primary material carries the content questions are drawn from,
// reference material only shows the expected style.
const (
	RolePrimary   = "primary"
	RoleReference = "reference"
)

// Document is a prepared source attached to a model request.
type Document struct {
	Title    string
	Role     string
	MIMEType string
	Text     string // optimized text; preferred over Data when set
	Data     []byte // raw bytes for documents without extractable text
}

// Request represents a single generation call against a model service.
type Request struct {
	RequestID    string
	Model        string
	SystemPrompt string
	Prompt       string
	Documents    []Document
	MaxTokens    int
	Temperature  float64
}

type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client interface for model services like Anthropic or any OpenAI-compatible endpoint.
type Client interface {
	Name() string
	Do(ctx context.Context, req Request) (Response, error)
}

// ClientOptions configures an HTTP-backed client.
type ClientOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}
