package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint. It is the text-only
// secondary service, so binary documents are rejected.
type OpenAIClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
	name    string
}

// NewOpenAIClient builds a client. name labels the provider in logs and metrics ("openai", "cohere", ...).
func NewOpenAIClient(name string, opts ClientOptions) *OpenAIClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = openAIDefaultBaseURL
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIClient{http: newHTTPClient(opts.Timeout), apiKey: opts.APIKey, baseURL: base, name: name}
}

func (c *OpenAIClient) Name() string { return c.name }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatReq struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &AuthError{Provider: c.Name(), Message: "missing API key"}
	}

	var messages []openAIMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}

	var userPrompt strings.Builder
	for _, d := range req.Documents {
		if d.Text == "" && len(d.Data) > 0 {
			return Response{}, &ValidationError{Message: fmt.Sprintf("%s cannot attach binary document %q", c.Name(), d.Title)}
		}
		fmt.Fprintf(&userPrompt, "[%s]\n%s\n\n", d.Title, d.Text)
	}
	userPrompt.WriteString(req.Prompt)
	messages = append(messages, openAIMessage{Role: "user", Content: userPrompt.String()})

	payload := openAIChatReq{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var r openAIChatResp
	if err := postJSON(ctx, c.http, c.Name(), req.Model, c.baseURL+"/chat/completions", headers, payload, &r); err != nil {
		return Response{}, err
	}
	if len(r.Choices) == 0 {
		return Response{}, &HTTPError{StatusCode: http.StatusBadGateway, Provider: c.Name(), Body: "no choices"}
	}

	return Response{
		Text:      r.Choices[0].Message.Content,
		TokensIn:  r.Usage.PromptTokens,
		TokensOut: r.Usage.CompletionTokens,
	}, nil
}
