package ai

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicClient is the primary, document-capable model service.
type AnthropicClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

func NewAnthropicClient(opts ClientOptions) *AnthropicClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = anthropicDefaultBaseURL
	}
	return &AnthropicClient{http: newHTTPClient(opts.Timeout), apiKey: opts.APIKey, baseURL: base}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Title  string           `json:"title,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicMsgReq struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMsgResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &AuthError{Provider: c.Name(), Message: "missing API key"}
	}

	// Documents go first so the instructions can refer to them.
	var blocks []anthropicBlock
	for _, d := range req.Documents {
		blocks = append(blocks, documentBlock(d))
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	payload := anthropicMsgReq{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var r anthropicMsgResp
	if err := postJSON(ctx, c.http, c.Name(), req.Model, c.baseURL+"/v1/messages", headers, payload, &r); err != nil {
		return Response{}, err
	}

	var sb strings.Builder
	for _, part := range r.Content {
		if part.Type == "" || part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return Response{}, &HTTPError{StatusCode: http.StatusBadGateway, Provider: c.Name(), Body: "no content"}
	}
	return Response{Text: sb.String(), TokensIn: r.Usage.InputTokens, TokensOut: r.Usage.OutputTokens}, nil
}

func documentBlock(d Document) anthropicBlock {
	if d.Text != "" || len(d.Data) == 0 {
		return anthropicBlock{
			Type:   "document",
			Title:  d.Title,
			Source: &anthropicSource{Type: "text", MediaType: "text/plain", Data: d.Text},
		}
	}
	mime := d.MIMEType
	if mime == "" {
		mime = "application/pdf"
	}
	src := &anthropicSource{Type: "base64", MediaType: mime, Data: base64.StdEncoding.EncodeToString(d.Data)}
	if strings.HasPrefix(mime, "image/") {
		return anthropicBlock{Type: "image", Source: src}
	}
	return anthropicBlock{
		Type:   "document",
		Title:  d.Title,
		Source: src,
	}
}
