package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// dialect encodes one provider's chat API over plain JSON.
type dialect interface {
	defaultEndpoint() string
	path() string
	headers(h http.Header, apiKey string)
	body(model string, req Request) any
	decode(payload []byte) (string, error)
	errorMessage(payload []byte) string
}

type httpClient struct {
	provider Provider
	dialect  dialect
	opts     Options
	baseURL  string
}

func newHTTPClient(provider Provider, d dialect, opts Options) *httpClient {
	base := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if base == "" {
		base = d.defaultEndpoint()
	}
	return &httpClient{provider: provider, dialect: d, opts: opts, baseURL: base}
}

func (c *httpClient) Provider() Provider { return c.provider }

func (c *httpClient) Complete(ctx context.Context, req Request) (string, error) {
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	payload, err := json.Marshal(c.dialect.body(c.opts.Model, req))
	if err != nil {
		return "", fmt.Errorf("encode %s request: %w", c.provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.dialect.path(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", c.provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.dialect.headers(httpReq.Header, c.opts.APIKey)

	resp, err := c.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ctx, c.provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Provider: c.provider, Status: resp.StatusCode, Message: c.dialect.errorMessage(body)}
	}

	text, err := c.dialect.decode(body)
	if err != nil {
		return "", fmt.Errorf("decode %s response: %w", c.provider, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", c.provider, ErrEmptyResponse)
	}
	return strings.TrimSpace(text), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(req Request) []chatMessage {
	var messages []chatMessage
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	return append(messages, chatMessage{Role: "user", Content: req.Prompt})
}

// errorEnvelope covers the {"error": {...}} and {"error": "..."} shapes.
func errorEnvelope(payload []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(payload, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	var flat struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(payload, &flat) == nil && flat.Error != "" {
		return flat.Error
	}
	return strings.TrimSpace(string(payload))
}

type openAIDialect struct{}

func (openAIDialect) defaultEndpoint() string { return "https://api.openai.com" }
func (openAIDialect) path() string            { return "/v1/chat/completions" }

func (openAIDialect) headers(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}

func (openAIDialect) body(model string, req Request) any {
	return map[string]any{
		"model":       model,
		"messages":    chatMessages(req),
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
	}
}

func (openAIDialect) decode(payload []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (openAIDialect) errorMessage(payload []byte) string { return errorEnvelope(payload) }

type anthropicDialect struct{}

const anthropicVersion = "2023-06-01"

func (anthropicDialect) defaultEndpoint() string { return "https://api.anthropic.com" }
func (anthropicDialect) path() string            { return "/v1/messages" }

func (anthropicDialect) headers(h http.Header, apiKey string) {
	h.Set("x-api-key", apiKey)
	h.Set("anthropic-version", anthropicVersion)
}

func (anthropicDialect) body(model string, req Request) any {
	body := map[string]any{
		"model":       model,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"messages":    []chatMessage{{Role: "user", Content: req.Prompt}},
	}
	if strings.TrimSpace(req.System) != "" {
		body["system"] = req.System
	}
	return body
}

func (anthropicDialect) decode(payload []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (anthropicDialect) errorMessage(payload []byte) string { return errorEnvelope(payload) }

type ollamaDialect struct{}

func (ollamaDialect) defaultEndpoint() string            { return "http://127.0.0.1:11434" }
func (ollamaDialect) path() string                       { return "/api/chat" }
func (ollamaDialect) headers(http.Header, string)        {}
func (ollamaDialect) errorMessage(payload []byte) string { return errorEnvelope(payload) }

func (ollamaDialect) body(model string, req Request) any {
	return map[string]any{
		"model":    model,
		"messages": chatMessages(req),
		"stream":   false,
		"options": map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
}

func (ollamaDialect) decode(payload []byte) (string, error) {
	var resp struct {
		Message chatMessage `json:"message"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
