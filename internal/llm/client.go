// Package llm sends single-turn text rewrite requests to hosted or local language models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Provider string

const (
	ProviderNone      Provider = "none"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
)

// Providers lists every accepted provider name.
var Providers = []Provider{ProviderNone, ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama}

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// NeedsKey reports whether p requires an API key.
func (p Provider) NeedsKey() bool {
	return p != ProviderNone && p != ProviderOllama
}

// SecretKey is the secret store key holding p's API key.
func (p Provider) SecretKey() string {
	return "api_key_" + string(p)
}

// DefaultModel is used when no model is configured.
func (p Provider) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderOllama:
		return "llama3.2"
	default:
		return ""
	}
}

var (
	ErrRateLimited   = errors.New("rate limited")
	ErrTimeout       = errors.New("request timed out")
	ErrEmptyResponse = errors.New("empty response")
	ErrNoProvider    = errors.New("no language model provider configured")
	ErrMissingKey    = errors.New("api key required")
)

// APIError is a non-success reply from a provider.
type APIError struct {
	Provider Provider
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s api error (status %d)", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.Status, e.Message)
}

// Is lets errors.Is(err, ErrRateLimited) match HTTP 429 replies.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.Status == http.StatusTooManyRequests
}

// Request is one completion: a system instruction and a user prompt.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Client completes prompts.
type Client interface {
	Provider() Provider
	Complete(ctx context.Context, req Request) (string, error)
}

// Options configures a Client.
type Options struct {
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
}

const defaultMaxTokens = 1024

// New builds the client for provider.
func New(ctx context.Context, provider Provider, opts Options) (Client, error) {
	if provider.NeedsKey() && strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%w for %s", ErrMissingKey, provider)
	}
	if opts.Model == "" {
		opts.Model = provider.DefaultModel()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	switch provider {
	case ProviderGemini:
		return NewGemini(ctx, opts)
	case ProviderOpenAI:
		return newHTTPClient(provider, openAIDialect{}, opts), nil
	case ProviderAnthropic:
		return newHTTPClient(provider, anthropicDialect{}, opts), nil
	case ProviderOllama:
		return newHTTPClient(provider, ollamaDialect{}, opts), nil
	case ProviderNone, "":
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// transportError maps context expiry to ErrTimeout.
func transportError(ctx context.Context, provider Provider, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", provider, ErrTimeout, err)
	}
	return fmt.Errorf("%s request: %w", provider, err)
}
