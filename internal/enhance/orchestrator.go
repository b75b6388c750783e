// Package enhance turns raw transcripts into finished text, locally or through a language model.
package enhance

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/learning"
	"github.com/bettervoice/bettervoice/internal/llm"
	"github.com/bettervoice/bettervoice/internal/metrics"
	"github.com/bettervoice/bettervoice/internal/secrets"
)

const (
	DefaultCloudTimeout = 10 * time.Second
	DefaultMaxExamples  = 5
)

// DefaultCloudTypes are the document types sent to a cloud provider when enabled.
var DefaultCloudTypes = []classify.DocumentType{classify.Email, classify.Message, classify.Document, classify.Social}

// Patterns is the read side of the learning store.
type Patterns interface {
	FindSimilar(ctx context.Context, original string, docType classify.DocumentType, threshold float64) (learning.Pattern, bool, error)
	Fetch(ctx context.Context, docType classify.DocumentType, minConfidence float64) ([]learning.Pattern, error)
}

// ClientFactory builds a language model client; llm.New in production.
type ClientFactory func(ctx context.Context, provider llm.Provider, opts llm.Options) (llm.Client, error)

// Settings is the hot-swappable part of enhancement configuration.
type Settings struct {
	Provider    llm.Provider
	Model       string
	Endpoint    string
	Timeout     time.Duration
	CloudTypes  []classify.DocumentType
	Prompts     map[classify.DocumentType]string
	Threshold   float64
	MaxExamples int
}

// Decision records how one enhancement was produced. It is logged, never persisted.
type Decision struct {
	DocumentType      classify.DocumentType `json:"document_type"`
	UsedCloud         bool                  `json:"used_cloud"`
	PromptSource      PromptSource          `json:"prompt_source,omitempty"`
	FellBackToDefault bool                  `json:"fell_back_to_default"`
	CloudAttempted    bool                  `json:"cloud_attempted"`
	FailureReason     string                `json:"failure_reason,omitempty"`
	LearnedMatch      bool                  `json:"learned_match"`
	Provider          llm.Provider          `json:"provider,omitempty"`
	Latency           time.Duration         `json:"latency"`
}

// Orchestrator chooses between local rules and a cloud model for each text.
type Orchestrator struct {
	patterns  Patterns
	secrets   secrets.Store
	newClient ClientFactory
	logger    *slog.Logger
	settings  atomic.Pointer[Settings]
}

// New builds an orchestrator. patterns, store, and factory may be nil: without
// patterns nothing learned is applied, without a secret store hosted providers
// are never eligible, and a nil factory means llm.New.
func New(patterns Patterns, store secrets.Store, factory ClientFactory, logger *slog.Logger, settings Settings) *Orchestrator {
	if factory == nil {
		factory = llm.New
	}
	o := &Orchestrator{patterns: patterns, secrets: store, newClient: factory, logger: logger}
	o.SetSettings(settings)
	return o
}

// SetSettings atomically replaces the settings used by later calls.
func (o *Orchestrator) SetSettings(s Settings) {
	if s.Provider == "" {
		s.Provider = llm.ProviderNone
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultCloudTimeout
	}
	if s.CloudTypes == nil {
		s.CloudTypes = DefaultCloudTypes
	}
	if s.Threshold <= 0 {
		s.Threshold = learning.DefaultThreshold
	}
	if s.MaxExamples <= 0 {
		s.MaxExamples = DefaultMaxExamples
	}
	s.CloudTypes = slices.Clone(s.CloudTypes)
	prompts := make(map[classify.DocumentType]string, len(s.Prompts))
	for k, v := range s.Prompts {
		prompts[k] = v
	}
	s.Prompts = prompts
	o.settings.Store(&s)
}

// Settings returns a copy of the current settings.
func (o *Orchestrator) Settings() Settings {
	return *o.settings.Load()
}

// CloudEligible reports whether docType would be sent to the configured provider.
func (o *Orchestrator) CloudEligible(docType classify.DocumentType) bool {
	return o.cloudEligible(o.settings.Load(), docType)
}

func (o *Orchestrator) cloudEligible(s *Settings, docType classify.DocumentType) bool {
	if s.Provider == llm.ProviderNone || !s.Provider.Valid() {
		return false
	}
	if !slices.Contains(s.CloudTypes, docType) {
		return false
	}
	if !s.Provider.NeedsKey() {
		return true
	}
	return o.secrets != nil && o.secrets.Exists(s.Provider.SecretKey())
}

// Enhance returns the finished text for docType. Cloud failures never surface:
// they are logged and the local result is returned instead.
func (o *Orchestrator) Enhance(ctx context.Context, text string, docType classify.DocumentType) (_ string, decision Decision) {
	start := time.Now()
	s := o.settings.Load()
	if !docType.Valid() {
		docType = classify.Unknown
	}
	decision = Decision{DocumentType: docType}
	defer func() { decision.Latency = time.Since(start) }()

	if strings.TrimSpace(text) == "" {
		return "", decision
	}

	if o.cloudEligible(s, docType) {
		prompt, source, fellBack := renderPrompt(s.Prompts, docType, text)
		decision.CloudAttempted = true
		decision.Provider = s.Provider
		decision.PromptSource = source
		decision.FellBackToDefault = fellBack

		out, err := o.cloud(ctx, s, llm.Request{
			System: systemInstruction(o.examples(ctx, s, docType)),
			Prompt: prompt,
		})
		if err == nil {
			decision.UsedCloud = true
			metrics.EnhancementsTotal.WithLabelValues("cloud", string(docType)).Inc()
			return out, decision
		}

		decision.FailureReason = failureReason(err)
		metrics.CloudFailuresTotal.WithLabelValues(string(s.Provider), decision.FailureReason).Inc()
		o.logWarn("cloud enhancement failed; using local rules",
			"provider", s.Provider,
			"document_type", docType,
			"reason", decision.FailureReason,
			"error", err.Error(),
		)
	}

	out, learned := o.local(ctx, s, text, docType)
	decision.LearnedMatch = learned
	path := "local"
	if learned {
		path = "learned"
	}
	metrics.EnhancementsTotal.WithLabelValues(path, string(docType)).Inc()
	return out, decision
}

// local prefers a learned correction over the generic rules.
func (o *Orchestrator) local(ctx context.Context, s *Settings, text string, docType classify.DocumentType) (string, bool) {
	if o.patterns != nil {
		// A cancelled parent must not block the fallback.
		lookupCtx := context.WithoutCancel(ctx)
		p, ok, err := o.patterns.FindSimilar(lookupCtx, strings.TrimSpace(text), docType, s.Threshold)
		switch {
		case err != nil:
			o.logWarn("learned pattern lookup failed", "error", err.Error())
		case ok:
			return p.EditedText, true
		}
	}
	return ApplyRules(text, docType), false
}

func (o *Orchestrator) examples(ctx context.Context, s *Settings, docType classify.DocumentType) []learning.Pattern {
	if o.patterns == nil {
		return nil
	}
	patterns, err := o.patterns.Fetch(ctx, docType, s.Threshold)
	if err != nil {
		o.logWarn("fetch learned examples failed", "error", err.Error())
		return nil
	}
	if len(patterns) > s.MaxExamples {
		patterns = patterns[:s.MaxExamples]
	}
	return patterns
}

type completion struct {
	text string
	err  error
}

// cloud runs one completion bounded by s.Timeout. A reply that arrives after
// the deadline is dropped.
func (o *Orchestrator) cloud(ctx context.Context, s *Settings, req llm.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	// Key lookup and client setup count against the timeout too.
	started := time.Now()
	results := make(chan completion, 1)
	go func() {
		text, err := o.complete(callCtx, s, req)
		results <- completion{text: text, err: err}
	}()

	timer := time.NewTimer(s.Timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		metrics.CloudDuration.WithLabelValues(string(s.Provider)).Observe(time.Since(started).Seconds())
		if res.err != nil {
			return "", res.err
		}
		if strings.TrimSpace(res.text) == "" {
			return "", llm.ErrEmptyResponse
		}
		return strings.TrimSpace(res.text), nil
	case <-timer.C:
		return "", llm.ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (o *Orchestrator) complete(ctx context.Context, s *Settings, req llm.Request) (string, error) {
	var apiKey string
	if s.Provider.NeedsKey() {
		key, err := o.secrets.Retrieve(s.Provider.SecretKey())
		if err != nil {
			return "", err
		}
		apiKey = strings.TrimSpace(string(key))
	}

	client, err := o.newClient(ctx, s.Provider, llm.Options{APIKey: apiKey, Model: s.Model, Endpoint: s.Endpoint})
	if err != nil {
		return "", err
	}
	return client.Complete(ctx, req)
}

func failureReason(err error) string {
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, llm.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, secrets.ErrNotFound), errors.Is(err, llm.ErrMissingKey):
		return "missing_key"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "transport"
	}
}

func (o *Orchestrator) logWarn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
