// Package asr turns canonical PCM16 audio into text through a pluggable
// speech recognition runtime.
package asr

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bettervoice/bettervoice/internal/audio"
)

// Request is one transcription job over canonical PCM16 audio.
type Request struct {
	Samples       []byte
	Language      string // "auto" lets the runtime detect
	Translate     bool
	InitialPrompt string
}

// Runtime is the recognizer behind an Engine. Implementations are not
// required to be reentrant; Engine serializes calls.
type Runtime interface {
	Name() string
	// RequiresModelFile reports whether Load needs a readable local model file.
	RequiresModelFile() bool
	Load(ctx context.Context, modelPath string) error
	Infer(ctx context.Context, req Request) (string, error)
	Valid() bool
	Close() error
}

// Engine is a loaded model handle. It is reusable across requests and must
// be released with Close.
type Engine struct {
	mu      sync.Mutex
	runtime Runtime
	model   string
	logger  *slog.Logger
}

// Open validates modelPath (for runtimes that read it) and loads the model.
// A runtime that fails to load is closed before returning.
func Open(ctx context.Context, modelPath string, runtime Runtime, logger *slog.Logger) (*Engine, error) {
	if runtime == nil {
		return nil, fmt.Errorf("%w: no runtime configured", ErrModelNotLoaded)
	}
	if runtime.RequiresModelFile() {
		if err := ValidateModelFile(modelPath); err != nil {
			return nil, err
		}
	}

	started := time.Now()
	if err := runtime.Load(ctx, modelPath); err != nil {
		_ = runtime.Close()
		return nil, fmt.Errorf("load model %q with %s: %w", modelPath, runtime.Name(), err)
	}
	if logger != nil {
		logger.Info("transcription model loaded",
			"runtime", runtime.Name(),
			"model", modelPath,
			"load_ms", time.Since(started).Milliseconds(),
		)
	}

	return &Engine{runtime: runtime, model: modelPath, logger: logger}, nil
}

// Transcribe runs one request. Concurrent callers are serialized.
func (e *Engine) Transcribe(ctx context.Context, req Request) (string, error) {
	if e == nil {
		return "", ErrModelNotLoaded
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runtime == nil || !e.runtime.Valid() {
		return "", ErrModelNotLoaded
	}
	if len(req.Samples) == 0 {
		return "", failed("empty audio", nil)
	}
	if len(req.Samples)%2 != 0 {
		return "", failed(fmt.Sprintf("%d bytes is not canonical %s PCM", len(req.Samples), audio.Canonical), nil)
	}
	if strings.TrimSpace(req.Language) == "" {
		req.Language = "auto"
	}

	started := time.Now()
	text, err := e.runtime.Infer(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", failed("cancelled", ctx.Err())
		}
		return "", failed(e.runtime.Name(), err)
	}

	text = NormalizeTranscript(text)
	if e.logger != nil {
		e.logger.Debug("transcription complete",
			"runtime", e.runtime.Name(),
			"samples", len(req.Samples)/2,
			"latency_ms", time.Since(started).Milliseconds(),
			"chars", len(text),
		)
	}
	return text, nil
}

// Valid reports whether the handle still holds a loaded model.
func (e *Engine) Valid() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runtime != nil && e.runtime.Valid()
}

// Model returns the path the engine was opened with.
func (e *Engine) Model() string {
	return e.model
}

// Backend returns the runtime name.
func (e *Engine) Backend() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil {
		return ""
	}
	return e.runtime.Name()
}

// Close releases the model. Safe to call more than once.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.runtime == nil {
		return nil
	}
	err := e.runtime.Close()
	e.runtime = nil
	return err
}

var nonSpeechMarker = regexp.MustCompile(`\[(?:BLANK_AUDIO|NO_SPEECH|MUSIC|SILENCE)\]|\((?:silence|music|inaudible)\)`)

// NormalizeTranscript drops whisper non-speech markers and collapses whitespace.
func NormalizeTranscript(raw string) string {
	raw = nonSpeechMarker.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(raw), " ")
}
