// Package pipeline wires capture, transcription, classification, and
// enhancement into the session contracts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bettervoice/bettervoice/internal/asr"
	"github.com/bettervoice/bettervoice/internal/audio"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/metrics"
	"github.com/bettervoice/bettervoice/internal/session"
)

// Recorder is the capture surface a session needs; *audio.Capture in production.
type Recorder interface {
	Start(ctx context.Context, deviceID string) error
	Stop() ([]byte, error)
	Device() audio.Device
	BytesCaptured() int64
	Level() float64
}

// Recognizer is the transcription surface; *asr.Engine in production.
type Recognizer interface {
	Transcribe(ctx context.Context, req asr.Request) (string, error)
	Backend() string
}

// Transcriber owns one capture -> ASR run per session.
type Transcriber struct {
	cfg      config.Config
	recorder Recorder
	engine   Recognizer
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewTranscriber constructs a pipeline transcriber from runtime config.
func NewTranscriber(cfg config.Config, recorder Recorder, engine Recognizer, logger *slog.Logger) *Transcriber {
	return &Transcriber{cfg: cfg, recorder: recorder, engine: engine, logger: logger}
}

// Start begins capture on the configured input.
func (t *Transcriber) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return fmt.Errorf("transcriber already started")
	}
	if t.recorder == nil || t.engine == nil {
		return session.ErrPipelineUnavailable
	}
	if err := t.recorder.Start(ctx, ""); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	t.started = true
	return nil
}

// StopAndTranscribe ends capture and runs the captured audio through the engine.
func (t *Transcriber) StopAndTranscribe(ctx context.Context) (session.StopResult, error) {
	t.mu.Lock()
	started := t.started
	t.started = false
	t.mu.Unlock()

	if !started {
		return session.StopResult{}, session.ErrPipelineUnavailable
	}

	pcm, err := t.recorder.Stop()
	result := session.StopResult{
		AudioDevice:   t.recorder.Device().Label(),
		BytesCaptured: t.recorder.BytesCaptured(),
	}
	if err != nil {
		return result, fmt.Errorf("stop capture: %w", err)
	}
	t.writeDebugAudio(pcm)
	if len(pcm) == 0 {
		return result, nil
	}
	metrics.CapturedAudioSeconds.Observe(audioSeconds(pcm))

	transcribeCtx, cancel := context.WithTimeout(ctx, t.cfg.Transcription.Timeout())
	defer cancel()

	begin := time.Now()
	text, err := t.engine.Transcribe(transcribeCtx, asr.Request{
		Samples:       pcm,
		Language:      t.cfg.Transcription.Language,
		Translate:     t.cfg.Transcription.Translate,
		InitialPrompt: config.InitialPrompt(t.cfg),
	})
	result.Latency = time.Since(begin)
	metrics.TranscriptionDuration.WithLabelValues(t.engine.Backend()).Observe(result.Latency.Seconds())
	if err != nil {
		return result, fmt.Errorf("transcribe: %w", err)
	}

	result.Transcript = text
	return result, nil
}

// Cancel stops capture and discards the audio.
func (t *Transcriber) Cancel(_ context.Context) error {
	t.mu.Lock()
	started := t.started
	t.started = false
	t.mu.Unlock()

	if !started {
		return nil
	}
	pcm, err := t.recorder.Stop()
	if err != nil && !errors.Is(err, audio.ErrNotCapturing) {
		return err
	}
	t.writeDebugAudio(pcm)
	return nil
}

// Level reports the live capture level.
func (t *Transcriber) Level() float64 {
	if t.recorder == nil {
		return 0
	}
	return t.recorder.Level()
}

func audioSeconds(pcm []byte) float64 {
	return float64(len(pcm)/audio.Canonical.FrameSize()) / float64(audio.Canonical.SampleRate)
}

func (t *Transcriber) logWarn(message string, args ...any) {
	if t.logger == nil {
		return
	}
	t.logger.Warn(message, args...)
}
