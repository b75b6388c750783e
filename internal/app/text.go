package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bettervoice/bettervoice/internal/asr"
	"github.com/bettervoice/bettervoice/internal/audio"
	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/cli"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/learning"
	"github.com/bettervoice/bettervoice/internal/metrics"
	"github.com/bettervoice/bettervoice/internal/pipeline"
)

// commandTranscribe runs the configured engine over a canonical WAV or raw
// PCM16 file and prints the transcript.
func (r Runner) commandTranscribe(ctx context.Context, cfg config.Config, logger *slog.Logger, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	samples := audio.UnwrapWAV(data)
	if len(samples) == 0 {
		fmt.Fprintf(r.Stderr, "error: %s contains no audio\n", path)
		return 1
	}

	engine, err := pipeline.OpenEngine(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = engine.Close() }()

	tctx := ctx
	if timeout := cfg.Transcription.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	text, err := engine.Transcribe(tctx, asr.Request{
		Samples:       samples,
		Language:      cfg.Transcription.Language,
		Translate:     cfg.Transcription.Translate,
		InitialPrompt: config.InitialPrompt(cfg),
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("transcribe file failed", "path", path, "error", err.Error())
		return 1
	}
	fmt.Fprintln(r.Stdout, text)
	return 0
}

func (r Runner) commandClassify(text string, logger *slog.Logger) int {
	classifier, err := classify.NewDefault(logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	result := classifier.Classify(text)
	metrics.ClassificationsTotal.WithLabelValues(string(result.Type), fmt.Sprint(result.Overridden)).Inc()
	fmt.Fprintln(r.Stdout, result.Type)
	return 0
}

// commandEnhance classifies (unless --type is given) and enhances text with
// the configured provider and learned corrections.
func (r Runner) commandEnhance(ctx context.Context, cfg config.Config, logger *slog.Logger, parsed cli.Parsed) int {
	text := parsed.Text()

	var docType classify.DocumentType
	if parsed.DocumentType != "" {
		parsedType, err := classify.Parse(parsed.DocumentType)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 2
		}
		docType = parsedType
	} else {
		classifier, err := classify.NewDefault(logger)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		docType = classifier.Classify(text).Type
	}

	var store *learning.Store
	if opened, err := openStore(ctx, cfg, logger); err == nil {
		store = opened
		defer func() { _ = store.Close() }()
	} else {
		logger.Warn("learning store unavailable; learned corrections disabled", "error", err.Error())
	}
	enhancer, err := orchestrator(cfg, store, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	enhanced, decision := enhancer.Enhance(ctx, text, docType)
	logger.Info("enhancement decision",
		"document_type", decision.DocumentType,
		"used_cloud", decision.UsedCloud,
		"cloud_attempted", decision.CloudAttempted,
		"learned_match", decision.LearnedMatch,
		"failure_reason", decision.FailureReason,
	)
	if decision.FailureReason != "" {
		fmt.Fprintf(r.Stderr, "warning: cloud enhancement failed (%s); used local rules\n", decision.FailureReason)
	}
	fmt.Fprintln(r.Stdout, enhanced)
	return 0
}
