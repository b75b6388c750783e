package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bettervoice/bettervoice/internal/audio"
	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/enhance"
	"github.com/bettervoice/bettervoice/internal/indicator"
	"github.com/bettervoice/bettervoice/internal/ipc"
	"github.com/bettervoice/bettervoice/internal/learning"
	"github.com/bettervoice/bettervoice/internal/output"
	"github.com/bettervoice/bettervoice/internal/pipeline"
	"github.com/bettervoice/bettervoice/internal/session"
)

// commandToggle forwards to a running owner, or becomes the owner and runs
// one dictation session: capture, transcribe, classify, enhance, commit.
func (r Runner) commandToggle(ctx context.Context, loaded config.Loaded, logger *slog.Logger) int {
	cfg := loaded.Config
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandToggle)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return 0
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.DefaultAcquireOptions)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, ipc.CommandToggle)
			if forwardErr != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", forwardErr)
				return 1
			}
			if resp.Message != "" {
				fmt.Fprintln(r.Stdout, resp.Message)
			}
			return 0
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	capture := audio.NewCapture(pulseBackend(cfg), nil, logger, audio.CaptureOptions{
		Input:    cfg.Audio.Input,
		Fallback: cfg.Audio.Fallback,
	})
	defer func() { _ = capture.Close() }()
	if cfg.Audio.Prewarm {
		if err := capture.PreWarm(ctx, ""); err != nil {
			logger.Warn("audio prewarm failed", "error", err.Error())
		}
	}

	engine, err := pipeline.OpenEngine(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("open transcription engine failed", "error", err.Error())
		return 1
	}
	defer func() { _ = engine.Close() }()

	classifier, err := classify.NewDefault(logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
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

	transcriber := pipeline.NewTranscriber(cfg, capture, engine, logger)
	finisher := pipeline.NewFinisher(classifier, enhancer, logger)
	committer := output.NewCommitter(cfg.Output, logger)
	notifier := indicator.New(cfg.Output.Notify, logger)
	controller := session.NewController(logger, transcriber, finisher, committer, notifier)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()
	go watchEnhancement(serverCtx, loaded.Path, enhancer, logger)

	result := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	logSessionResult(logger, result)

	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	if text := strings.TrimSpace(result.Text); text != "" {
		fmt.Fprintln(r.Stdout, text)
	}

	return 0
}

// watchEnhancement applies prompt and provider edits to a running session.
func watchEnhancement(ctx context.Context, path string, enhancer *enhance.Orchestrator, logger *slog.Logger) {
	err := config.Watch(ctx, path, config.DefaultWatchDebounce, logger, func(next config.Loaded) {
		settings, err := enhanceSettings(next.Config)
		if err != nil {
			logger.Warn("ignoring reloaded enhancement settings", "error", err.Error())
			return
		}
		enhancer.SetSettings(settings)
		logger.Info("enhancement settings reloaded", "provider", string(settings.Provider))
	})
	if err != nil && ctx.Err() == nil {
		logger.Debug("config hot reload unavailable", "path", path, "error", err.Error())
	}
}
