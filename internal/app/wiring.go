package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bettervoice/bettervoice/internal/audio"
	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/enhance"
	"github.com/bettervoice/bettervoice/internal/learning"
	"github.com/bettervoice/bettervoice/internal/llm"
	"github.com/bettervoice/bettervoice/internal/secrets"
)

const appName = "bettervoice"

// pulseBackend records in the configured hardware format.
func pulseBackend(cfg config.Config) *audio.PulseBackend {
	return audio.NewPulseBackend(appName, audio.Format{
		SampleRate: cfg.Audio.CaptureRate,
		Channels:   cfg.Audio.CaptureChannels,
	})
}

// enhanceSettings maps the enhancement/learning config sections onto
// orchestrator settings. Config validation has already checked the type names.
func enhanceSettings(cfg config.Config) (enhance.Settings, error) {
	e := cfg.Enhancement
	settings := enhance.Settings{
		Provider:  llm.Provider(e.Provider),
		Model:     e.Model,
		Endpoint:  e.Endpoint,
		Timeout:   e.Timeout(),
		Threshold: cfg.Learning.Threshold,
		Prompts:   make(map[classify.DocumentType]string, len(e.Prompts)),
	}
	if e.CloudTypes != nil {
		settings.CloudTypes = make([]classify.DocumentType, 0, len(e.CloudTypes))
		for _, raw := range e.CloudTypes {
			docType, err := classify.Parse(raw)
			if err != nil {
				return enhance.Settings{}, fmt.Errorf("enhancement.cloud_types: %w", err)
			}
			settings.CloudTypes = append(settings.CloudTypes, docType)
		}
	}
	for raw, prompt := range e.Prompts {
		docType, err := classify.Parse(raw)
		if err != nil {
			return enhance.Settings{}, fmt.Errorf("enhancement.prompts: %w", err)
		}
		settings.Prompts[docType] = prompt
	}
	return settings, nil
}

// openStore opens the learning store at the configured path.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*learning.Store, error) {
	path, err := cfg.LearningPath()
	if err != nil {
		return nil, err
	}
	return learning.Open(ctx, path, learning.Options{Logger: logger})
}

func secretStore() (*secrets.File, error) {
	path, err := secrets.DefaultPath()
	if err != nil {
		return nil, err
	}
	return secrets.NewFile(path), nil
}

// orchestrator builds the enhancement orchestrator. A nil store disables
// learned corrections; a missing secrets path disables hosted providers.
func orchestrator(cfg config.Config, store *learning.Store, logger *slog.Logger) (*enhance.Orchestrator, error) {
	settings, err := enhanceSettings(cfg)
	if err != nil {
		return nil, err
	}

	var patterns enhance.Patterns
	if store != nil {
		patterns = store
	}
	var keys secrets.Store
	if file, err := secretStore(); err == nil {
		keys = file
	} else if logger != nil {
		logger.Warn("secret store unavailable", "error", err.Error())
	}
	return enhance.New(patterns, keys, nil, logger, settings), nil
}
