package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BETTERVOICE_"

// envOverrides are applied after the config file. Unset variables leave the
// file value alone.
type envOverrides struct {
	AudioInput            *string  `env:"AUDIO_INPUT"`
	TranscriptionBackend  *string  `env:"TRANSCRIPTION_BACKEND"`
	TranscriptionModel    *string  `env:"MODEL_PATH"`
	TranscriptionEndpoint *string  `env:"TRANSCRIPTION_ENDPOINT"`
	Language              *string  `env:"LANGUAGE"`
	Provider              *string  `env:"PROVIDER"`
	EnhancementModel      *string  `env:"ENHANCEMENT_MODEL"`
	EnhancementEndpoint   *string  `env:"ENHANCEMENT_ENDPOINT"`
	EnhancementTimeoutMS  *int     `env:"ENHANCEMENT_TIMEOUT_MS"`
	CloudTypes            []string `env:"CLOUD_TYPES" envSeparator:","`
	LearningPath          *string  `env:"LEARNING_PATH"`
	LearningThreshold     *float64 `env:"LEARNING_THRESHOLD"`
	RetentionDays         *int     `env:"RETENTION_DAYS"`
	BridgeEnable          *bool    `env:"BRIDGE_ENABLE"`
	BridgeListen          *string  `env:"BRIDGE_LISTEN"`
	LogLevel              *string  `env:"LOG_LEVEL"`
	AudioDump             *bool    `env:"AUDIO_DUMP"`
}

// applyEnv overlays BETTERVOICE_* variables onto cfg. Values from the .env
// file next to configPath are used when the process environment lacks them.
func applyEnv(cfg *Config, configPath string) error {
	vars, err := environment(envFilePath(configPath))
	if err != nil {
		return err
	}

	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return fmt.Errorf("parse %s environment: %w", EnvPrefix, err)
	}

	setString(&cfg.Audio.Input, o.AudioInput)
	if o.TranscriptionBackend != nil {
		cfg.Transcription.Backend = strings.ToLower(strings.TrimSpace(*o.TranscriptionBackend))
	}
	setString(&cfg.Transcription.ModelPath, o.TranscriptionModel)
	setString(&cfg.Transcription.Endpoint, o.TranscriptionEndpoint)
	setString(&cfg.Transcription.Language, o.Language)
	if o.Provider != nil {
		cfg.Enhancement.Provider = strings.ToLower(strings.TrimSpace(*o.Provider))
	}
	setString(&cfg.Enhancement.Model, o.EnhancementModel)
	setString(&cfg.Enhancement.Endpoint, o.EnhancementEndpoint)
	setValue(&cfg.Enhancement.TimeoutMS, o.EnhancementTimeoutMS)
	if o.CloudTypes != nil {
		cfg.Enhancement.CloudTypes = normalizeNames(o.CloudTypes)
	}
	setString(&cfg.Learning.Path, o.LearningPath)
	setValue(&cfg.Learning.Threshold, o.LearningThreshold)
	setValue(&cfg.Learning.RetentionDays, o.RetentionDays)
	setValue(&cfg.Bridge.Enable, o.BridgeEnable)
	setString(&cfg.Bridge.Listen, o.BridgeListen)
	if o.LogLevel != nil {
		cfg.Debug.LogLevel = strings.ToLower(strings.TrimSpace(*o.LogLevel))
	}
	setValue(&cfg.Debug.EnableAudioDump, o.AudioDump)
	return nil
}

// environment merges the optional dotenv file under the process environment.
func environment(dotenvPath string) (map[string]string, error) {
	merged := make(map[string]string)

	values, err := godotenv.Read(dotenvPath)
	switch {
	case err == nil:
		for k, v := range values {
			merged[k] = v
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %q: %w", dotenvPath, err)
	}

	for k, v := range env.ToMap(os.Environ()) {
		merged[k] = v
	}
	return merged, nil
}
