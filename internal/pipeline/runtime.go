package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"

	"github.com/bettervoice/bettervoice/internal/asr"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/riva"
)

// NewRuntime builds the recognizer runtime selected by transcription.backend.
func NewRuntime(cfg config.Config) (asr.Runtime, error) {
	t := cfg.Transcription
	switch t.Backend {
	case config.BackendWhisperServer:
		return asr.NewServerRuntime(t.ResolvedEndpoint(), t.Timeout()), nil
	case config.BackendRiva:
		phrases, _, err := config.BuildSpeechPhrases(cfg)
		if err != nil {
			return nil, fmt.Errorf("build speech contexts: %w", err)
		}
		rivaPhrases := make([]riva.SpeechPhrase, 0, len(phrases))
		for _, phrase := range phrases {
			rivaPhrases = append(rivaPhrases, riva.SpeechPhrase{Phrase: phrase.Phrase, Boost: phrase.Boost})
		}
		return riva.NewRuntime(riva.Config{
			Endpoint:             t.ResolvedEndpoint(),
			LanguageCode:         rivaLanguageCode(t.Language),
			Model:                t.RivaModel,
			AutomaticPunctuation: t.AutomaticPunctuation,
			SpeechPhrases:        rivaPhrases,
		}), nil
	case config.BackendNative:
		return asr.NewNativeRuntime(), nil
	default:
		return nil, fmt.Errorf("unsupported transcription backend %q", t.Backend)
	}
}

// OpenEngine builds the configured runtime and loads its model.
func OpenEngine(ctx context.Context, cfg config.Config, logger *slog.Logger) (*asr.Engine, error) {
	runtime, err := NewRuntime(cfg)
	if err != nil {
		return nil, err
	}
	return asr.Open(ctx, cfg.Transcription.ModelPath, runtime, logger)
}

// rivaLanguageCode expands a bare language ("en") to the BCP-47 form Riva
// expects ("en-US"). "auto" and unparseable input defer to the runtime default.
func rivaLanguageCode(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	region, _ := tag.Region()
	return base.String() + "-" + region.String()
}
