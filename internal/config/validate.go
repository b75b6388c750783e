package config

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/enhance"
	"github.com/bettervoice/bettervoice/internal/llm"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Audio.CaptureRate < 8000 || cfg.Audio.CaptureRate > 192000 {
		return nil, fmt.Errorf("audio.capture_rate must be between 8000 and 192000")
	}
	if cfg.Audio.CaptureChannels < 1 || cfg.Audio.CaptureChannels > 8 {
		return nil, fmt.Errorf("audio.capture_channels must be between 1 and 8")
	}

	switch cfg.Transcription.Backend {
	case BackendWhisperServer, BackendRiva:
	case BackendNative:
		if strings.TrimSpace(cfg.Transcription.ModelPath) == "" {
			return nil, fmt.Errorf("transcription.model_path is required when transcription.backend=native")
		}
	default:
		return nil, fmt.Errorf("transcription.backend must be one of: %s, %s, %s", BackendWhisperServer, BackendRiva, BackendNative)
	}
	if strings.TrimSpace(cfg.Transcription.Language) == "" {
		return nil, fmt.Errorf("transcription.language must not be empty")
	}
	if cfg.Transcription.TimeoutMS <= 0 {
		return nil, fmt.Errorf("transcription.timeout_ms must be > 0")
	}
	if cfg.Transcription.Backend != BackendRiva && cfg.Transcription.RivaModel != "" {
		warnings = append(warnings, Warning{Message: "transcription.riva_model is ignored unless transcription.backend=riva"})
	}

	provider := llm.Provider(cfg.Enhancement.Provider)
	if !provider.Valid() {
		return nil, fmt.Errorf("enhancement.provider must be one of: %s", providerNames())
	}
	if cfg.Enhancement.TimeoutMS <= 0 {
		return nil, fmt.Errorf("enhancement.timeout_ms must be > 0")
	}
	for _, name := range cfg.Enhancement.CloudTypes {
		if _, err := classify.Parse(name); err != nil {
			return nil, fmt.Errorf("enhancement.cloud_types: %w", err)
		}
	}
	for name, prompt := range cfg.Enhancement.Prompts {
		if _, err := classify.Parse(name); err != nil {
			return nil, fmt.Errorf("enhancement.prompts: %w", err)
		}
		if strings.TrimSpace(prompt) != "" && !strings.Contains(prompt, enhance.TextPlaceholder) {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("enhancement.prompts.%s has no %s placeholder; the text will not be sent", name, enhance.TextPlaceholder)})
		}
	}

	if cfg.Learning.Threshold < 0 || cfg.Learning.Threshold > 1 {
		return nil, fmt.Errorf("learning.threshold must be between 0 and 1")
	}
	if cfg.Learning.RetentionDays < 0 {
		return nil, fmt.Errorf("learning.retention_days must be >= 0")
	}

	if cfg.Bridge.Enable {
		host, _, err := net.SplitHostPort(cfg.Bridge.Listen)
		if err != nil {
			return nil, fmt.Errorf("bridge.listen: %w", err)
		}
		if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("bridge.listen %q is not a loopback address", cfg.Bridge.Listen)})
		}
	}

	if len(cfg.Output.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("output.clipboard_cmd must not be empty")
	}
	if cfg.Vocab.MaxPhrases <= 0 {
		return nil, fmt.Errorf("vocab.max_phrases must be > 0")
	}
	if !validLogLevel(cfg.Debug.LogLevel) {
		return nil, fmt.Errorf("debug.log_level must be one of: %s", strings.Join(logLevels, ", "))
	}

	_, vocabWarnings, err := BuildSpeechPhrases(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	return warnings, nil
}

func validLogLevel(level string) bool {
	for _, known := range logLevels {
		if level == known {
			return true
		}
	}
	return false
}

func providerNames() string {
	names := make([]string, 0, len(llm.Providers))
	for _, p := range llm.Providers {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// BuildSpeechPhrases merges enabled vocab sets into deterministic ASR phrase payloads.
func BuildSpeechPhrases(cfg Config) ([]SpeechPhrase, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, phrase := range set.Phrases {
			phrase = strings.TrimSpace(phrase)
			if phrase == "" {
				continue
			}
			if existing, exists := selected[phrase]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("phrase %q present in %q and %q; using higher boost %.2f", phrase, existing.from, name, set.Boost)})
					selected[phrase] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[phrase] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxPhrases {
		return nil, nil, fmt.Errorf("vocabulary phrase count %d exceeds vocab.max_phrases=%d", len(selected), cfg.Vocab.MaxPhrases)
	}

	phrases := make([]SpeechPhrase, 0, len(selected))
	for phrase, c := range selected {
		phrases = append(phrases, SpeechPhrase{Phrase: phrase, Boost: float32(c.boost)})
	}

	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Phrase == phrases[j].Phrase {
			return phrases[i].Boost < phrases[j].Boost
		}
		return phrases[i].Phrase < phrases[j].Phrase
	})

	return phrases, warnings, nil
}

// InitialPrompt joins the configured initial prompt with the enabled vocabulary
// so whisper runtimes are biased toward the same phrases Riva boosts.
func InitialPrompt(cfg Config) string {
	phrases, _, err := BuildSpeechPhrases(cfg)
	parts := make([]string, 0, len(phrases)+1)
	if prompt := strings.TrimSpace(cfg.Transcription.InitialPrompt); prompt != "" {
		parts = append(parts, prompt)
	}
	if err == nil && len(phrases) > 0 {
		words := make([]string, 0, len(phrases))
		for _, p := range phrases {
			words = append(words, p.Phrase)
		}
		parts = append(parts, "Vocabulary: "+strings.Join(words, ", ")+".")
	}
	return strings.Join(parts, " ")
}
