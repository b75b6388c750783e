// Package config resolves, parses, validates, and defaults bettervoice configuration.
package config

import "time"

// Transcription backends.
const (
	BackendWhisperServer = "whisper-server"
	BackendRiva          = "riva"
	BackendNative        = "native"
)

// Config is the fully materialized runtime configuration.
type Config struct {
	Audio         AudioConfig
	Transcription TranscriptionConfig
	Enhancement   EnhancementConfig
	Learning      LearningConfig
	Bridge        BridgeConfig
	Output        OutputConfig
	Vocab         VocabConfig
	Debug         DebugConfig
}

// AudioConfig controls input selection and the hardware format requested
// from the sound server.
type AudioConfig struct {
	Input           string
	Fallback        string
	Prewarm         bool
	CaptureRate     int
	CaptureChannels int
}

// TranscriptionConfig selects and tunes the speech recognition runtime.
type TranscriptionConfig struct {
	Backend       string
	ModelPath     string
	Endpoint      string
	Language      string
	Translate     bool
	InitialPrompt string
	TimeoutMS     int
	// RivaModel and AutomaticPunctuation only apply to the riva backend.
	RivaModel            string
	AutomaticPunctuation bool
}

// Timeout returns TimeoutMS as a duration.
func (t TranscriptionConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

// ResolvedEndpoint returns Endpoint, or the backend's conventional local address.
func (t TranscriptionConfig) ResolvedEndpoint() string {
	if t.Endpoint != "" {
		return t.Endpoint
	}
	switch t.Backend {
	case BackendRiva:
		return "127.0.0.1:50051"
	case BackendWhisperServer:
		return "127.0.0.1:8080"
	}
	return ""
}

// EnhancementConfig controls the cloud provider and per-type prompts.
type EnhancementConfig struct {
	Provider   string
	Model      string
	Endpoint   string
	TimeoutMS  int
	CloudTypes []string
	// Prompts maps a document type to a custom template containing {{TEXT}}.
	Prompts map[string]string
}

// Timeout returns TimeoutMS as a duration.
func (e EnhancementConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// LearningConfig controls the correction store.
type LearningConfig struct {
	Path          string
	Threshold     float64
	RetentionDays int
}

// BridgeConfig controls the local endpoint that receives browser edits.
type BridgeConfig struct {
	Enable         bool
	Listen         string
	AllowedOrigins []string
}

// OutputConfig controls how finished text leaves the process. Notify shows
// session progress as desktop notifications.
type OutputConfig struct {
	Clipboard     CommandConfig
	Paste         CommandConfig
	TrailingSpace bool
	Notify        bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// VocabConfig controls enabled speech phrase sets and dedupe limits.
type VocabConfig struct {
	GlobalSets []string
	Sets       map[string]VocabSet
	MaxPhrases int
}

// VocabSet is one named phrase group with a shared boost value.
type VocabSet struct {
	Name    string
	Boost   float64
	Phrases []string
}

// DebugConfig controls log verbosity and debug artifacts.
type DebugConfig struct {
	LogLevel        string
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// SpeechPhrase is the normalized phrase payload sent to ASR adapters.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}
