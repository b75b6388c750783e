package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Audio: AudioConfig{
			Input:           "default",
			Fallback:        "default",
			Prewarm:         true,
			CaptureRate:     48000,
			CaptureChannels: 1,
		},
		Transcription: TranscriptionConfig{
			Backend:              BackendWhisperServer,
			Language:             "en",
			TimeoutMS:            30000,
			AutomaticPunctuation: true,
		},
		Enhancement: EnhancementConfig{
			Provider:   "none",
			TimeoutMS:  10000,
			CloudTypes: []string{"email", "message", "document", "social"},
			Prompts:    map[string]string{},
		},
		Learning: LearningConfig{
			Threshold:     0.7,
			RetentionDays: 90,
		},
		Bridge: BridgeConfig{
			Enable: false,
			Listen: "127.0.0.1:47821",
		},
		Output: OutputConfig{
			Clipboard:     mustParseCommand(clipboard),
			TrailingSpace: true,
		},
		Vocab: VocabConfig{
			Sets:       map[string]VocabSet{},
			MaxPhrases: 1024,
		},
		Debug: DebugConfig{LogLevel: "info"},
	}
}
