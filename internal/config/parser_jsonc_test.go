package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true, // trailing
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.Len(t, normalized, len(input))

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(normalized), &payload))
	require.Equal(t, []any{"one", "two"}, payload["items"])
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text, \"quoted\",}",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, `// and /* comment-like */ text, \"quoted\",}`)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(normalized), &payload))
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8)
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestJSONCStringListUnmarshal(t *testing.T) {
	var list jsoncStringList
	require.NoError(t, list.UnmarshalJSON([]byte(`["a","b"]`)))
	require.Equal(t, []string{"a", "b"}, []string(list))

	require.NoError(t, list.UnmarshalJSON([]byte(`"a, b, , c"`)))
	require.Equal(t, []string{"a", "b", "c"}, []string(list))

	err := list.UnmarshalJSON([]byte(`123`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected string array")
}

func TestParseFullConfig(t *testing.T) {
	cfg, warnings, err := Parse(`{
  // capture
  "audio": {"input": " Elgato ", "prewarm": false, "capture_rate": 44100, "capture_channels": 2},
  "transcription": {
    "backend": "Riva",
    "endpoint": "10.0.0.2:50051",
    "language": "en-US",
    "riva_model": "parakeet",
    "automatic_punctuation": false,
    "timeout_ms": 5000,
  },
  "enhancement": {
    "provider": "gemini",
    "model": "gemini-2.0-flash",
    "timeout_ms": 3000,
    "cloud_types": "Email, document",
    "prompts": {"Email": "Formal please: {{TEXT}}"},
  },
  "learning": {"path": "/tmp/learn.db", "threshold": 0.5, "retention_days": 30},
  "bridge": {"enable": true, "listen": "127.0.0.1:9999", "allowed_origins": ["chrome-extension://abc"]},
  "output": {"clipboard_cmd": "xclip -selection clipboard", "paste_cmd": "wtype -M ctrl v", "trailing_space": false, "notify": true},
  "debug": {"log_level": "DEBUG", "audio_dump": true},
}`, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, "Elgato", cfg.Audio.Input)
	require.False(t, cfg.Audio.Prewarm)
	require.Equal(t, 44100, cfg.Audio.CaptureRate)
	require.Equal(t, 2, cfg.Audio.CaptureChannels)

	require.Equal(t, BackendRiva, cfg.Transcription.Backend)
	require.Equal(t, "10.0.0.2:50051", cfg.Transcription.ResolvedEndpoint())
	require.Equal(t, "parakeet", cfg.Transcription.RivaModel)
	require.False(t, cfg.Transcription.AutomaticPunctuation)
	require.Equal(t, int64(5000), cfg.Transcription.Timeout().Milliseconds())

	require.Equal(t, "gemini", cfg.Enhancement.Provider)
	require.Equal(t, []string{"email", "document"}, cfg.Enhancement.CloudTypes)
	require.Equal(t, map[string]string{"email": "Formal please: {{TEXT}}"}, cfg.Enhancement.Prompts)
	require.Equal(t, int64(3000), cfg.Enhancement.Timeout().Milliseconds())

	require.Equal(t, LearningConfig{Path: "/tmp/learn.db", Threshold: 0.5, RetentionDays: 30}, cfg.Learning)
	require.Equal(t, BridgeConfig{Enable: true, Listen: "127.0.0.1:9999", AllowedOrigins: []string{"chrome-extension://abc"}}, cfg.Bridge)

	require.Equal(t, []string{"xclip", "-selection", "clipboard"}, cfg.Output.Clipboard.Argv)
	require.Equal(t, []string{"wtype", "-M", "ctrl", "v"}, cfg.Output.Paste.Argv)
	require.False(t, cfg.Output.TrailingSpace)
	require.True(t, cfg.Output.Notify)
	require.Equal(t, DebugConfig{LogLevel: "debug", EnableAudioDump: true}, cfg.Debug)
}

func TestParseDoesNotMutateBase(t *testing.T) {
	base := Default()
	_, _, err := Parse(`{"enhancement": {"prompts": {"email": "x {{TEXT}}"}}, "vocab": {"sets": {"a": {"phrases": ["b"]}}}}`, base)
	require.NoError(t, err)
	require.Empty(t, base.Enhancement.Prompts)
	require.Empty(t, base.Vocab.Sets)
}

func TestParseRejectsNonObject(t *testing.T) {
	_, _, err := Parse("\n\nprovider = openai", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 3")
}

func TestParseEmptyContentYieldsBase(t *testing.T) {
	cfg, warnings, err := Parse("  \n", Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, Default(), cfg)
}

func TestParseJSONCRejectsUnknownFields(t *testing.T) {
	_, _, err := Parse(`{"riva": {"grpc": "127.0.0.1:50051"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCRejectsInvalidCommandArgv(t *testing.T) {
	_, _, err := Parse(`{"output": {"clipboard_cmd": "unterminated ' quote"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid output.clipboard_cmd")

	_, _, err = Parse(`{"output": {"paste_cmd": "unterminated ' quote"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid output.paste_cmd")
}

func TestParseJSONCVocabRejectsEmptySetName(t *testing.T) {
	_, _, err := Parse(`{"vocab":{"sets":{" ":{"phrases":["x"]}}}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty set name")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := Parse(`{"bridge":{"enable":false}}{"bridge":{"enable":true}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := Parse(`{
  "learning": {"threshold": "high"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line 2")
	require.Contains(t, err.Error(), "column")
}

func TestParseJSONCVocabGlobalSupportsCommaString(t *testing.T) {
	cfg, _, err := Parse(`{
  "vocab": {
    "global": "One, two, , three",
    "sets": {
      "One": {"phrases": ["one"]},
      "two": {"phrases": ["two"]},
      "three": {"phrases": ["three"]}
    }
  }
}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"One", "two", "three"}, cfg.Vocab.GlobalSets)
}
