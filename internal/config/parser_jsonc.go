package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Audio         *jsoncAudio         `json:"audio"`
	Transcription *jsoncTranscription `json:"transcription"`
	Enhancement   *jsoncEnhancement   `json:"enhancement"`
	Learning      *jsoncLearning      `json:"learning"`
	Bridge        *jsoncBridge        `json:"bridge"`
	Output        *jsoncOutput        `json:"output"`
	Vocab         *jsoncVocab         `json:"vocab"`
	Debug         *jsoncDebug         `json:"debug"`
}

type jsoncAudio struct {
	Input           *string `json:"input"`
	Fallback        *string `json:"fallback"`
	Prewarm         *bool   `json:"prewarm"`
	CaptureRate     *int    `json:"capture_rate"`
	CaptureChannels *int    `json:"capture_channels"`
}

type jsoncTranscription struct {
	Backend              *string `json:"backend"`
	ModelPath            *string `json:"model_path"`
	Endpoint             *string `json:"endpoint"`
	Language             *string `json:"language"`
	Translate            *bool   `json:"translate"`
	InitialPrompt        *string `json:"initial_prompt"`
	TimeoutMS            *int    `json:"timeout_ms"`
	RivaModel            *string `json:"riva_model"`
	AutomaticPunctuation *bool   `json:"automatic_punctuation"`
}

type jsoncEnhancement struct {
	Provider   *string           `json:"provider"`
	Model      *string           `json:"model"`
	Endpoint   *string           `json:"endpoint"`
	TimeoutMS  *int              `json:"timeout_ms"`
	CloudTypes *jsoncStringList  `json:"cloud_types"`
	Prompts    map[string]string `json:"prompts"`
}

type jsoncLearning struct {
	Path          *string  `json:"path"`
	Threshold     *float64 `json:"threshold"`
	RetentionDays *int     `json:"retention_days"`
}

type jsoncBridge struct {
	Enable         *bool            `json:"enable"`
	Listen         *string          `json:"listen"`
	AllowedOrigins *jsoncStringList `json:"allowed_origins"`
}

type jsoncOutput struct {
	ClipboardCmd  *string `json:"clipboard_cmd"`
	PasteCmd      *string `json:"paste_cmd"`
	TrailingSpace *bool   `json:"trailing_space"`
	Notify        *bool   `json:"notify"`
}

type jsoncVocab struct {
	Global     *jsoncStringList         `json:"global"`
	MaxPhrases *int                     `json:"max_phrases"`
	Sets       map[string]jsoncVocabSet `json:"sets"`
}

type jsoncVocabSet struct {
	Boost   *float64 `json:"boost"`
	Phrases []string `json:"phrases"`
}

type jsoncDebug struct {
	LogLevel  *string `json:"log_level"`
	AudioDump *bool   `json:"audio_dump"`
}

// jsoncStringList accepts either a string array or one comma-delimited string.
type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = splitList(single)
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func decodeJSONC(content string, base Config) (Config, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, wrapJSONDecodeError(normalized, err)
	}

	cfg := base.clone()
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		setValue(&cfg.Audio.Prewarm, a.Prewarm)
		setValue(&cfg.Audio.CaptureRate, a.CaptureRate)
		setValue(&cfg.Audio.CaptureChannels, a.CaptureChannels)
	}

	if t := payload.Transcription; t != nil {
		if t.Backend != nil {
			cfg.Transcription.Backend = strings.ToLower(strings.TrimSpace(*t.Backend))
		}
		setString(&cfg.Transcription.ModelPath, t.ModelPath)
		setString(&cfg.Transcription.Endpoint, t.Endpoint)
		setString(&cfg.Transcription.Language, t.Language)
		setValue(&cfg.Transcription.Translate, t.Translate)
		setValue(&cfg.Transcription.InitialPrompt, t.InitialPrompt)
		setValue(&cfg.Transcription.TimeoutMS, t.TimeoutMS)
		setString(&cfg.Transcription.RivaModel, t.RivaModel)
		setValue(&cfg.Transcription.AutomaticPunctuation, t.AutomaticPunctuation)
	}

	if e := payload.Enhancement; e != nil {
		if e.Provider != nil {
			cfg.Enhancement.Provider = strings.ToLower(strings.TrimSpace(*e.Provider))
		}
		setString(&cfg.Enhancement.Model, e.Model)
		setString(&cfg.Enhancement.Endpoint, e.Endpoint)
		setValue(&cfg.Enhancement.TimeoutMS, e.TimeoutMS)
		if e.CloudTypes != nil {
			cfg.Enhancement.CloudTypes = normalizeNames(*e.CloudTypes)
		}
		for docType, prompt := range e.Prompts {
			name := strings.ToLower(strings.TrimSpace(docType))
			if name == "" {
				return fmt.Errorf("enhancement.prompts contains an empty document type")
			}
			cfg.Enhancement.Prompts[name] = prompt
		}
	}

	if l := payload.Learning; l != nil {
		setString(&cfg.Learning.Path, l.Path)
		setValue(&cfg.Learning.Threshold, l.Threshold)
		setValue(&cfg.Learning.RetentionDays, l.RetentionDays)
	}

	if b := payload.Bridge; b != nil {
		setValue(&cfg.Bridge.Enable, b.Enable)
		setString(&cfg.Bridge.Listen, b.Listen)
		if b.AllowedOrigins != nil {
			cfg.Bridge.AllowedOrigins = append([]string(nil), *b.AllowedOrigins...)
		}
	}

	if o := payload.Output; o != nil {
		if o.ClipboardCmd != nil {
			cmd, err := ParseCommand(*o.ClipboardCmd)
			if err != nil {
				return fmt.Errorf("invalid output.clipboard_cmd: %w", err)
			}
			cfg.Output.Clipboard = cmd
		}
		if o.PasteCmd != nil {
			cmd, err := ParseCommand(*o.PasteCmd)
			if err != nil {
				return fmt.Errorf("invalid output.paste_cmd: %w", err)
			}
			cfg.Output.Paste = cmd
		}
		setValue(&cfg.Output.TrailingSpace, o.TrailingSpace)
		setValue(&cfg.Output.Notify, o.Notify)
	}

	if v := payload.Vocab; v != nil {
		if v.Global != nil {
			cfg.Vocab.GlobalSets = cfg.Vocab.GlobalSets[:0]
			for _, name := range *v.Global {
				if name = strings.TrimSpace(name); name != "" {
					cfg.Vocab.GlobalSets = append(cfg.Vocab.GlobalSets, name)
				}
			}
		}
		setValue(&cfg.Vocab.MaxPhrases, v.MaxPhrases)
		for name, set := range v.Sets {
			trimmed := strings.TrimSpace(name)
			if trimmed == "" {
				return fmt.Errorf("vocab.sets contains an empty set name")
			}
			entry := VocabSet{Name: trimmed, Phrases: append([]string(nil), set.Phrases...)}
			setValue(&entry.Boost, set.Boost)
			cfg.Vocab.Sets[trimmed] = entry
		}
	}

	if d := payload.Debug; d != nil {
		if d.LogLevel != nil {
			cfg.Debug.LogLevel = strings.ToLower(strings.TrimSpace(*d.LogLevel))
		}
		setValue(&cfg.Debug.EnableAudioDump, d.AudioDump)
	}

	return nil
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// clone copies the maps and slices of c so applying a payload never mutates base.
func (c Config) clone() Config {
	out := c
	out.Enhancement.CloudTypes = append([]string(nil), c.Enhancement.CloudTypes...)
	out.Enhancement.Prompts = make(map[string]string, len(c.Enhancement.Prompts))
	for k, v := range c.Enhancement.Prompts {
		out.Enhancement.Prompts[k] = v
	}
	out.Bridge.AllowedOrigins = append([]string(nil), c.Bridge.AllowedOrigins...)
	out.Vocab.GlobalSets = append([]string(nil), c.Vocab.GlobalSets...)
	out.Vocab.Sets = make(map[string]VocabSet, len(c.Vocab.Sets))
	for k, v := range c.Vocab.Sets {
		out.Vocab.Sets[k] = v
	}
	return out
}

// normalizeJSONC blanks out comments and drops trailing commas while keeping
// every remaining byte at its original offset, so decoder positions still map
// to the source line and column.
func normalizeJSONC(content string) (string, error) {
	src := []byte(content)
	out := make([]byte, len(src))
	copy(out, src)

	blank := func(from, to int) {
		for i := from; i < to; i++ {
			if out[i] != '\n' && out[i] != '\r' && out[i] != '\t' {
				out[i] = ' '
			}
		}
	}

	// lastComma is the offset of a comma that becomes trailing if the next
	// significant byte closes an object or array.
	lastComma := -1
	for i := 0; i < len(src); i++ {
		switch ch := src[i]; {
		case ch == '"':
			lastComma = -1
			for i++; i < len(src) && src[i] != '"'; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			end := i
			for end < len(src) && src[end] != '\n' && src[end] != '\r' {
				end++
			}
			blank(i, end)
			i = end - 1
		case ch == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(content[i+2:], "*/")
			if end < 0 {
				return "", fmt.Errorf("unterminated block comment in JSONC")
			}
			blank(i, i+2+end+2)
			i = i + 2 + end + 1
		case ch == ',':
			lastComma = i
		case ch == '}' || ch == ']':
			if lastComma >= 0 {
				out[lastComma] = ' '
			}
			lastComma = -1
		case isJSONWhitespace(ch):
		default:
			lastComma = -1
		}
	}
	return string(out), nil
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))
	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
