// Package riva adapts NVIDIA Riva offline recognition to the asr.Runtime contract.
package riva

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bettervoice/bettervoice/internal/asr"
	"github.com/bettervoice/bettervoice/internal/audio"
	"google.golang.org/grpc"
)

const recognizeMethod = "/nvidia.riva.asr.RivaSpeechRecognition/Recognize"

// SpeechPhrase is one vocabulary boost phrase in request-ready form.
type SpeechPhrase struct {
	Phrase string
	Boost  float32
}

// Config controls connection and recognition behavior.
type Config struct {
	Endpoint             string
	LanguageCode         string
	Model                string
	AutomaticPunctuation bool
	SpeechPhrases        []SpeechPhrase
	DialTimeout          time.Duration
}

// Runtime runs one unary Recognize call per transcription request.
type Runtime struct {
	cfg Config

	mu   sync.Mutex
	conn *grpc.ClientConn
}

var _ asr.Runtime = (*Runtime)(nil)

// NewRuntime returns an unconnected Riva runtime; Load dials.
func NewRuntime(cfg Config) *Runtime {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if strings.TrimSpace(cfg.LanguageCode) == "" {
		cfg.LanguageCode = "en-US"
	}
	return &Runtime{cfg: cfg}
}

func (r *Runtime) Name() string { return "riva" }

// RequiresModelFile is false: Riva selects its model server-side by name.
func (r *Runtime) RequiresModelFile() bool { return false }

// Load dials the endpoint and waits for the channel to become ready.
func (r *Runtime) Load(ctx context.Context, _ string) error {
	endpoint := strings.TrimSpace(r.cfg.Endpoint)
	if endpoint == "" {
		return errors.New("riva endpoint is empty")
	}

	readyCtx, cancel := context.WithTimeout(ctx, r.cfg.DialTimeout)
	defer cancel()
	conn, err := dial(readyCtx, endpoint)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	return nil
}

// Infer sends the whole utterance in one Recognize call and merges the results.
func (r *Runtime) Infer(ctx context.Context, req asr.Request) (string, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return "", asr.ErrModelNotLoaded
	}
	if len(req.Samples) == 0 {
		return "", errEmptyAudio
	}

	language := r.cfg.LanguageCode
	if lang := strings.TrimSpace(req.Language); lang != "" && lang != "auto" {
		language = lang
	}

	phrases := make([]SpeechPhrase, 0, len(r.cfg.SpeechPhrases))
	for _, phrase := range r.cfg.SpeechPhrases {
		text := strings.TrimSpace(phrase.Phrase)
		if text == "" {
			continue
		}
		phrases = append(phrases, SpeechPhrase{Phrase: text, Boost: phrase.Boost})
	}

	payload := encodeRecognizeRequest(recognitionConfig{
		SampleRateHertz:      int32(audio.Canonical.SampleRate),
		LanguageCode:         language,
		MaxAlternatives:      1,
		AudioChannelCount:    int32(audio.Canonical.Channels),
		AutomaticPunctuation: r.cfg.AutomaticPunctuation,
		Model:                strings.TrimSpace(r.cfg.Model),
		SpeechPhrases:        phrases,
	}, req.Samples)

	var reply []byte
	if err := conn.Invoke(ctx, recognizeMethod, payload, &reply, grpc.ForceCodec(rawCodec{})); err != nil {
		return "", fmt.Errorf("riva recognize: %w", err)
	}

	results, err := decodeRecognizeResponse(reply)
	if err != nil {
		return "", err
	}

	var segments []string
	for _, alts := range results {
		if len(alts) == 0 {
			continue
		}
		segments = appendSegment(segments, alts[0].Transcript)
	}
	return strings.Join(segments, " "), nil
}

func (r *Runtime) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
