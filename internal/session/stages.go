package session

import (
	"context"
	"errors"
	"time"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/enhance"
)

// A session runs three stages in order: the Transcriber captures and
// recognizes speech, the Finisher classifies and enhances the transcript,
// and the Committer delivers the text.

var (
	// ErrPipelineUnavailable means no capture/transcription stage is wired.
	ErrPipelineUnavailable = errors.New("audio capture and transcription pipeline not configured")
	// ErrEmptyTranscript means capture stopped but nothing was recognized.
	ErrEmptyTranscript = errors.New("no speech recognized; check microphone input or mute state")
)

// StopResult is what the Transcriber hands to the controller.
type StopResult struct {
	Transcript    string
	AudioDevice   string
	BytesCaptured int64
	Latency       time.Duration
}

// Transcriber captures audio for one session and recognizes it on stop.
type Transcriber interface {
	Start(context.Context) error
	StopAndTranscribe(context.Context) (StopResult, error)
	Cancel(context.Context) error
	// Level is the current input level in [0,1]; zero when not capturing.
	Level() float64
}

// unavailable stands in when no Transcriber is wired: sessions start, and
// stopping reports ErrPipelineUnavailable.
type unavailable struct{}

func (unavailable) Start(context.Context) error { return nil }

func (unavailable) StopAndTranscribe(context.Context) (StopResult, error) {
	return StopResult{}, ErrPipelineUnavailable
}

func (unavailable) Cancel(context.Context) error { return nil }

func (unavailable) Level() float64 { return 0 }

// Finished is the classified and enhanced form of a raw transcript.
type Finished struct {
	Text         string
	DocumentType classify.DocumentType
	Decision     enhance.Decision
}

// Finisher turns a raw transcript into output text. It never fails; the
// worst case is the transcript itself.
type Finisher interface {
	Finish(ctx context.Context, transcript string) Finished
}

// FinishFunc adapts a function to the Finisher interface.
type FinishFunc func(context.Context, string) Finished

func (f FinishFunc) Finish(ctx context.Context, transcript string) Finished {
	return f(ctx, transcript)
}

var passthrough = FinishFunc(func(_ context.Context, transcript string) Finished {
	return Finished{Text: transcript, DocumentType: classify.Unknown}
})

// Committer delivers finished text, e.g. to the clipboard.
type Committer interface {
	Commit(context.Context, string) error
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(context.Context, string) error

func (f CommitFunc) Commit(ctx context.Context, text string) error {
	return f(ctx, text)
}
