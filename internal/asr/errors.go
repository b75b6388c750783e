package asr

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotLoaded is returned when transcribing with a closed or zero engine.
	ErrModelNotLoaded = errors.New("transcription model not loaded")
	// ErrTranscriptionFailed matches every *TranscriptionError.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrModelNotFound means the model file does not exist.
	ErrModelNotFound = errors.New("model file not found")
	// ErrInvalidModel means the model file is not a recognized whisper model.
	ErrInvalidModel = errors.New("invalid model file")
	// ErrNativeUnavailable is returned by the native runtime in builds without whisper.cpp.
	ErrNativeUnavailable = errors.New("native whisper runtime not compiled in (build with -tags whispercpp)")
)

// TranscriptionError carries the reason a runtime failed to transcribe.
type TranscriptionError struct {
	Reason string
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription failed: %s: %v", e.Reason, e.Err)
	}
	return "transcription failed: " + e.Reason
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

func (e *TranscriptionError) Is(target error) bool { return target == ErrTranscriptionFailed }

func failed(reason string, err error) error {
	return &TranscriptionError{Reason: reason, Err: err}
}
