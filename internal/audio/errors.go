package audio

import "errors"

var (
	// ErrAlreadyCapturing is returned by Start while a session is active.
	ErrAlreadyCapturing = errors.New("audio capture already in progress")
	// ErrNotCapturing is returned by Stop when no session is active.
	ErrNotCapturing = errors.New("audio capture is not running")
	// ErrDeviceNotFound means no input device matched the requested selection.
	ErrDeviceNotFound = errors.New("audio input device not found")
	// ErrPermissionDenied means microphone access has not been granted.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrConversionFailed wraps every format conversion failure.
	ErrConversionFailed = errors.New("audio conversion failed")
)
