//go:build !whispercpp

package asr

import "context"

// NativeRuntime is a placeholder in builds without the whisper.cpp bridge; every
// operation reports ErrNativeUnavailable.
type NativeRuntime struct{}

// NewNativeRuntime returns the unavailable native runtime.
func NewNativeRuntime() Runtime {
	return NativeRuntime{}
}

func (NativeRuntime) Name() string { return "native" }

func (NativeRuntime) RequiresModelFile() bool { return true }

func (NativeRuntime) Load(context.Context, string) error { return ErrNativeUnavailable }

func (NativeRuntime) Infer(context.Context, Request) (string, error) {
	return "", ErrNativeUnavailable
}

func (NativeRuntime) Valid() bool { return false }

func (NativeRuntime) Close() error { return nil }
