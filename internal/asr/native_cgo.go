//go:build whispercpp

package asr

/*
#cgo LDFLAGS: -lwhisper_bridge -lwhisper -lstdc++ -lm
#include <stdbool.h>
#include <stdlib.h>

typedef struct whisper_context whisper_context;

whisper_context* whisper_bridge_init(const char* model_path);
void whisper_bridge_free(whisper_context* ctx);
char* whisper_bridge_transcribe(
    whisper_context* ctx,
    const float* audio_data,
    int audio_length,
    const char* language,
    bool translate,
    const char* initial_prompt);
bool whisper_bridge_is_valid(whisper_context* ctx);
*/
import "C"

import (
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"unsafe"
)

// NativeRuntime runs whisper.cpp in-process through the whisper_bridge C API.
type NativeRuntime struct {
	mu  sync.Mutex
	ctx *C.whisper_context
}

// NewNativeRuntime returns an unloaded in-process runtime.
func NewNativeRuntime() Runtime {
	return &NativeRuntime{}
}

func (r *NativeRuntime) Name() string { return "native" }

func (r *NativeRuntime) RequiresModelFile() bool { return true }

func (r *NativeRuntime) Load(_ context.Context, modelPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))

	handle := C.whisper_bridge_init(cPath)
	if handle == nil {
		return errors.New("whisper_bridge_init returned no context")
	}
	if !bool(C.whisper_bridge_is_valid(handle)) {
		// r.ctx is not set yet, so Close would never release it.
		C.whisper_bridge_free(handle)
		return errors.New("whisper_bridge_init returned an invalid context")
	}
	r.ctx = handle
	return nil
}

// Infer blocks until whisper_full returns; ctx is checked only before the call.
func (r *NativeRuntime) Infer(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return "", ErrModelNotLoaded
	}

	samples := pcm16ToFloat32(req.Samples)

	cLanguage := C.CString(req.Language)
	defer C.free(unsafe.Pointer(cLanguage))

	var cPrompt *C.char
	if prompt := strings.TrimSpace(req.InitialPrompt); prompt != "" {
		cPrompt = C.CString(prompt)
		defer C.free(unsafe.Pointer(cPrompt))
	}

	out := C.whisper_bridge_transcribe(
		r.ctx,
		(*C.float)(unsafe.Pointer(&samples[0])),
		C.int(len(samples)),
		cLanguage,
		C.bool(req.Translate),
		cPrompt,
	)
	if out == nil {
		return "", errors.New("whisper_bridge_transcribe returned no text")
	}
	defer C.free(unsafe.Pointer(out))

	text := C.GoString(out)
	if strings.HasPrefix(text, "[DEBUG:") {
		return "", errors.New(strings.Trim(text, "[]"))
	}
	return text, nil
}

func (r *NativeRuntime) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctx != nil && bool(C.whisper_bridge_is_valid(r.ctx))
}

func (r *NativeRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		C.whisper_bridge_free(r.ctx)
		r.ctx = nil
	}
	return nil
}

func pcm16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}
