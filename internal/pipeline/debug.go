package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bettervoice/bettervoice/internal/audio"
)

// writeDebugAudio writes canonical PCM to WAV when debug.audio_dump is enabled.
func (t *Transcriber) writeDebugAudio(pcm []byte) {
	if !t.cfg.Debug.EnableAudioDump || len(pcm) == 0 {
		return
	}

	file, err := createDebugFile("audio", "wav")
	if err != nil {
		t.logWarn("unable to create debug audio dump", "error", err.Error())
		return
	}
	defer file.Close()

	if err := audio.WriteWAV(file, pcm); err != nil {
		t.logWarn("unable to write debug audio dump", "error", err.Error())
		return
	}
	if t.logger != nil {
		t.logger.Debug("debug audio written", "path", file.Name(), "bytes", len(pcm))
	}
}

// createDebugFile creates timestamped debug artifacts under state/bettervoice/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}

	debugDir := filepath.Join(stateDir, "bettervoice", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
