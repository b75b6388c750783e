// Package doctor runs runtime readiness diagnostics for config, tools, audio,
// the recognizer, the learning store, and cloud credentials.
package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/bettervoice/bettervoice/internal/asr"
	"github.com/bettervoice/bettervoice/internal/audio"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/learning"
	"github.com/bettervoice/bettervoice/internal/llm"
	"github.com/bettervoice/bettervoice/internal/pipeline"
	"github.com/bettervoice/bettervoice/internal/secrets"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Deps are the live collaborators doctor probes. A nil AudioBackend skips
// device selection; a nil Secrets skips the credential check.
type Deps struct {
	AudioBackend audio.Backend
	Secrets      secrets.Store
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, deps Deps) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkCommand(cfg.Output.Clipboard.Argv, "clipboard_cmd"))
	if len(cfg.Output.Paste.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Output.Paste.Argv, "paste_cmd"))
	}

	if deps.AudioBackend != nil {
		checks = append(checks, checkAudioSelection(ctx, deps.AudioBackend, cfg))
	}
	checks = append(checks, checkTranscription(ctx, cfg))
	checks = append(checks, checkLearningStore(ctx, cfg))
	if deps.Secrets != nil {
		checks = append(checks, checkCredentials(cfg, deps.Secrets))
	}

	return Report{Checks: checks}
}

// checkConfig reports the resolved path and folds parse warnings into the message.
func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	var notes []string
	for _, w := range loaded.Warnings {
		if !loaded.Exists && w.Line == 0 && strings.Contains(w.Message, "not found") {
			continue
		}
		if w.Line > 0 {
			notes = append(notes, fmt.Sprintf("line %d: %s", w.Line, w.Message))
		} else {
			notes = append(notes, w.Message)
		}
	}
	if len(notes) > 0 {
		message += "; warnings: " + strings.Join(notes, "; ")
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, backend audio.Backend, cfg config.Config) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	selection, err := audio.SelectDevice(ctx, backend, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

type prober interface {
	Probe(ctx context.Context) error
}

// checkTranscription verifies the configured recognizer without running inference:
// a model file for native, reachability for remote backends.
func checkTranscription(ctx context.Context, cfg config.Config) Check {
	name := "transcription." + cfg.Transcription.Backend
	runtime, err := pipeline.NewRuntime(cfg)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	defer func() { _ = runtime.Close() }()

	if runtime.RequiresModelFile() {
		if err := asr.ValidateModelFile(cfg.Transcription.ModelPath); err != nil {
			return Check{Name: name, Pass: false, Message: err.Error()}
		}
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("model %q looks valid", cfg.Transcription.ModelPath)}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	endpoint := cfg.Transcription.ResolvedEndpoint()
	if p, ok := runtime.(prober); ok {
		err = p.Probe(ctx)
	} else {
		err = runtime.Load(ctx, "")
	}
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("reachable at %s", endpoint)}
}

// checkLearningStore opens the correction store, creating it when absent.
func checkLearningStore(ctx context.Context, cfg config.Config) Check {
	path, err := cfg.LearningPath()
	if err != nil {
		return Check{Name: "learning.store", Pass: false, Message: err.Error()}
	}
	store, err := learning.Open(ctx, path, learning.Options{})
	if err != nil {
		return Check{Name: "learning.store", Pass: false, Message: err.Error()}
	}
	if err := store.Close(); err != nil {
		return Check{Name: "learning.store", Pass: false, Message: err.Error()}
	}
	return Check{Name: "learning.store", Pass: true, Message: fmt.Sprintf("writable at %s", path)}
}

// checkCredentials confirms a key is stored when the provider needs one.
func checkCredentials(cfg config.Config, store secrets.Store) Check {
	provider := llm.Provider(cfg.Enhancement.Provider)
	name := "enhancement." + string(provider)
	switch {
	case !provider.Valid():
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("unknown provider %q", provider)}
	case provider == llm.ProviderNone:
		return Check{Name: name, Pass: true, Message: "cloud enhancement disabled"}
	case !provider.NeedsKey():
		return Check{Name: name, Pass: true, Message: "no API key required"}
	case store.Exists(provider.SecretKey()):
		return Check{Name: name, Pass: true, Message: "API key present"}
	default:
		return Check{Name: name, Pass: false, Message: fmt.Sprintf(
			"no API key stored; set %s or run `bettervoice key set %s`", secrets.EnvName(provider.SecretKey()), provider)}
	}
}
