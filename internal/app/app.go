package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bettervoice/bettervoice/internal/cli"
	"github.com/bettervoice/bettervoice/internal/config"
	"github.com/bettervoice/bettervoice/internal/doctor"
	"github.com/bettervoice/bettervoice/internal/ipc"
	"github.com/bettervoice/bettervoice/internal/logging"
	"github.com/bettervoice/bettervoice/internal/session"
	"github.com/bettervoice/bettervoice/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr, Stdin: os.Stdin}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(appName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(appName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	if strings.TrimSpace(os.Getenv(logging.LevelEnv)) == "" {
		if err := logRuntime.SetLevel(cfgLoaded.Config.Debug.LogLevel); err != nil {
			logger.Warn("ignoring configured log level", "error", err.Error())
		}
	}
	// doctor folds warnings into its own report.
	if parsed.Command != cli.CommandDoctor {
		for _, w := range cfgLoaded.Warnings {
			msg := w.Message
			if w.Line > 0 {
				msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
			}
			fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
			logger.Warn("config warning", "line", w.Line, "message", w.Message)
		}
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		return r.commandDoctor(ctx, cfgLoaded)
	case cli.CommandDevices:
		return r.commandDevices(ctx, cfgLoaded.Config)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandLevel:
		return r.commandLevel(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.CommandCancel)
	case cli.CommandToggle:
		return r.commandToggle(ctx, cfgLoaded, logger)
	case cli.CommandTranscribe:
		return r.commandTranscribe(ctx, cfgLoaded.Config, logger, parsed.Args[0])
	case cli.CommandClassify:
		return r.commandClassify(parsed.Text(), logger)
	case cli.CommandEnhance:
		return r.commandEnhance(ctx, cfgLoaded.Config, logger, parsed)
	case cli.CommandPatterns:
		return r.commandPatterns(ctx, cfgLoaded.Config, logger, parsed.Args)
	case cli.CommandKey:
		return r.commandKey(parsed.Args[0], parsed.Args[1])
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded, &logRuntime, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDoctor(ctx context.Context, loaded config.Loaded) int {
	deps := doctor.Deps{AudioBackend: pulseBackend(loaded.Config)}
	if keys, err := secretStore(); err == nil {
		deps.Secrets = keys
	}
	report := doctor.Run(ctx, loaded, deps)
	fmt.Fprintln(r.Stdout, report.String())
	if report.OK() {
		return 0
	}
	return 1
}

func (r Runner) commandDevices(ctx context.Context, cfg config.Config) int {
	devices, err := pulseBackend(cfg).Devices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		fmt.Fprintln(r.Stdout, resp.State)
		if resp.DocumentType != "" {
			fmt.Fprintf(r.Stdout, "last: %s %q\n", resp.DocumentType, resp.Text)
		}
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

// commandLevel prints the owner's live input level, or 0 without a session.
func (r Runner) commandLevel(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "0.000")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandLevel)
	if handled && err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(r.Stdout, "%.3f\n", resp.Level)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active bettervoice session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", result.SessionID,
		"state", result.State,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"audio_device", result.AudioDevice,
		"bytes_captured", result.BytesCaptured,
		"transcript_length", len(result.Transcript),
		"text_length", len(result.Text),
		"document_type", result.DocumentType,
		"used_cloud", result.Decision.UsedCloud,
		"transcribe_latency_ms", result.TranscribeLatency.Milliseconds(),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	return ipc.Forward(ctx, socketPath, command, ipc.DefaultForwardTimeout)
}
