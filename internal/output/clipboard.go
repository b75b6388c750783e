// Package output applies finished-text side effects (clipboard and paste).
package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/bettervoice/bettervoice/internal/config"
)

const clipboardTimeout = 2 * time.Second

// Committer applies output side effects (clipboard + optional paste).
type Committer struct {
	config config.OutputConfig
	logger *slog.Logger
}

// NewCommitter constructs a committer from the output section of the config.
func NewCommitter(cfg config.OutputConfig, logger *slog.Logger) *Committer {
	return &Committer{config: cfg, logger: logger}
}

// Format returns the text exactly as Commit would place it on the clipboard.
func (c *Committer) Format(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if c.config.TrailingSpace {
		text += " "
	}
	return text
}

// Commit writes text to the clipboard and dispatches paste_cmd when set.
// Paste failures are logged; the clipboard stays set.
func (c *Committer) Commit(ctx context.Context, text string) error {
	text = c.Format(text)
	if text == "" {
		return nil
	}

	clipboardCtx, clipboardCancel := context.WithTimeout(ctx, clipboardTimeout)
	defer clipboardCancel()
	if err := runCommandWithInput(clipboardCtx, c.config.Clipboard.Argv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}

	if len(c.config.Paste.Argv) == 0 {
		return nil
	}
	if err := dispatchPaste(ctx, c.config.Paste.Argv, pasteAttempts, pasteRetryDelay); err != nil {
		c.logPasteFailure(err)
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

func (c *Committer) logPasteFailure(err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Error("paste dispatch failed; clipboard remains set", "error", err.Error())
}
