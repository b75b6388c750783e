// Package indicator shows dictation progress as freedesktop notifications.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	appName        = "bettervoice"
	dispatchBudget = 400 * time.Millisecond
	progressMS     = 300000
	errorMS        = 1600

	iconRecording = "audio-input-microphone"
	iconWorking   = "accessories-text-editor"
	iconError     = "dialog-error"
)

// Notifier replaces one notification in place as the session advances.
type Notifier struct {
	enabled  bool
	logger   *slog.Logger
	messages messages

	mu sync.Mutex
	id uint32
}

// New returns a Notifier. A disabled notifier does nothing.
func New(enabled bool, logger *slog.Logger) *Notifier {
	return &Notifier{
		enabled:  enabled,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

func (n *Notifier) ShowRecording(ctx context.Context) {
	n.show(ctx, notification{Icon: iconRecording, Summary: n.messages.recording, Urgency: urgencyLow, TimeoutMS: progressMS})
}

func (n *Notifier) ShowTranscribing(ctx context.Context) {
	n.show(ctx, notification{Icon: iconWorking, Summary: n.messages.processing, Urgency: urgencyLow, TimeoutMS: progressMS})
}

func (n *Notifier) ShowEnhancing(ctx context.Context) {
	n.show(ctx, notification{Icon: iconWorking, Summary: n.messages.enhancing, Urgency: urgencyLow, TimeoutMS: progressMS})
}

// ShowError replaces the progress notification with text, or the default
// error message when text is empty.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = n.messages.errorText
	}
	n.show(ctx, notification{Icon: iconError, Summary: text, Urgency: urgencyCritical, TimeoutMS: errorMS})
}

// Hide closes the current notification, if any.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.enabled {
		return
	}
	n.mu.Lock()
	id := n.id
	n.id = 0
	n.mu.Unlock()
	if id == 0 {
		return
	}
	n.run(ctx, func(ctx context.Context) error { return desktopDismiss(ctx, id) })
}

func (n *Notifier) show(ctx context.Context, note notification) {
	if !n.enabled {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		n.mu.Lock()
		note.ReplaceID = n.id
		n.mu.Unlock()

		id, err := desktopNotify(ctx, appName, note)
		if err != nil {
			return err
		}

		n.mu.Lock()
		n.id = id
		n.mu.Unlock()
		return nil
	})
}

// run bounds one dispatch so a missing notification daemon never stalls a session.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchBudget)
	defer cancel()
	if err := fn(runCtx); err != nil && n.logger != nil {
		n.logger.Debug("indicator dispatch failed", "error", err.Error())
	}
}
