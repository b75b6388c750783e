// Package session coordinates dictation lifecycle state, actions, and commit flow.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bettervoice/bettervoice/internal/classify"
	"github.com/bettervoice/bettervoice/internal/enhance"
	"github.com/bettervoice/bettervoice/internal/fsm"
	"github.com/bettervoice/bettervoice/internal/ipc"
	"github.com/bettervoice/bettervoice/internal/metrics"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	SessionID         string
	State             fsm.State
	Transcript        string
	Text              string
	DocumentType      classify.DocumentType
	Decision          enhance.Decision
	Cancelled         bool
	Err               error
	AudioDevice       string
	BytesCaptured     int64
	TranscribeLatency time.Duration
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowTranscribing(context.Context)
	ShowEnhancing(context.Context)
	ShowError(context.Context, string)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)     {}
func (noopIndicator) ShowTranscribing(context.Context)  {}
func (noopIndicator) ShowEnhancing(context.Context)     {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) Hide(context.Context)              {}

// Controller orchestrates session state transitions and side effects.
type Controller struct {
	logger     *slog.Logger
	transcribe Transcriber
	finish     Finisher
	commit     Committer
	indicator  Indicator

	mu    sync.RWMutex
	state fsm.State
	last  Result

	actions chan action
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	transcriber Transcriber,
	finisher Finisher,
	committer Committer,
	indicator Indicator,
) *Controller {
	if transcriber == nil {
		transcriber = unavailable{}
	}
	if finisher == nil {
		finisher = passthrough
	}
	if committer == nil {
		committer = CommitFunc(func(context.Context, string) error { return nil })
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}

	return &Controller{
		logger:     logger,
		transcribe: transcriber,
		finish:     finisher,
		commit:     committer,
		indicator:  indicator,
		state:      fsm.StateIdle,
		actions:    make(chan action, 1),
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run executes one owner lifecycle from start to stop/cancel/failure completion.
func (c *Controller) Run(ctx context.Context) (result Result) {
	result = Result{SessionID: uuid.NewString(), StartedAt: time.Now()}
	defer func() {
		result.State = c.State()
		result.FinishedAt = time.Now()
		c.mu.Lock()
		c.last = result
		c.mu.Unlock()
		metrics.CaptureSessionsTotal.WithLabelValues(outcome(result)).Inc()
	}()

	if err := c.transition(fsm.EventStart); err != nil {
		result.Err = err
		return result
	}

	c.indicator.ShowRecording(ctx)
	if err := c.transcribe.Start(ctx); err != nil {
		c.indicator.ShowError(context.Background(), "Unable to start recording")
		c.toErrorAndReset()
		result.Err = err
		return result
	}

	defer func() {
		if result.Err != nil {
			return
		}
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		c.indicator.Hide(cleanupCtx)
	}()

	select {
	case <-ctx.Done():
		_ = c.transcribe.Cancel(context.Background())
		c.indicator.ShowError(context.Background(), "Cancelled")
		c.toErrorAndReset()
		result.Err = ctx.Err()
		return result
	case a := <-c.actions:
		switch a {
		case actionCancel:
			_ = c.transcribe.Cancel(context.Background())
			_ = c.transition(fsm.EventCancel)
			result.Cancelled = true
			return result
		case actionStop:
			c.stop(ctx, &result)
			return result
		default:
			c.toErrorAndReset()
			result.Err = fmt.Errorf("unknown action %d", a)
			return result
		}
	}
}

// stop runs transcribing -> enhancing -> commit for a stop action.
func (c *Controller) stop(ctx context.Context, result *Result) {
	if err := c.transition(fsm.EventStop); err != nil {
		c.toErrorAndReset()
		result.Err = err
		return
	}

	c.indicator.ShowTranscribing(ctx)
	stopResult, err := c.transcribe.StopAndTranscribe(ctx)
	result.Transcript = stopResult.Transcript
	result.AudioDevice = stopResult.AudioDevice
	result.BytesCaptured = stopResult.BytesCaptured
	result.TranscribeLatency = stopResult.Latency
	if err != nil {
		c.indicator.ShowError(context.Background(), "Speech recognition failed")
		c.toErrorAndReset()
		result.Err = err
		return
	}
	if strings.TrimSpace(stopResult.Transcript) == "" {
		c.indicator.ShowError(context.Background(), "No speech detected")
		c.toErrorAndReset()
		result.Err = ErrEmptyTranscript
		return
	}

	if err := c.transition(fsm.EventTranscribed); err != nil {
		c.toErrorAndReset()
		result.Err = err
		return
	}
	c.indicator.ShowEnhancing(ctx)
	finished := c.finish.Finish(ctx, stopResult.Transcript)
	if strings.TrimSpace(finished.Text) == "" {
		finished.Text = stopResult.Transcript
	}
	result.Text = finished.Text
	result.DocumentType = finished.DocumentType
	result.Decision = finished.Decision

	if err := c.commit.Commit(ctx, finished.Text); err != nil {
		c.indicator.ShowError(context.Background(), "Output dispatch failed")
		c.toErrorAndReset()
		result.Err = err
		return
	}
	if err := c.transition(fsm.EventEnhanced); err != nil {
		result.Err = err
	}
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.status()
	case ipc.CommandLevel:
		state := c.State()
		var level float64
		if state == fsm.StateRecording {
			level = c.transcribe.Level()
		}
		return ipc.Response{OK: true, State: string(state), Level: level}
	case ipc.CommandToggle:
		return c.requestStop("toggle")
	case ipc.CommandStop:
		return c.requestStop("stop")
	case ipc.CommandCancel:
		return c.requestCancel()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) status() ipc.Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp := ipc.Response{OK: true, State: string(c.state), Message: "status"}
	if c.last.SessionID != "" && c.last.Err == nil && !c.last.Cancelled {
		resp.DocumentType = string(c.last.DocumentType)
		resp.Text = c.last.Text
	}
	return resp
}

// requestStop enqueues a stop action when state permits it.
func (c *Controller) requestStop(source string) ipc.Response {
	state := c.State()
	if state == fsm.StateTranscribing || state == fsm.StateEnhancing {
		return ipc.Response{OK: false, State: string(state), Error: "already " + string(state)}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", source, state)}
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
}

// requestCancel enqueues a cancel action when state permits it.
func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	if state == fsm.StateTranscribing || state == fsm.StateEnhancing {
		return ipc.Response{OK: false, State: string(state), Error: "cannot cancel while " + string(state)}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot cancel from state %s", state)}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "cancel already requested"}
	}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
}

func outcome(r Result) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case errors.Is(r.Err, ErrEmptyTranscript):
		return "empty"
	case r.Err != nil:
		return "failed"
	default:
		return "committed"
	}
}

// IsPipelineUnavailable reports whether an error represents missing pipeline wiring.
func IsPipelineUnavailable(err error) bool {
	return errors.Is(err, ErrPipelineUnavailable)
}
