package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bettervoice/bettervoice/internal/fsm"
)

// Backend enumerates input devices and opens capture sources on them.
type Backend interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, device Device) (Source, error)
}

// Source is one opened hardware input pipeline.
//
// Start begins delivering interleaved PCM in Format() to onChunk from the
// backend's own goroutine. Close stops delivery and releases the hardware;
// it must be safe to call more than once.
type Source interface {
	Format() Format
	Start(onChunk func([]byte)) error
	Close() error
}

// CaptureOptions configures device preference and the level meter.
type CaptureOptions struct {
	Input    string
	Fallback string

	LevelInterval time.Duration
	LevelGain     float64
}

// Capture owns at most one active capture session and converts everything it
// hears into canonical PCM16.
type Capture struct {
	backend     Backend
	permissions PermissionChecker
	logger      *slog.Logger
	opts        CaptureOptions

	// opMu serializes lifecycle operations; mu guards data touched by the chunk callback.
	opMu       sync.Mutex
	state      fsm.CaptureState
	source     Source
	warm       Source
	warmDevice Device
	device     Device
	levelStop  chan struct{}
	levelDone  chan struct{}

	mu         sync.Mutex
	accepting  bool
	from       Format
	blockBytes int
	pending    []byte
	buffer     []byte
	convErr    error
	window     levelWindow

	bytes atomic.Int64
	level atomic.Uint64
	hub   levelHub
}

// NewCapture builds an idle capture owner. A nil permission checker means
// access is always granted.
func NewCapture(backend Backend, permissions PermissionChecker, logger *slog.Logger, opts CaptureOptions) *Capture {
	if permissions == nil {
		permissions = AlwaysGranted
	}
	if opts.LevelInterval <= 0 {
		opts.LevelInterval = LevelInterval
	}
	if opts.LevelGain <= 0 {
		opts.LevelGain = LevelGain
	}
	return &Capture{
		backend:     backend,
		permissions: permissions,
		logger:      logger,
		opts:        opts,
		state:       fsm.CaptureIdle,
	}
}

// State returns the current lifecycle state.
func (c *Capture) State() fsm.CaptureState {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.state
}

// Device returns the device used by the most recent session.
func (c *Capture) Device() Device {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.device
}

// BytesCaptured reports hardware bytes accepted during the most recent session.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Level returns the most recent input level in [0,1].
func (c *Capture) Level() float64 {
	return levelFromBits(c.level.Load())
}

// SubscribeLevels registers a bounded level stream. Subscriptions outlive
// individual sessions and are closed by Close.
func (c *Capture) SubscribeLevels(buffer int) *LevelSubscription {
	return c.hub.subscribe(buffer)
}

// PreWarm resolves the device and opens its pipeline without capturing, so the
// next Start skips hardware setup.
func (c *Capture) PreWarm(ctx context.Context, deviceID string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.state == fsm.CaptureActive {
		return ErrAlreadyCapturing
	}
	if c.warm != nil && (deviceID == "" || deviceMatches(c.warmDevice, normalizeTerm(deviceID))) {
		return nil
	}

	next, err := fsm.TransitionCapture(c.state, fsm.CapturePrewarm)
	if err != nil {
		return err
	}

	device, err := c.resolve(ctx, deviceID)
	if err != nil {
		return err
	}
	source, err := c.backend.Open(ctx, device)
	if err != nil {
		return fmt.Errorf("prewarm %q: %w", device.ID, err)
	}

	c.releaseWarm()
	c.warm = source
	c.warmDevice = device
	c.state = next
	return nil
}

// Start begins a capture session on deviceID (empty selects the configured input).
func (c *Capture) Start(ctx context.Context, deviceID string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.state == fsm.CaptureActive {
		return ErrAlreadyCapturing
	}
	next, err := fsm.TransitionCapture(c.state, fsm.CaptureStart)
	if err != nil {
		return err
	}

	status, err := c.permissions.Check(ctx)
	if err != nil {
		return fmt.Errorf("check microphone permission: %w", err)
	}
	if status != PermissionGranted {
		return ErrPermissionDenied
	}

	source, device := c.warm, c.warmDevice
	if source == nil || (deviceID != "" && !deviceMatches(device, normalizeTerm(deviceID))) {
		c.releaseWarm()
		device, err = c.resolve(ctx, deviceID)
		if err != nil {
			return err
		}
		source, err = c.backend.Open(ctx, device)
		if err != nil {
			return fmt.Errorf("open %q: %w", device.ID, err)
		}
	}
	c.warm = nil
	c.warmDevice = Device{}

	from := source.Format()
	if err := from.validate(); err != nil {
		_ = source.Close()
		return fmt.Errorf("%w: device format %v", ErrConversionFailed, err)
	}
	blockFrames, _ := ConversionBlock(from, Canonical)

	c.mu.Lock()
	c.from = from
	c.blockBytes = blockFrames * from.FrameSize()
	c.pending = nil
	c.buffer = nil
	c.convErr = nil
	c.window.reset()
	c.accepting = true
	c.mu.Unlock()
	c.bytes.Store(0)

	if err := source.Start(c.onChunk); err != nil {
		c.mu.Lock()
		c.accepting = false
		c.mu.Unlock()
		_ = source.Close()
		return fmt.Errorf("start capture on %q: %w", device.ID, err)
	}

	c.source = source
	c.device = device
	c.state = next
	c.startLevelLoop()

	c.logInfo("capture started", "device", device.Label(), "format", from.String())
	return nil
}

// Stop ends the active session and returns every canonical byte captured.
func (c *Capture) Stop() ([]byte, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.state != fsm.CaptureActive {
		return nil, ErrNotCapturing
	}
	return c.stopLocked()
}

// Close force-stops an active session, releases any pre-warmed pipeline, and
// closes all level subscriptions. Safe to call more than once.
func (c *Capture) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.state == fsm.CaptureActive {
		_, _ = c.stopLocked()
	}
	c.releaseWarm()
	c.state, _ = fsm.TransitionCapture(c.state, fsm.CaptureRelease)
	c.hub.closeAll()
	return nil
}

func (c *Capture) stopLocked() ([]byte, error) {
	c.mu.Lock()
	c.accepting = false
	c.mu.Unlock()

	c.stopLevelLoop()

	if err := c.source.Close(); err != nil {
		c.logWarn("close capture source failed", "error", err.Error())
	}
	c.source = nil

	c.mu.Lock()
	c.flushTailLocked()
	data := c.buffer
	convErr := c.convErr
	c.buffer = nil
	c.pending = nil
	c.convErr = nil
	c.window.reset()
	c.mu.Unlock()

	c.level.Store(levelToBits(0))
	c.state, _ = fsm.TransitionCapture(c.state, fsm.CaptureStop)

	if convErr != nil {
		return nil, convErr
	}
	if data == nil {
		data = []byte{}
	}
	c.logInfo("capture stopped", "device", c.device.Label(), "bytes", len(data))
	return data, nil
}

// onChunk converts whole resample blocks to canonical PCM and appends them.
// It runs on the backend goroutine and must not block or do I/O.
func (c *Capture) onChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.accepting || c.convErr != nil {
		return
	}
	c.bytes.Add(int64(len(chunk)))

	c.pending = append(c.pending, chunk...)
	whole := len(c.pending) - len(c.pending)%c.blockBytes
	if whole == 0 {
		return
	}

	converted, err := Convert(c.pending[:whole], c.from, Canonical)
	if err != nil {
		c.convErr = err
		return
	}
	c.pending = append(c.pending[:0], c.pending[whole:]...)
	c.buffer = append(c.buffer, converted...)
	c.window.push(converted)
}

// flushTailLocked converts the whole frames left over after the last full
// resample block. The tail yields floor(frames*to/from) output frames.
func (c *Capture) flushTailLocked() {
	if c.convErr != nil || len(c.pending) == 0 {
		return
	}
	frameSize := c.from.FrameSize()
	tail := c.pending[:len(c.pending)-len(c.pending)%frameSize]
	c.pending = nil
	if len(tail) == 0 {
		return
	}
	converted, err := Convert(tail, c.from, Canonical)
	if err != nil {
		c.convErr = err
		return
	}
	c.buffer = append(c.buffer, converted...)
}

func (c *Capture) startLevelLoop() {
	stop := make(chan struct{})
	done := make(chan struct{})
	c.levelStop = stop
	c.levelDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.opts.LevelInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				level := c.window.level(c.opts.LevelGain)
				c.mu.Unlock()
				c.level.Store(levelToBits(level))
				c.hub.publish(level)
			}
		}
	}()
}

func (c *Capture) stopLevelLoop() {
	if c.levelStop == nil {
		return
	}
	close(c.levelStop)
	<-c.levelDone
	c.levelStop = nil
	c.levelDone = nil
}

func (c *Capture) releaseWarm() {
	if c.warm == nil {
		return
	}
	if err := c.warm.Close(); err != nil {
		c.logWarn("release prewarmed source failed", "error", err.Error())
	}
	c.warm = nil
	c.warmDevice = Device{}
	if c.state == fsm.CapturePrewarmed {
		c.state = fsm.CaptureIdle
	}
}

func (c *Capture) resolve(ctx context.Context, deviceID string) (Device, error) {
	input := deviceID
	if input == "" {
		input = c.opts.Input
	}
	selection, err := SelectDevice(ctx, c.backend, input, c.opts.Fallback)
	if err != nil {
		return Device{}, err
	}
	if selection.Warning != "" {
		c.logWarn(selection.Warning)
	}
	return selection.Device, nil
}

func (c *Capture) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Capture) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
