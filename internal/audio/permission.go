package audio

import (
	"context"
	"time"
)

// PermissionStatus is the microphone authorization state reported by the host.
type PermissionStatus string

const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// PermissionChecker reports microphone authorization. The host platform owns
// any prompting; capture only asks.
type PermissionChecker interface {
	Check(ctx context.Context) (PermissionStatus, error)
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func(ctx context.Context) (PermissionStatus, error)

func (f PermissionFunc) Check(ctx context.Context) (PermissionStatus, error) {
	return f(ctx)
}

// AlwaysGranted is the checker for hosts without per-application microphone gating (PulseAudio/PipeWire).
var AlwaysGranted PermissionChecker = PermissionFunc(func(context.Context) (PermissionStatus, error) {
	return PermissionGranted, nil
})

// DefaultPermissionPollInterval is how often WaitForPermission re-checks.
const DefaultPermissionPollInterval = 500 * time.Millisecond

// WaitForPermission polls checker until access is granted, explicitly denied, or ctx ends.
//
// An undetermined status keeps polling; denied returns ErrPermissionDenied.
func WaitForPermission(ctx context.Context, checker PermissionChecker, interval time.Duration) error {
	if checker == nil {
		return nil
	}
	if interval <= 0 {
		interval = DefaultPermissionPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := checker.Check(ctx)
		if err != nil {
			return err
		}
		switch status {
		case PermissionGranted:
			return nil
		case PermissionDenied:
			return ErrPermissionDenied
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
