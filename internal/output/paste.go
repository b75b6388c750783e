package output

import (
	"context"
	"errors"
	"time"
)

const (
	pasteAttempts   = 3
	pasteRetryDelay = 40 * time.Millisecond
	pasteTimeout    = 1200 * time.Millisecond
)

// dispatchPaste runs the paste command, retrying briefly while the
// compositor catches up with the new clipboard owner.
func dispatchPaste(ctx context.Context, argv []string, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, pasteTimeout)
		err := runCommandWithInput(attemptCtx, argv, "")
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
	}
	return lastErr
}
