package transport

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	dialAttempts = 5
	dialBaseWait = 250 * time.Millisecond
)

// WithBackoff retries fn with exponential backoff until it succeeds, the
// attempts run out, or ctx is cancelled. The last error wins.
func WithBackoff(ctx context.Context, what string, fn func() error) error {
	var err error
	wait := dialBaseWait
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == dialAttempts {
			break
		}
		zap.L().Warn("transport.retry",
			zap.String("op", what),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
