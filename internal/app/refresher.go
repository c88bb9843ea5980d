package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRefreshInterval = 30 * time.Second
	maxBackoff             = 2 * time.Minute
)

// Revalidator refetches whatever the UI is currently watching.
type Revalidator interface {
	RevalidateObserved(ctx context.Context) error
}

// StartRefresher launches a background goroutine that revalidates observed
// queries at a fixed cadence, backing off while they keep failing. It
// returns immediately.
func StartRefresher(ctx context.Context, r Revalidator, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		failures := 0
		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if err := r.RevalidateObserved(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				logger.Warn("refresh failed", zap.Int("failures", failures), zap.Error(err))
			} else {
				failures = 0
			}
			timer.Reset(calculateBackoff(failures, interval))
		}
	}()
}

// calculateBackoff doubles the interval per consecutive failure, capped at
// maxBackoff. An interval already above the cap is used as is.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	if base >= maxBackoff {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
