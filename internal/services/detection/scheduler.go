package detection

import (
	"context"
	"time"
)

// FrameScheduler waits for the next display frame.
type FrameScheduler interface {
	NextFrame(ctx context.Context) error
}

// TickerScheduler paces the loop at a fixed display rate.
type TickerScheduler struct {
	ticker *time.Ticker
}

// NewTickerScheduler creates a scheduler ticking fps times per second, 60 when fps <= 0.
func NewTickerScheduler(fps int) *TickerScheduler {
	if fps <= 0 {
		fps = 60
	}
	return &TickerScheduler{ticker: time.NewTicker(time.Second / time.Duration(fps))}
}

// NextFrame blocks until the next tick or until ctx is done.
func (s *TickerScheduler) NextFrame(ctx context.Context) error {
	select {
	case <-s.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TickerScheduler) Stop() {
	s.ticker.Stop()
}
