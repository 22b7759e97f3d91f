package control

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// A WakeSource blocks until the next period boundary.
type WakeSource interface {
	// Wait returns at the next wake event along with how many earlier events were skipped since
	// the previous Wait returned.
	Wait(ctx context.Context) (missed uint64, err error)
	Close() error
}

// clockWake paces the loop with a clock.Ticker. It is portable and can be driven by a mock clock.
type clockWake struct {
	period time.Duration
	ticker *clock.Ticker
	last   time.Time
}

func newClockWake(clk clock.Clock, period time.Duration) *clockWake {
	return &clockWake{
		period: period,
		ticker: clk.Ticker(period),
		last:   clk.Now(),
	}
}

// Wait infers skipped events from the spacing of tick timestamps, since the ticker drops ticks
// nobody was waiting for.
func (w *clockWake) Wait(ctx context.Context) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case t := <-w.ticker.C:
		var missed uint64
		if elapsed := t.Sub(w.last); elapsed > w.period {
			missed = uint64(elapsed/w.period) - 1
		}
		w.last = t
		return missed, nil
	}
}

func (w *clockWake) Close() error {
	w.ticker.Stop()
	return nil
}
