package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/motioncore/logging"
)

// SlowLogger warns periodically while a long operation is still running. The first warning comes
// after 2s, the next after 3s more, then every 5s. Call the returned function when the operation
// finishes.
func SlowLogger(
	ctx context.Context,
	clk clock.Clock,
	msg, fieldName, fieldVal string,
	logger logging.Logger,
) func() {
	if clk == nil {
		clk = clock.New()
	}
	slowTicker := clk.Ticker(2 * time.Second)
	firstTick := true

	ctxWithCancel, cancel := context.WithCancel(ctx)
	startTime := clk.Now()
	goroutineDone := make(chan struct{})
	go func() {
		defer close(goroutineDone)
		for {
			select {
			case <-slowTicker.C:
				elapsed := clk.Since(startTime).Round(time.Second).String()
				logger.Warnw(msg, fieldName, fieldVal, "time_elapsed", elapsed)
				if firstTick {
					slowTicker.Reset(3 * time.Second)
					firstTick = false
				} else {
					slowTicker.Reset(5 * time.Second)
				}
			case <-ctxWithCancel.Done():
				return
			}
		}
	}()
	return func() {
		slowTicker.Stop()
		cancel()
		<-goroutineDone
	}
}
