package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// DefaultPollInterval is the delay between attempts used by device setup.
const DefaultPollInterval = 10 * time.Millisecond

// PollAgain calls fn until it returns something other than an ErrAgain error, waiting interval
// between attempts. At most maxAttempts calls are made; zero or less means no limit. When the
// attempts run out the last ErrAgain error is returned. ctx cancellation stops the wait.
func PollAgain(
	ctx context.Context,
	clk clock.Clock,
	interval time.Duration,
	maxAttempts int,
	fn func(context.Context) error,
) error {
	if clk == nil {
		clk = clock.New()
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if !IsAgain(err) {
			return err
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return errors.Wrapf(err, "gave up after %d attempts", attempt)
		}

		timer := clk.Timer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
