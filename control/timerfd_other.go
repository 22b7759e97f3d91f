//go:build !linux

package control

import (
	"time"

	"github.com/pkg/errors"
)

func newTimerfdWake(time.Duration) (WakeSource, error) {
	return nil, errors.New("timerfd is only available on linux; configure the loop with a clock")
}
