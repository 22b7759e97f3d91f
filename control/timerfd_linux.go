//go:build linux

package control

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"golang.org/x/sys/unix"
)

// timerfdWake is a periodic CLOCK_MONOTONIC timerfd. A read blocks until the timer expires and
// yields the number of expirations since the previous read. That count includes the expiration
// that ends the wait, so Wait reports one less: a loop that keeps up reports zero missed wakeups,
// not one per period.
type timerfdWake struct {
	fd  int
	buf [8]byte
}

func newTimerfdWake(period time.Duration) (WakeSource, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "timerfd_create")
	}
	ts := unix.NsecToTimespec(period.Nanoseconds())
	if err := unix.TimerfdSettime(fd, 0, &unix.ItimerSpec{Interval: ts, Value: ts}, nil); err != nil {
		goutils.UncheckedError(unix.Close(fd))
		return nil, errors.Wrap(err, "timerfd_settime")
	}
	return &timerfdWake{fd: fd}, nil
}

// Wait ignores ctx; the read returns within one period.
func (w *timerfdWake) Wait(context.Context) (uint64, error) {
	for {
		n, err := unix.Read(w.fd, w.buf[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "reading timerfd")
		}
		if n != len(w.buf) {
			return 0, errors.Errorf("short timerfd read of %d bytes", n)
		}
		expirations := binary.NativeEndian.Uint64(w.buf[:])
		if expirations == 0 {
			return 0, nil
		}
		return expirations - 1, nil
	}
}

func (w *timerfdWake) Close() error {
	return unix.Close(w.fd)
}
