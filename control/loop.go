// Package control runs motion handlers at a fixed period and turns trajectory references into
// actuator commands.
package control

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opencensus.io/stats"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/utils"
)

// DefaultPeriod is the control period used on the brick.
const DefaultPeriod = 10 * time.Millisecond

// State is the lifecycle stage of a Loop.
type State int32

// Loop states. A loop moves forward only.
const (
	StateUnconfigured State = iota
	StateArmed
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// A Handler is called once per period from the loop's goroutine.
type Handler func(ctx context.Context)

// Loop calls a Handler at a fixed period. It never calls the handler concurrently with itself
// and never calls it twice in a row to catch up; periods lost to an overrunning handler are only
// counted.
type Loop struct {
	logger  logging.Logger
	clock   clock.Clock
	newWake func(period time.Duration) (WakeSource, error)

	mu      sync.Mutex
	period  time.Duration
	wake    WakeSource
	workers utils.StoppableWorkers

	state    atomic.Int32
	ticks    atomic.Uint64
	missed   atomic.Uint64
	latency  *latencyWindow
	waitErrs rate.Sometimes
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithClock paces the loop with clk instead of a timerfd. Handler latency is measured on clk
// either way.
func WithClock(clk clock.Clock) LoopOption {
	return func(l *Loop) {
		l.clock = clk
		l.newWake = func(period time.Duration) (WakeSource, error) {
			return newClockWake(clk, period), nil
		}
	}
}

// WithWakeSource makes Configure call newWake instead of opening a timerfd.
func WithWakeSource(newWake func(period time.Duration) (WakeSource, error)) LoopOption {
	return func(l *Loop) {
		l.newWake = newWake
	}
}

// NewLoop returns an unconfigured loop.
func NewLoop(logger logging.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		logger:   logger,
		clock:    clock.New(),
		newWake:  newTimerfdWake,
		latency:  newLatencyWindow(DefaultStatsWindow),
		waitErrs: rate.Sometimes{First: 1, Interval: time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configure opens the wake source with the given period. It is the only setup step that can
// fail, and it may succeed only once.
func (l *Loop) Configure(period time.Duration) error {
	if period <= 0 {
		return utils.NewInvalidArgumentError("period must be positive, got %v", period)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.State(); s != StateUnconfigured {
		return utils.NewInvalidArgumentError("cannot configure a loop that is %v", s)
	}
	wake, err := l.newWake(period)
	if err != nil {
		return utils.NewSetupFailureError("periodic wake source", err)
	}
	l.period = period
	l.wake = wake
	l.state.Store(int32(StateArmed))
	l.logger.Debugw("control loop armed", "period", period)
	return nil
}

// RunForever calls handler immediately and then once per wake event until ctx is done. It runs
// on the calling goroutine, which stays locked to its OS thread until it returns. A failed wait
// is logged and the handler still runs.
func (l *Loop) RunForever(ctx context.Context, handler Handler) error {
	if !l.state.CompareAndSwap(int32(StateArmed), int32(StateRunning)) {
		return utils.NewInvalidArgumentError("cannot run a loop that is %v", l.State())
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if err := l.wake.Close(); err != nil {
			l.logger.Debugw("closing wake source", "error", err)
		}
		l.state.Store(int32(StateStopped))
	}()

	for {
		l.invoke(ctx, handler)

		// A count already read from the wake source cannot be read again, so it is recorded even
		// when ctx ends during the wait.
		missed, err := l.wake.Wait(ctx)
		if err == nil && missed > 0 {
			l.missed.Add(missed)
			stats.Record(ctx, missedWakeupsMeasure.M(int64(missed)))
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.waitErrs.Do(func() {
				l.logger.Warnw("waiting for next period failed", "error", err)
			})
		}
	}
}

func (l *Loop) invoke(ctx context.Context, handler Handler) {
	start := l.clock.Now()
	handler(ctx)
	elapsed := l.clock.Since(start)

	l.ticks.Inc()
	l.latency.add(elapsed)
	stats.Record(ctx, handlerLatencyMeasure.M(float64(elapsed)/float64(time.Millisecond)))
}

// Start runs the loop on a background worker until Stop.
func (l *Loop) Start(handler Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s := l.State(); s != StateArmed || l.workers != nil {
		return utils.NewInvalidArgumentError("cannot start a loop that is %v", s)
	}
	l.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		if err := l.RunForever(ctx, handler); err != nil {
			l.logger.Errorw("control loop did not run", "error", err)
		}
	})
	return nil
}

// Stop ends a loop started with Start and waits for the handler to return. It does nothing for a
// loop that was not started.
func (l *Loop) Stop() {
	l.mu.Lock()
	workers := l.workers
	l.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
}

// State returns the current lifecycle stage.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Period returns the configured period, or zero before Configure.
func (l *Loop) Period() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.period
}

// MissedWakeups is the total number of skipped wake events. It never decreases.
func (l *Loop) MissedWakeups() uint64 {
	return l.missed.Load()
}

// Ticks is the number of handler invocations so far.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Stats summarizes the loop's counters and recent handler durations.
func (l *Loop) Stats() Stats {
	s := Stats{Ticks: l.Ticks(), MissedWakeups: l.MissedWakeups()}
	l.latency.summarize(&s)
	return s
}
