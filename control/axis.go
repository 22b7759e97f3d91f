package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"go.viam.com/motioncore/components/motor"
	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/trajectory"
	"go.viam.com/motioncore/utils"
)

// AxisSettings are the per-motor limits and the feed-forward model.
type AxisSettings struct {
	// MaxRate limits every maneuver, in counts per second.
	MaxRate int32
	// Acceleration is used for every ramp, in counts per second squared.
	Acceleration int32
	// RateAtMaxDuty is the rate the motor reaches at full duty.
	RateAtMaxDuty int32
	// AccelTimeConstant scales the acceleration term of the feed-forward.
	AccelTimeConstant time.Duration
}

// Validate checks the settings against the generator limits.
func (s AxisSettings) Validate() error {
	if s.MaxRate <= 0 || s.MaxRate > trajectory.MaxRate {
		return utils.NewInvalidArgumentError("max rate %d must be in (0, %d]", s.MaxRate, trajectory.MaxRate)
	}
	if s.Acceleration <= 0 || s.Acceleration > trajectory.MaxAcceleration {
		return utils.NewInvalidArgumentError(
			"acceleration %d must be in (0, %d]", s.Acceleration, trajectory.MaxAcceleration)
	}
	if s.RateAtMaxDuty <= 0 {
		return utils.NewInvalidArgumentError("rate at max duty must be positive, got %d", s.RateAtMaxDuty)
	}
	if s.AccelTimeConstant < 0 {
		return utils.NewInvalidArgumentError("acceleration time constant must not be negative")
	}
	return nil
}

type driveMode int

const (
	modeCoast driveMode = iota
	modeBrake
	modeTrack
)

// motion is what the axis is currently doing. It is replaced as a whole, never modified.
type motion struct {
	mode driveMode
	traj trajectory.Trajectory
}

// Axis follows one trajectory on one motor port. Commands may be issued from any goroutine while
// Tick runs on the control loop; the active motion is swapped atomically so Tick always sees a
// complete profile.
type Axis struct {
	name     string
	port     motor.Port
	act      motor.Actuator
	settings AxisSettings
	logger   logging.Logger
	clock    clock.Clock
	epoch    time.Time

	// driveMu orders motor writes, so a Tick that read the previous motion cannot overwrite a stop.
	driveMu  sync.Mutex
	active   atomic.Pointer[motion]
	faults   atomic.Uint64
	faultLog rate.Sometimes
}

// NewAxis returns a coasting axis whose time base starts now on clk. A nil clk uses the wall
// clock.
func NewAxis(
	name string,
	port motor.Port,
	act motor.Actuator,
	settings AxisSettings,
	clk clock.Clock,
	logger logging.Logger,
) (*Axis, error) {
	if err := motor.CheckPort(port); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrapf(err, "axis %s", name)
	}
	if clk == nil {
		clk = clock.New()
	}
	a := &Axis{
		name:     name,
		port:     port,
		act:      act,
		settings: settings,
		logger:   logger,
		clock:    clk,
		epoch:    clk.Now(),
		faultLog: rate.Sometimes{First: 1, Interval: time.Second},
	}
	a.active.Store(&motion{mode: modeCoast})
	return a, nil
}

// Name returns the axis name.
func (a *Axis) Name() string {
	return a.name
}

// Port returns the motor port the axis drives.
func (a *Axis) Port() motor.Port {
	return a.port
}

// Now is the time since the axis was created, the time base of its trajectories.
func (a *Axis) Now() time.Duration {
	return a.clock.Since(a.epoch)
}

// Trajectory returns the active profile and whether it is being tracked.
func (a *Axis) Trajectory() (trajectory.Trajectory, bool) {
	m := a.active.Load()
	return m.traj, m.mode == modeTrack
}

// Reference evaluates the active profile now.
func (a *Axis) Reference() trajectory.Reference {
	return a.active.Load().traj.Reference(a.Now())
}

// Faults counts actuator writes that failed during Tick.
func (a *Axis) Faults() uint64 {
	return a.faults.Load()
}

// SetTrajectory tracks tr as is. Its times are on the axis time base.
func (a *Axis) SetTrajectory(tr trajectory.Trajectory) {
	a.active.Store(&motion{mode: modeTrack, traj: tr})
}

// Run accelerates to speed and keeps going until another command.
func (a *Axis) Run(ctx context.Context, speed int32) error {
	_, span := trace.StartSpan(ctx, "control::Axis::Run")
	defer span.End()

	return a.runTimeBased(true, 0, speed)
}

// RunTime runs at speed and comes to rest exactly d from now.
func (a *Axis) RunTime(ctx context.Context, speed int32, d time.Duration) error {
	_, span := trace.StartSpan(ctx, "control::Axis::RunTime")
	defer span.End()

	if d <= 0 {
		return utils.NewInvalidArgumentError("run time must be positive, got %v", d)
	}
	return a.runTimeBased(false, d, speed)
}

func (a *Axis) runTimeBased(forever bool, d time.Duration, speed int32) error {
	now := a.Now()
	prev := a.active.Load()
	ref := prev.traj.Reference(now)
	wmax, acc := a.settings.MaxRate, a.settings.Acceleration

	if prev.mode == modeTrack && ref.Rate != 0 {
		tr, err := trajectory.MakeTimeBasedPatched(prev.traj, forever, now, now+d, speed, wmax, acc)
		if err == nil {
			a.active.Store(&motion{mode: modeTrack, traj: tr})
			return nil
		}
		a.logger.Debugw("cannot patch running maneuver, starting over", "axis", a.name, "error", err)
	}

	w0 := ref.Rate
	if prev.mode != modeTrack {
		w0 = 0
	}
	tr, err := trajectory.MakeTimeBased(forever, now, now+d, ref.Count, ref.CountExt, w0, speed, wmax, acc)
	if err != nil {
		return errors.Wrapf(err, "axis %s", a.name)
	}
	a.active.Store(&motion{mode: modeTrack, traj: tr})
	return nil
}

// RunTarget moves to the absolute position target at speed and stops there.
func (a *Axis) RunTarget(ctx context.Context, speed int32, target int64) error {
	_, span := trace.StartSpan(ctx, "control::Axis::RunTarget")
	defer span.End()

	return a.runTo(speed, func(int64) int64 { return target })
}

// RunAngle moves delta counts from the current position. A negative speed reverses the move.
func (a *Axis) RunAngle(ctx context.Context, speed int32, delta int64) error {
	_, span := trace.StartSpan(ctx, "control::Axis::RunAngle")
	defer span.End()

	if speed < 0 {
		speed, delta = -speed, -delta
	}
	return a.runTo(speed, func(from int64) int64 { return from + delta })
}

func (a *Axis) runTo(speed int32, target func(from int64) int64) error {
	if speed == 0 {
		return utils.NewInvalidArgumentError("speed must not be zero")
	}
	if speed < 0 {
		speed = -speed
	}
	now := a.Now()
	prev := a.active.Load()
	ref := prev.traj.Reference(now)
	w0 := ref.Rate
	if prev.mode != modeTrack {
		w0 = 0
	}

	wmax := min(speed, a.settings.MaxRate)
	tr, err := trajectory.MakeAngleBasedExt(
		now, ref.Count, ref.CountExt, target(ref.Count), w0, 0, wmax, a.settings.Acceleration)
	if err != nil {
		return errors.Wrapf(err, "axis %s", a.name)
	}
	a.active.Store(&motion{mode: modeTrack, traj: tr})
	return nil
}

// Hold keeps the axis at its current reference position.
func (a *Axis) Hold(ctx context.Context) error {
	_, span := trace.StartSpan(ctx, "control::Axis::Hold")
	defer span.End()

	now := a.Now()
	ref := a.active.Load().traj.Reference(now)
	a.active.Store(&motion{mode: modeTrack, traj: trajectory.MakeStationary(now, ref.Count, 0)})
	return nil
}

// Stop ends the current maneuver. StopCoast lets the motor spin freely, StopBrake drives it at
// zero duty and StopHold keeps it at the current reference position.
func (a *Axis) Stop(ctx context.Context, mode motor.StopMode) error {
	ctx, span := trace.StartSpan(ctx, "control::Axis::Stop")
	defer span.End()

	now := a.Now()
	ref := a.active.Load().traj.Reference(now)
	rest := trajectory.MakeStationary(now, ref.Count, 0)

	switch mode {
	case motor.StopCoast:
		a.driveMu.Lock()
		defer a.driveMu.Unlock()
		a.active.Store(&motion{mode: modeCoast, traj: rest})
		return a.act.Coast(a.port)
	case motor.StopBrake:
		a.driveMu.Lock()
		defer a.driveMu.Unlock()
		a.active.Store(&motion{mode: modeBrake, traj: rest})
		return a.act.SetDutyCycle(a.port, 0)
	case motor.StopHold:
		return a.Hold(ctx)
	}
	return motor.NewInvalidStopModeError(mode.String())
}

// Duty maps a reference to a duty cycle with the feed-forward model
// duty = DutyMax * (rate + acceleration*AccelTimeConstant) / RateAtMaxDuty.
func (a *Axis) Duty(ref trajectory.Reference) int32 {
	tauMs := a.settings.AccelTimeConstant.Milliseconds()
	num := int64(ref.Rate)*1000 + int64(ref.Acceleration)*tauMs
	duty := num * motor.DutyMax / (int64(a.settings.RateAtMaxDuty) * 1000)
	return motor.ClampDuty(duty)
}

// Tick drives the motor for the current instant. It is meant to run as, or inside, a loop
// Handler. A failed write is logged, at most once a second, and the port is coasted; the next
// Tick tries again.
func (a *Axis) Tick(ctx context.Context) {
	a.driveMu.Lock()
	defer a.driveMu.Unlock()

	m := a.active.Load()
	var duty int32
	switch m.mode {
	case modeCoast:
		return
	case modeBrake:
		duty = 0
	case modeTrack:
		duty = a.Duty(m.traj.Reference(a.Now()))
	}

	err := a.act.SetDutyCycle(a.port, duty)
	if err == nil {
		return
	}
	a.faults.Inc()
	cerr := a.act.Coast(a.port)
	a.faultLog.Do(func() {
		a.logger.Warnw("motor write failed, coasting",
			"axis", a.name, "port", a.port, "error", err, "coast_error", cerr)
	})
}
