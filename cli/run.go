package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/motioncore/components/motor/ev3dev"
	"go.viam.com/motioncore/config"
	"go.viam.com/motioncore/control"
	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/utils"
)

const donePollInterval = 20 * time.Millisecond

// RunAction drives the configured axes until the maneuver ends or the process is interrupted.
func RunAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c, logger, true)
	if err != nil {
		return err
	}
	axisConfigs := cfg.Axes
	if names := c.StringSlice(runFlagAxis); len(names) > 0 {
		if missing, _ := lo.Difference(names, lo.Map(cfg.Axes, func(ac config.AxisConfig, _ int) string {
			return ac.Name
		})); len(missing) > 0 {
			return errors.Errorf("no axis named %v in %s", missing, cfg.ConfigFilePath)
		}
		axisConfigs = lo.Filter(cfg.Axes, func(ac config.AxisConfig, _ int) bool {
			return lo.Contains(names, ac.Name)
		})
	}
	if c.IsSet(runFlagAngle) && c.IsSet(runFlagTime) {
		return errors.Errorf("--%s and --%s cannot be used together", runFlagAngle, runFlagTime)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := ev3dev.NewDriver(cfg.Root(), logger.Sublogger("ev3dev"))
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warnw("closing motor driver", "error", err)
		}
	}()

	clk := clock.New()
	axes := make([]*control.Axis, 0, len(axisConfigs))
	for _, ac := range axisConfigs {
		if err := driver.Bind(ac.MotorPort()); err != nil {
			return errors.Wrapf(err, "axis %s", ac.Name)
		}
		kind, err := driver.DeviceKind(ac.MotorPort())
		if err != nil {
			return err
		}
		if ac.Servo != kind.IsServo() {
			warningf(c.App.ErrWriter, "axis %s is configured with servo=%t but port %s has a %s",
				ac.Name, ac.Servo, ac.MotorPort(), kind)
		}
		axis, err := control.NewAxis(ac.Name, ac.MotorPort(), driver, ac.Settings(), clk, logger.Sublogger(ac.Name))
		if err != nil {
			return err
		}
		axes = append(axes, axis)
	}

	workers := utils.NewStoppableWorkersWithContext(ctx)
	defer workers.Stop()
	if cfg.ConfigFilePath != "" {
		if err := watchLogLevel(workers, cfg.ConfigFilePath, logger, c.Bool(generalFlagDebug)); err != nil {
			logger.Warnw("config changes will not be picked up", "error", err)
		}
	}

	loop, err := startLoop(cfg.Period(), logger.Sublogger("loop"), func(ctx context.Context) {
		for _, axis := range axes {
			axis.Tick(ctx)
		}
	})
	if err != nil {
		return err
	}

	speed := int32(c.Int(runFlagSpeed))
	for _, axis := range axes {
		var err error
		switch {
		case c.IsSet(runFlagAngle):
			err = axis.RunAngle(ctx, speed, c.Int64(runFlagAngle))
		case c.IsSet(runFlagTime):
			err = axis.RunTime(ctx, speed, c.Duration(runFlagTime))
		default:
			err = axis.Run(ctx, speed)
		}
		if err != nil {
			loop.Stop()
			return err
		}
	}

	waitForAxes(ctx, clk, axes)

	var errs error
	for i, axis := range axes {
		errs = multierr.Append(errs, axis.Stop(context.Background(), axisConfigs[i].Stop()))
	}
	loop.Stop()

	printStats(c, loop.Stats(), axes)
	return errs
}

// startLoop starts a loop paced by a timerfd, or by the wall clock where timerfds are unavailable.
func startLoop(period time.Duration, logger logging.Logger, handler control.Handler) (*control.Loop, error) {
	loop := control.NewLoop(logger)
	if err := loop.Configure(period); err != nil {
		logger.Warnw("falling back to clock-driven loop", "error", err)
		loop = control.NewLoop(logger, control.WithClock(clock.New()))
		if err := loop.Configure(period); err != nil {
			return nil, err
		}
	}
	if err := control.RegisterViews(); err != nil {
		logger.Debugw("loop metrics unavailable", "error", err)
	}
	return loop, loop.Start(handler)
}

// waitForAxes returns once every axis has finished its maneuver or ctx is done.
func waitForAxes(ctx context.Context, clk clock.Clock, axes []*control.Axis) {
	ticker := clk.Ticker(donePollInterval)
	defer ticker.Stop()
	for {
		done := lo.EveryBy(axes, func(axis *control.Axis) bool {
			tr, _ := axis.Trajectory()
			return tr.Done(axis.Now())
		})
		if done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func watchLogLevel(workers utils.StoppableWorkers, path string, logger logging.Logger, cmdLineDebug bool) error {
	watcher, err := config.NewWatcher(path, logger)
	if err != nil {
		return err
	}
	workers.AddWorkers(func(ctx context.Context) {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Debugw("closing config watcher", "error", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-watcher.Config():
				config.UpdateLogLevel(logger, cfg, cmdLineDebug)
			}
		}
	})
	return nil
}

func printStats(c *cli.Context, s control.Stats, axes []*control.Axis) {
	t := newTable("Ticks", "Missed wake-ups", "Mean", "p99", "Max")
	t.AppendRow([]interface{}{s.Ticks, s.MissedWakeups, s.Mean, s.P99, s.Max})
	printf(c.App.Writer, "%s", t.Render())

	positions := newTable("Axis", "Port", "Position", "Faults")
	for _, axis := range axes {
		ref := axis.Reference()
		positions.AppendRow([]interface{}{axis.Name(), axis.Port(), ref.Count, axis.Faults()})
	}
	printf(c.App.Writer, "%s", positions.Render())
}
