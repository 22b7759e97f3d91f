package cli

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/motioncore/components/motor"
	"go.viam.com/motioncore/components/motor/ev3dev"
	"go.viam.com/motioncore/config"
)

type setupRequest struct {
	port  motor.Port
	servo bool
}

// SetupAction puts lego-ports into motor mode. Ports come from --port, or from the config's axes.
func SetupAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c, logger, false)
	if err != nil {
		return err
	}

	var requests []setupRequest
	if names := c.StringSlice(setupFlagPort); len(names) > 0 {
		ports, err := motor.ParsePorts(names)
		if err != nil {
			return err
		}
		requests = lo.Map(ports, func(p motor.Port, _ int) setupRequest {
			return setupRequest{port: p, servo: c.Bool(setupFlagServo)}
		})
	} else {
		requests = lo.Map(cfg.Axes, func(ac config.AxisConfig, _ int) setupRequest {
			return setupRequest{port: ac.MotorPort(), servo: ac.Servo}
		})
	}
	if len(requests) == 0 {
		return errors.Errorf("no ports to set up, pass --%s or --%s", setupFlagPort, generalFlagConfig)
	}

	driver := ev3dev.NewDriver(cfg.Root(), logger.Sublogger("ev3dev"))
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warnw("closing motor driver", "error", err)
		}
	}()

	var errs error
	for _, req := range requests {
		if err := driver.Setup(c.Context, req.port, req.servo, c.Int(setupFlagAttempts)); err != nil {
			warningf(c.App.ErrWriter, "port %s: %v", req.port, err)
			errs = multierr.Append(errs, err)
			continue
		}
		kind, err := driver.DeviceKind(req.port)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		printf(c.App.Writer, "port %s: %s", req.port, kind)
	}
	return errs
}
