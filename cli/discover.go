package cli

import (
	"github.com/urfave/cli/v2"

	"go.viam.com/motioncore/components/motor/ev3dev"
)

// DiscoverAction binds every port and prints what it found.
func DiscoverAction(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c, logger, false)
	if err != nil {
		return err
	}

	driver := ev3dev.NewDriver(cfg.Root(), logger.Sublogger("ev3dev"))
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warnw("closing motor driver", "error", err)
		}
	}()

	bound := driver.BindAll()
	t := newTable("Port", "Kind", "Servo", "Device")
	for _, info := range driver.Ports() {
		servo := ""
		if info.Kind.IsServo() {
			servo = "yes"
		}
		t.AppendRow([]interface{}{info.Port, info.Kind, servo, info.DevPath})
	}
	printf(c.App.Writer, "%s", t.Render())
	printf(c.App.Writer, "%d of 4 ports have a motor", len(bound))
	return nil
}
