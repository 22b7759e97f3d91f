package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/motioncore/config"
	"go.viam.com/motioncore/logging"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a bold orange "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "\033[1;38;5;208mWarning: \033[0m"+format+"\n", a...)
}

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewBlankLogger("motion")
	logging.AddAppender(logger, logging.NewFileAppender(os.Stderr))
	if path := c.String(generalFlagLogFile); path != "" {
		logging.AddAppender(logger, logging.NewRotatingFileAppender(path))
	}
	if c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.DEBUG)
	} else {
		logger.SetLevel(logging.INFO)
	}
	logging.ReplaceGlobal(logger)
	return logger
}

// loadConfig reads --config, if given. The --sysfs-root flag overrides the file.
func loadConfig(c *cli.Context, logger logging.Logger, required bool) (*config.Config, error) {
	cfg := &config.Config{}
	if path := c.String(generalFlagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, err
		}
		config.UpdateLogLevel(logger, cfg, c.Bool(generalFlagDebug))
	} else if required {
		return nil, errors.Errorf("this command needs a config file, pass --%s", generalFlagConfig)
	}
	if root := c.String(generalFlagSysfsRoot); root != "" {
		cfg.SysfsRoot = root
	}
	return cfg, nil
}

func newTable(header ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}
