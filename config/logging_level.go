package config

import (
	"go.viam.com/motioncore/logging"
)

// UpdateLogLevel sets logger to the level cfg asks for. A debug flag given on the command line
// keeps the logger at debug no matter what the file says.
func UpdateLogLevel(logger logging.Logger, cfg *Config, cmdLineDebug bool) {
	level := cfg.Level()
	if cmdLineDebug {
		level = logging.DEBUG
	}
	if logger.GetLevel() == level {
		return
	}
	logger.SetLevel(level)
	logger.Infow("log level changed", "level", level)
}
