// Package config defines the JSON configuration of a motion controller.
package config

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/motioncore/components/motor"
	"go.viam.com/motioncore/components/motor/ev3dev"
	"go.viam.com/motioncore/control"
	"go.viam.com/motioncore/logging"
)

// Config describes the motors to drive and how often to drive them.
type Config struct {
	ConfigFilePath string `json:"-"`

	// SysfsRoot is the directory containing sys/. Empty means the real root.
	SysfsRoot string `json:"sysfs_root,omitempty"`
	// PeriodMs is the control period. Zero means control.DefaultPeriod.
	PeriodMs int            `json:"period_ms,omitempty"`
	Debug    bool           `json:"debug,omitempty"`
	LogLevel *logging.Level `json:"log_level,omitempty"`
	Axes     []AxisConfig   `json:"axes"`
}

// AxisConfig describes one motor.
type AxisConfig struct {
	Name string `json:"name"`
	Port string `json:"port"`
	// Servo selects tacho-motor mode during setup. Otherwise the port is set up for a DC motor.
	Servo               bool   `json:"servo,omitempty"`
	MaxRate             int32  `json:"max_rate"`
	Acceleration        int32  `json:"acceleration"`
	RateAtMaxDuty       int32  `json:"rate_at_max_duty"`
	AccelTimeConstantMs int    `json:"accel_time_constant_ms,omitempty"`
	StopMode            string `json:"stop_mode,omitempty"`
}

// Validate returns every problem found in the config, not just the first.
func (c *Config) Validate() error {
	var errs error
	if c.PeriodMs < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError("period_ms",
			fmt.Errorf("must not be negative, got %d", c.PeriodMs)))
	}
	if len(c.Axes) == 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError("", "axes"))
	}
	for idx, ac := range c.Axes {
		errs = multierr.Append(errs, ac.Validate(fmt.Sprintf("axes.%d", idx)))
	}

	names := lo.Map(c.Axes, func(ac AxisConfig, _ int) string { return ac.Name })
	for _, name := range lo.FindDuplicates(names) {
		errs = multierr.Append(errs, utils.NewConfigValidationError("axes",
			fmt.Errorf("duplicate axis name %q", name)))
	}
	ports := lo.FilterMap(c.Axes, func(ac AxisConfig, _ int) (motor.Port, bool) {
		p, err := motor.ParsePort(ac.Port)
		return p, err == nil
	})
	for _, port := range lo.FindDuplicates(ports) {
		errs = multierr.Append(errs, utils.NewConfigValidationError("axes",
			fmt.Errorf("port %s is used by more than one axis", port)))
	}
	return errs
}

// Period returns the control period.
func (c *Config) Period() time.Duration {
	if c.PeriodMs == 0 {
		return control.DefaultPeriod
	}
	return time.Duration(c.PeriodMs) * time.Millisecond
}

// Root returns the sysfs root for the motor driver.
func (c *Config) Root() string {
	if c.SysfsRoot == "" {
		return ev3dev.DefaultSysfsRoot
	}
	return c.SysfsRoot
}

// Level returns the configured log level. Debug wins over LogLevel.
func (c *Config) Level() logging.Level {
	switch {
	case c.Debug:
		return logging.DEBUG
	case c.LogLevel != nil:
		return *c.LogLevel
	default:
		return logging.INFO
	}
}

// Validate checks one axis. path names it in error messages.
func (ac AxisConfig) Validate(path string) error {
	if ac.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if ac.Port == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "port")
	}
	if _, err := motor.ParsePort(ac.Port); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if ac.StopMode != "" {
		if _, err := motor.ParseStopMode(ac.StopMode); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if err := ac.Settings().Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// MotorPort returns the parsed port. Call Validate first.
func (ac AxisConfig) MotorPort() motor.Port {
	p, _ := motor.ParsePort(ac.Port)
	return p
}

// Stop returns the stop mode used when the axis is shut down, coast by default.
func (ac AxisConfig) Stop() motor.StopMode {
	mode, err := motor.ParseStopMode(ac.StopMode)
	if err != nil {
		return motor.StopCoast
	}
	return mode
}

// Settings converts the axis limits for control.NewAxis.
func (ac AxisConfig) Settings() control.AxisSettings {
	return control.AxisSettings{
		MaxRate:           ac.MaxRate,
		Acceleration:      ac.Acceleration,
		RateAtMaxDuty:     ac.RateAtMaxDuty,
		AccelTimeConstant: time.Duration(ac.AccelTimeConstantMs) * time.Millisecond,
	}
}
