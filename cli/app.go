// Package cli contains the motion command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagConfig    = "config"
	generalFlagDebug     = "debug"
	generalFlagSysfsRoot = "sysfs-root"
	generalFlagLogFile   = "log-file"

	setupFlagPort     = "port"
	setupFlagServo    = "servo"
	setupFlagAttempts = "attempts"

	profileFlagMode      = "mode"
	profileFlagStartRate = "start-rate"
	profileFlagSpeed     = "speed"
	profileFlagEndRate   = "end-rate"
	profileFlagMaxRate   = "max-rate"
	profileFlagAccel     = "accel"
	profileFlagDuration  = "duration"
	profileFlagTarget    = "target"
	profileFlagSamples   = "samples"

	runFlagAxis  = "axis"
	runFlagSpeed = "speed"
	runFlagAngle = "angle"
	runFlagTime  = "time"

	profileModeTime  = "time"
	profileModeAngle = "angle"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "motion",
		Writer:          out,
		ErrWriter:       errOut,
		Usage:           "drive LEGO motors along trapezoidal motion profiles",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    generalFlagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  generalFlagSysfsRoot,
				Usage: "directory that contains sys/, overriding the config file",
			},
			&cli.StringFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to `FILE`, rotated as it grows",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "discover",
				Usage:  "list the motors plugged into each output port",
				Action: DiscoverAction,
			},
			{
				Name:      "setup",
				Usage:     "switch output ports to motor mode and wait for the motors to appear",
				UsageText: "motion setup [--port A --port B] [--servo] [--attempts N]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  setupFlagPort,
						Usage: "port to set up; defaults to every axis in the config",
					},
					&cli.BoolFlag{
						Name:  setupFlagServo,
						Usage: "set up --port ports for tacho motors instead of DC motors",
					},
					&cli.IntFlag{
						Name:  setupFlagAttempts,
						Usage: "how many times to look for each motor, 0 for no limit",
						Value: 200,
					},
				},
				Action: SetupAction,
			},
			{
				Name:  "profile",
				Usage: "compute a motion profile and print it without moving anything",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  profileFlagMode,
						Usage: "time or angle",
						Value: profileModeAngle,
					},
					&cli.IntFlag{
						Name:  profileFlagStartRate,
						Usage: "rate at the start in counts/s",
					},
					&cli.IntFlag{
						Name:     profileFlagSpeed,
						Usage:    "target rate in counts/s",
						Required: true,
					},
					&cli.IntFlag{
						Name:  profileFlagEndRate,
						Usage: "rate on arrival in counts/s, angle mode only",
					},
					&cli.IntFlag{
						Name:  profileFlagMaxRate,
						Usage: "rate limit in counts/s; defaults to the absolute speed",
					},
					&cli.IntFlag{
						Name:  profileFlagAccel,
						Usage: "acceleration in counts/s²",
						Value: 2000,
					},
					&cli.DurationFlag{
						Name:  profileFlagDuration,
						Usage: "maneuver length in time mode; 0 runs forever",
					},
					&cli.Int64Flag{
						Name:  profileFlagTarget,
						Usage: "end position in counts, angle mode",
					},
					&cli.IntFlag{
						Name:  profileFlagSamples,
						Usage: "number of evenly spaced references to print",
						Value: 10,
					},
				},
				Action: ProfileAction,
			},
			{
				Name:      "run",
				Usage:     "run configured axes at a speed until stopped, for a time or through an angle",
				UsageText: "motion --config FILE run --speed N [--angle N | --time D] [--axis NAME...]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  runFlagAxis,
						Usage: "axis to run; defaults to all",
					},
					&cli.IntFlag{
						Name:     runFlagSpeed,
						Usage:    "speed in counts/s",
						Required: true,
					},
					&cli.Int64Flag{
						Name:  runFlagAngle,
						Usage: "relative move in counts",
					},
					&cli.DurationFlag{
						Name:  runFlagTime,
						Usage: "run for this long and stop",
					},
				},
				Action: RunAction,
			},
		},
	}
}
