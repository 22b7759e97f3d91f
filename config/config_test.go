package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/test"

	"go.viam.com/motioncore/components/motor"
	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/utils"
)

const sampleConfig = `{
	"sysfs_root": "${MOTION_TEST_ROOT}",
	"log_level": "warn",
	"axes": [
		{
			"name": "left",
			"port": "a",
			"servo": true,
			"max_rate": 1000,
			"acceleration": 2000,
			"rate_at_max_duty": 1050,
			"accel_time_constant_ms": 40,
			"stop_mode": "hold"
		},
		{
			"name": "right",
			"port": "D",
			"max_rate": 800,
			"acceleration": 1500,
			"rate_at_max_duty": 900
		}
	]
}`

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "motion.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o644), test.ShouldBeNil)
	return path
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("MOTION_TEST_ROOT", "/srv/brick")
	path := writeConfig(t, t.TempDir(), sampleConfig)

	cfg, err := Read(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.SysfsRoot, test.ShouldEqual, "/srv/brick")
	test.That(t, cfg.Root(), test.ShouldEqual, "/srv/brick")
	test.That(t, cfg.Period(), test.ShouldEqual, 10*time.Millisecond)
	test.That(t, cfg.Level(), test.ShouldEqual, logging.WARN)
	test.That(t, cfg.Axes, test.ShouldHaveLength, 2)

	left := cfg.Axes[0]
	test.That(t, left.MotorPort(), test.ShouldEqual, motor.PortA)
	test.That(t, left.Servo, test.ShouldBeTrue)
	test.That(t, left.Stop(), test.ShouldEqual, motor.StopHold)
	settings := left.Settings()
	test.That(t, settings.MaxRate, test.ShouldEqual, 1000)
	test.That(t, settings.RateAtMaxDuty, test.ShouldEqual, 1050)
	test.That(t, settings.AccelTimeConstant, test.ShouldEqual, 40*time.Millisecond)

	right := cfg.Axes[1]
	test.That(t, right.MotorPort(), test.ShouldEqual, motor.PortD)
	test.That(t, right.Stop(), test.ShouldEqual, motor.StopCoast)

	cfg.Debug = true
	test.That(t, cfg.Level(), test.ShouldEqual, logging.DEBUG)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = FromReader("inline", strings.NewReader("{"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode")
}

func TestValidate(t *testing.T) {
	good := AxisConfig{Name: "lift", Port: "C", MaxRate: 500, Acceleration: 1000, RateAtMaxDuty: 900}
	test.That(t, good.Validate("axes.0"), test.ShouldBeNil)
	test.That(t, (&Config{Axes: []AxisConfig{good}}).Validate(), test.ShouldBeNil)

	err := (&Config{}).Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "axes")

	noName := good
	noName.Name = ""
	badPort := good
	badPort.Port = "Q"
	badRate := good
	badRate.Port = "B"
	badRate.MaxRate = 0
	cfg := &Config{PeriodMs: -1, Axes: []AxisConfig{noName, badPort, badRate}}
	err = cfg.Validate()
	test.That(t, err, test.ShouldNotBeNil)
	// One error each for the period, the three axes and the duplicated name.
	test.That(t, multierr.Errors(err), test.ShouldHaveLength, 5)
	test.That(t, err.Error(), test.ShouldContainSubstring, "axes.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, "axes.1")
	test.That(t, err.Error(), test.ShouldContainSubstring, "axes.2")
	test.That(t, err.Error(), test.ShouldContainSubstring, `duplicate axis name "lift"`)
	test.That(t, errors.Is(err, utils.ErrInvalidArgument), test.ShouldBeTrue)

	second := good
	second.Name = "grab"
	err = (&Config{Axes: []AxisConfig{good, second}}).Validate()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "port C is used by more than one axis")

	badStop := good
	badStop.StopMode = "float"
	test.That(t, errors.Is(badStop.Validate("axes.0"), utils.ErrInvalidArgument), test.ShouldBeTrue)
}

func TestUpdateLogLevel(t *testing.T) {
	logger := logging.NewTestLogger(t)
	logger.SetLevel(logging.INFO)
	warn := logging.WARN

	UpdateLogLevel(logger, &Config{LogLevel: &warn}, false)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.WARN)
	UpdateLogLevel(logger, &Config{LogLevel: &warn}, true)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)
	UpdateLogLevel(logger, &Config{}, false)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.INFO)
}

func TestWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("MOTION_TEST_ROOT", "")
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	w, err := NewWatcher(path, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	// Other files in the directory and broken edits are ignored.
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644), test.ShouldBeNil)
	writeConfig(t, dir, `{"axes": []}`)
	writeConfig(t, dir, strings.Replace(sampleConfig, `"log_level": "warn"`, `"debug": true`, 1))

	select {
	case cfg := <-w.Config():
		test.That(t, cfg.Debug, test.ShouldBeTrue)
		test.That(t, cfg.Axes, test.ShouldHaveLength, 2)
	case <-time.After(10 * time.Second):
		t.Fatal("no config delivered")
	}
}
