package logging

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

type axisState struct {
	Port  string
	Duty  int
	dirty bool
}

func TestObservedLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)

	logger.Debug("debug ", 1)
	logger.Infof("tick %d", 2)
	logger.Warnw("duty write failed", "port", "A", "attempt", 3)
	logger.Error("gone")

	entries := logs.All()
	test.That(t, entries, test.ShouldHaveLength, 4)
	test.That(t, entries[0].Level, test.ShouldEqual, zapcore.DebugLevel)
	test.That(t, entries[0].Message, test.ShouldEqual, "debug 1")
	test.That(t, entries[1].Message, test.ShouldEqual, "tick 2")
	test.That(t, entries[2].Level, test.ShouldEqual, zapcore.WarnLevel)
	test.That(t, entries[2].ContextMap()["port"], test.ShouldEqual, "A")
	test.That(t, entries[2].ContextMap()["attempt"], test.ShouldEqual, int64(3))
	test.That(t, entries[3].Level, test.ShouldEqual, zapcore.ErrorLevel)

	// The caller must point at this file, not at the logging internals.
	test.That(t, entries[1].Caller.Defined, test.ShouldBeTrue)
	test.That(t, callerToString(&entries[1].Caller), test.ShouldStartWith, "logging/impl_test.go:")
}

func TestSetLevelFilters(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	test.That(t, logs.Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].Message, test.ShouldEqual, "kept")
}

func TestSublogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	axis := logger.Sublogger("axis").Sublogger("A")
	axis.Infow("bound", "state", axisState{Port: "A", Duty: 50, dirty: true})

	test.That(t, logs.Len(), test.ShouldEqual, 1)
	entry := logs.All()[0]
	test.That(t, entry.LoggerName, test.ShouldEqual, "axis.A")

	// Only exported fields are encoded.
	state, ok := entry.ContextMap()["state"].(axisState)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, state.Duty, test.ShouldEqual, 50)

	// Changing the child's level does not affect the parent.
	axis.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
}

func TestUnpairedKey(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("msg", "lonely")
	fields := logs.All()[0].ContextMap()
	test.That(t, fields["lonely"], test.ShouldEqual, "unpaired log key")
}

func TestLevelFromString(t *testing.T) {
	for input, expected := range map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		" error ": ERROR,
	} {
		level, err := LevelFromString(input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, level.UnmarshalJSON([]byte(`"warn"`)), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	out, err := level.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"warn"`)
}

func TestGlobal(t *testing.T) {
	orig := Global()
	defer ReplaceGlobal(orig)

	logger := NewTestLogger(t)
	ReplaceGlobal(logger)
	test.That(t, Global(), test.ShouldEqual, logger)
}

func TestRotatingFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "motion.log")
	appender := NewRotatingFileAppender(path)
	logger := NewBlankLogger("motion")
	AddAppender(logger, appender)
	logger.SetLevel(INFO)

	logger.Infow("axis bound", "port", "B")
	logger.Debug("filtered")
	test.That(t, appender.Close(), test.ShouldBeNil)

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldContainSubstring, "INFO")
	test.That(t, string(data), test.ShouldContainSubstring, "axis bound")
	test.That(t, string(data), test.ShouldContainSubstring, `{"port": "B"}`)
	test.That(t, string(data), test.ShouldNotContainSubstring, "filtered")
}
