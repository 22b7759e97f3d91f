package logging

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the timestamp layout used by the console appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. Any zapcore.Core is also usable as an Appender.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	Sync() error
}

// ConsoleAppender writes tab separated, human readable entries to a file, typically stdout.
type ConsoleAppender struct {
	out     *os.File
	encoder zapcore.Encoder
}

// NewStdoutAppender returns a ConsoleAppender writing to stdout.
func NewStdoutAppender() ConsoleAppender {
	return NewFileAppender(os.Stdout)
}

// NewFileAppender returns a ConsoleAppender writing to out.
func NewFileAppender(out *os.File) ConsoleAppender {
	return ConsoleAppender{out: out, encoder: newConsoleEncoder()}
}

func newConsoleEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	})
}

// Write encodes the entry and writes it in a single call.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	_, err = appender.out.Write(buf.Bytes())
	return err
}

// Sync is a no-op. Syncing a terminal or pipe returns EINVAL on linux.
func (appender ConsoleAppender) Sync() error {
	return nil
}

type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that writes through tb.Log so output is attributed to the
// right test, including tests that call t.Parallel.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	parts := []string{
		entry.Time.Format(DefaultTimeFormatStr),
		strings.ToUpper(entry.Level.String()),
		entry.LoggerName,
	}
	if entry.Caller.Defined {
		parts = append(parts, callerToString(&entry.Caller))
	}
	parts = append(parts, entry.Message)
	if len(fields) == 0 {
		tapp.tb.Log(strings.Join(parts, "\t"))
		return nil
	}

	// Encode with an empty entry so only the fields come out, in order.
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		tapp.tb.Log(strings.Join(parts, "\t"))
		return err
	}
	parts = append(parts, buf.String())
	buf.Free()
	tapp.tb.Log(strings.Join(parts, "\t"))
	return nil
}

func (tapp *testAppender) Sync() error {
	return nil
}

// callerToString renders "dir/file.go:line".
func callerToString(caller *zapcore.EntryCaller) string {
	dir, file := filepath.Split(caller.File)
	return filepath.Base(dir) + "/" + file + ":" + strconv.Itoa(caller.Line)
}
