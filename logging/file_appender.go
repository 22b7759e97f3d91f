package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotatingFileAppender writes console-formatted entries to a file that is rotated once it grows
// past MaxSizeMB. Old files are compressed and at most MaxBackups of them are kept.
type RotatingFileAppender struct {
	out     *lumberjack.Logger
	encoder zapcore.Encoder
}

// Rotation defaults for NewRotatingFileAppender.
const (
	MaxSizeMB  = 16
	MaxBackups = 3
)

// NewRotatingFileAppender appends to path, creating it and its directory as needed.
func NewRotatingFileAppender(path string) *RotatingFileAppender {
	return &RotatingFileAppender{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
			Compress:   true,
		},
		encoder: newConsoleEncoder(),
	}
}

// Write encodes the entry and appends it to the file.
func (appender *RotatingFileAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	_, err = appender.out.Write(buf.Bytes())
	return err
}

// Sync is a no-op; every Write goes straight to the file.
func (appender *RotatingFileAppender) Sync() error {
	return nil
}

// Close closes the current file. A later Write reopens it.
func (appender *RotatingFileAppender) Close() error {
	return appender.out.Close()
}
