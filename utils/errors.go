package utils

import (
	"github.com/pkg/errors"
)

// Sentinel errors shared by every layer of the motion core. Callers match them with errors.Is; the
// constructors below wrap them with context.
var (
	// ErrInvalidArgument is returned for out-of-range or contradictory inputs.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoDevice is returned when a port has no bound device.
	ErrNoDevice = errors.New("no device")
	// ErrIO is returned when a write to a bound device failed.
	ErrIO = errors.New("i/o error")
	// ErrAgain is returned when an operation is not ready yet and should be retried.
	ErrAgain = errors.New("try again")
	// ErrSetupFailure is returned when a one-time resource could not be acquired.
	ErrSetupFailure = errors.New("setup failure")
)

// NewInvalidArgumentError wraps ErrInvalidArgument with a formatted reason.
func NewInvalidArgumentError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// NewNoDeviceError is used when the given port has nothing bound to it.
func NewNoDeviceError(port interface{}) error {
	return errors.Wrapf(ErrNoDevice, "port %v", port)
}

// NewIOError is used when a device write fails. The underlying cause is kept in the message.
func NewIOError(port interface{}, op string, cause error) error {
	if cause == nil {
		return errors.Wrapf(ErrIO, "port %v: %s", port, op)
	}
	return errors.Wrapf(ErrIO, "port %v: %s: %v", port, op, cause)
}

// NewAgainError is used when the caller should poll again.
func NewAgainError(what string) error {
	return errors.Wrapf(ErrAgain, "%s not ready", what)
}

// NewSetupFailureError is used when a one-time resource could not be created.
func NewSetupFailureError(what string, cause error) error {
	return errors.Wrapf(ErrSetupFailure, "%s: %v", what, cause)
}

// IsAgain reports whether err asks the caller to retry.
func IsAgain(err error) bool {
	return errors.Is(err, ErrAgain)
}
