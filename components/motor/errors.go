package motor

import (
	"go.viam.com/motioncore/utils"
)

// NewInvalidPortError is returned for a port name or value outside A..D.
func NewInvalidPortError(port interface{}) error {
	return utils.NewInvalidArgumentError("port %v is not one of A, B, C, D", port)
}

// NewInvalidStopModeError is returned for an unknown stop mode name.
func NewInvalidStopModeError(mode string) error {
	return utils.NewInvalidArgumentError("stop mode %q is not one of coast, brake, hold", mode)
}

// NewDutyOutOfRangeError is returned when a duty cycle is outside ±DutyMax.
func NewDutyOutOfRangeError(duty int32) error {
	return utils.NewInvalidArgumentError("duty cycle %d outside [-%d, %d]", duty, DutyMax, DutyMax)
}

// CheckPort returns an error for ports outside A..D.
func CheckPort(port Port) error {
	if !port.Valid() {
		return NewInvalidPortError(port)
	}
	return nil
}
