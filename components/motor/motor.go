// Package motor defines the ports, device kinds and actuation contract shared by motor drivers.
package motor

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Duty cycles are signed and scaled so that ±DutyMax is full power in either direction.
const DutyMax = 10000

// Port is a logical output port, 'A' through 'D'.
type Port byte

// The output ports, in order.
const (
	PortA Port = 'A'
	PortB Port = 'B'
	PortC Port = 'C'
	PortD Port = 'D'
)

// NumPorts is the number of output ports.
const NumPorts = 4

// AllPorts lists every port in order.
var AllPorts = []Port{PortA, PortB, PortC, PortD}

// Valid reports whether p is one of the known ports.
func (p Port) Valid() bool {
	return p >= PortA && p <= PortD
}

// Index is the zero-based position of the port in AllPorts.
func (p Port) Index() int {
	return int(p - PortA)
}

func (p Port) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Port(%d)", byte(p))
	}
	return string(rune(p))
}

// ParsePort parses "A".."D", case insensitive.
func ParsePort(s string) (Port, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || !Port(s[0]).Valid() {
		return 0, NewInvalidPortError(s)
	}
	return Port(s[0]), nil
}

// ParsePorts parses a list of port names, for example from a flag.
func ParsePorts(names []string) ([]Port, error) {
	ports := make([]Port, 0, len(names))
	for _, name := range names {
		p, err := ParsePort(name)
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return lo.Uniq(ports), nil
}

// Kind is the class of device bound to a port.
type Kind int

// The device kinds that can be discovered on a port.
const (
	KindNone Kind = iota
	KindEV3Large
	KindEV3Medium
	KindDCMotor
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindEV3Large:
		return "ev3-large"
	case KindEV3Medium:
		return "ev3-medium"
	case KindDCMotor:
		return "dc-motor"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsServo reports whether the kind has a built-in encoder.
func (k Kind) IsServo() bool {
	return k == KindEV3Large || k == KindEV3Medium
}

// StopMode selects what happens when a maneuver is stopped.
type StopMode int

const (
	// StopCoast removes power and lets the motor spin down freely.
	StopCoast StopMode = iota
	// StopBrake drives a zero duty cycle.
	StopBrake
	// StopHold actively holds the current position.
	StopHold
)

func (m StopMode) String() string {
	switch m {
	case StopCoast:
		return "coast"
	case StopBrake:
		return "brake"
	case StopHold:
		return "hold"
	}
	return fmt.Sprintf("StopMode(%d)", int(m))
}

// ParseStopMode parses "coast", "brake" or "hold".
func ParseStopMode(s string) (StopMode, error) {
	mode, ok := lo.Find([]StopMode{StopCoast, StopBrake, StopHold}, func(m StopMode) bool {
		return m.String() == strings.ToLower(strings.TrimSpace(s))
	})
	if !ok {
		return 0, NewInvalidStopModeError(s)
	}
	return mode, nil
}

// An Actuator realizes duty cycles on motor ports. Implementations must be safe for use from the
// control loop and application goroutines at the same time.
type Actuator interface {
	// SetDutyCycle drives port at duty, in [-DutyMax, DutyMax]. A port that is coasting is
	// switched to direct drive first.
	SetDutyCycle(port Port, duty int32) error

	// Coast removes power from port. It is always legal, and a port whose device went away is
	// re-discovered as part of the call.
	Coast(port Port) error

	// DeviceKind returns what is bound to port.
	DeviceKind(port Port) (Kind, error)
}

// ClampDuty limits a computed duty to [-DutyMax, DutyMax].
func ClampDuty(duty int64) int32 {
	return int32(max(min(duty, DutyMax), -DutyMax))
}
