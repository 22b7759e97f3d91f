// Package fake implements an in-memory motor.Actuator for tests and simulation.
package fake

import (
	"sync"

	"go.viam.com/motioncore/components/motor"
	"go.viam.com/motioncore/utils"
)

// Write records one duty cycle accepted by the actuator.
type Write struct {
	Port motor.Port
	Duty int32
}

type port struct {
	kind     motor.Kind
	coasting bool
	duty     int32
	failNext int
	unplug   bool
}

// Actuator mimics the sysfs driver's port state machine without touching hardware. Failures can
// be injected per port.
type Actuator struct {
	mu     sync.Mutex
	ports  [motor.NumPorts]port
	writes []Write
	coasts int
}

var _ motor.Actuator = (*Actuator)(nil)

// NewActuator returns an actuator with the given kinds plugged in. Ports not listed are empty.
func NewActuator(kinds map[motor.Port]motor.Kind) *Actuator {
	a := &Actuator{}
	for i := range a.ports {
		a.ports[i].coasting = true
	}
	for p, k := range kinds {
		if p.Valid() {
			a.ports[p.Index()].kind = k
		}
	}
	return a
}

// Plug sets what device is attached to p. It takes effect at the next Coast, like a real
// hot-plug.
func (a *Actuator) Plug(p motor.Port, kind motor.Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ports[p.Index()].unplug = false
	a.ports[p.Index()].kind = kind
}

// Unplug makes every duty write on p fail with an I/O error until the next Coast rebinds it, at
// which point the port becomes empty unless Plug was called.
func (a *Actuator) Unplug(p motor.Port) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ports[p.Index()].unplug = true
}

// FailNext makes the next n duty writes on p fail with an I/O error.
func (a *Actuator) FailNext(p motor.Port, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ports[p.Index()].failNext = n
}

// SetDutyCycle records duty for p.
func (a *Actuator) SetDutyCycle(p motor.Port, duty int32) error {
	if err := motor.CheckPort(p); err != nil {
		return err
	}
	if duty < -motor.DutyMax || duty > motor.DutyMax {
		return motor.NewDutyOutOfRangeError(duty)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ps := &a.ports[p.Index()]
	if ps.kind == motor.KindNone {
		return utils.NewNoDeviceError(p)
	}
	if ps.unplug {
		return utils.NewIOError(p, "write duty", nil)
	}
	if ps.failNext > 0 {
		ps.failNext--
		return utils.NewIOError(p, "write duty", nil)
	}
	ps.coasting = false
	ps.duty = duty
	a.writes = append(a.writes, Write{Port: p, Duty: duty})
	return nil
}

// Coast puts p in coast mode. An unplugged port is rebound here.
func (a *Actuator) Coast(p motor.Port) error {
	if err := motor.CheckPort(p); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ps := &a.ports[p.Index()]
	ps.coasting = true
	ps.duty = 0
	a.coasts++
	if ps.unplug {
		ps.unplug = false
		ps.kind = motor.KindNone
	}
	if ps.kind == motor.KindNone {
		return utils.NewNoDeviceError(p)
	}
	return nil
}

// DeviceKind returns the kind plugged into p.
func (a *Actuator) DeviceKind(p motor.Port) (motor.Kind, error) {
	if err := motor.CheckPort(p); err != nil {
		return motor.KindNone, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	kind := a.ports[p.Index()].kind
	if kind == motor.KindNone {
		return kind, utils.NewNoDeviceError(p)
	}
	return kind, nil
}

// Duty returns the last duty written to p and whether p is coasting.
func (a *Actuator) Duty(p motor.Port) (int32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ps := a.ports[p.Index()]
	return ps.duty, ps.coasting
}

// Writes returns a copy of every accepted duty write.
func (a *Actuator) Writes() []Write {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Write(nil), a.writes...)
}

// Coasts counts Coast calls.
func (a *Actuator) Coasts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coasts
}
