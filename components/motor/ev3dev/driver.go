// Package ev3dev drives LEGO motors through the ev3dev sysfs interface.
//
// Each output port is bound to at most one motor device. Binding looks for a large EV3 motor,
// then a medium EV3 motor, then an RCX DC motor under the port's lego-port directory, and keeps
// the device's duty_cycle_sp file open for fast writes from the control loop. Commands such as
// "stop" and "run-direct" go through the device's command file, which is opened for each write.
package ev3dev

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/motioncore/components/motor"
	"go.viam.com/motioncore/logging"
	"go.viam.com/motioncore/utils"
)

// DefaultSysfsRoot is the filesystem root that holds /sys on a real brick.
const DefaultSysfsRoot = "/"

const (
	legoPortClass = "sys/class/lego-port"
	commandFile   = "command"
	dutyFile      = "duty_cycle_sp"

	commandStop      = "stop"
	commandRunDirect = "run-direct"
)

// deviceClass is one place a motor can show up under a lego-port directory.
type deviceClass struct {
	kind   motor.Kind
	driver string
	class  string
}

// Discovery order.
var deviceClasses = []deviceClass{
	{motor.KindEV3Large, "lego-ev3-l-motor", "tacho-motor"},
	{motor.KindEV3Medium, "lego-ev3-m-motor", "tacho-motor"},
	{motor.KindDCMotor, "rcx-motor", "dc-motor"},
}

type portState struct {
	kind     motor.Kind
	coasting bool
	devPath  string
	duty     *os.File
}

// Driver is a motor.Actuator backed by sysfs. All of its state is guarded by one mutex, so the
// control loop and application goroutines may call it concurrently.
type Driver struct {
	root   string
	logger logging.Logger
	clock  clock.Clock

	mu    sync.Mutex
	ports [motor.NumPorts]portState
}

var _ motor.Actuator = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the clock used to pace setup polling.
func WithClock(clk clock.Clock) Option {
	return func(d *Driver) {
		d.clock = clk
	}
}

// NewDriver returns a driver with every port unbound. root is the directory that contains sys/;
// use DefaultSysfsRoot on a real brick.
func NewDriver(root string, logger logging.Logger, opts ...Option) *Driver {
	if root == "" {
		root = DefaultSysfsRoot
	}
	d := &Driver{root: root, logger: logger, clock: clock.New()}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.ports {
		d.ports[i].coasting = true
	}
	return d
}

func (d *Driver) state(port motor.Port) (*portState, error) {
	if err := motor.CheckPort(port); err != nil {
		return nil, err
	}
	return &d.ports[port.Index()], nil
}

// PortPath returns the lego-port directory whose address is ev3-ports:out<port>.
func (d *Driver) PortPath(port motor.Port) (string, error) {
	if err := motor.CheckPort(port); err != nil {
		return "", err
	}
	want := "ev3-ports:out" + port.String()
	classDir := filepath.Join(d.root, legoPortClass)
	entries, err := os.ReadDir(classDir)
	if err != nil {
		return "", errors.Wrapf(utils.ErrNoDevice, "reading %s: %v", classDir, err)
	}
	for _, entry := range entries {
		address, err := os.ReadFile(filepath.Join(classDir, entry.Name(), "address"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(address)) == want {
			return filepath.Join(classDir, entry.Name()), nil
		}
	}
	return "", errors.Wrapf(utils.ErrNoDevice, "no lego-port with address %s", want)
}

// discover finds the motor device directory on port.
func (d *Driver) discover(port motor.Port) (motor.Kind, string, error) {
	portPath, err := d.PortPath(port)
	if err != nil {
		return motor.KindNone, "", err
	}
	for _, dc := range deviceClasses {
		classPath := filepath.Join(portPath, fmt.Sprintf("ev3-ports:out%s:%s", port, dc.driver), dc.class)
		entries, err := os.ReadDir(classPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), ".") {
				return dc.kind, filepath.Join(classPath, entry.Name()), nil
			}
		}
		// The class directory exists but the device node is not there yet.
		return motor.KindNone, "", utils.NewIOError(port, "find "+dc.class, errors.New("empty device directory"))
	}
	return motor.KindNone, "", utils.NewNoDeviceError(port)
}

// release closes the port's handles and resets it to unbound and coasting.
func (ps *portState) release() error {
	var err error
	if ps.duty != nil {
		err = ps.duty.Close()
	}
	*ps = portState{coasting: true}
	return err
}

// Bind releases whatever port was bound to and discovers its device again.
func (d *Driver) Bind(port motor.Port) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bindLocked(port)
}

func (d *Driver) bindLocked(port motor.Port) error {
	ps, err := d.state(port)
	if err != nil {
		return err
	}
	if err := ps.release(); err != nil {
		d.logger.Debugw("closing stale duty file", "port", port, "error", err)
	}

	kind, devPath, err := d.discover(port)
	if err != nil {
		return err
	}
	duty, err := os.OpenFile(filepath.Join(devPath, dutyFile), os.O_WRONLY, 0)
	if err != nil {
		return utils.NewIOError(port, "open "+dutyFile, err)
	}
	*ps = portState{kind: kind, coasting: true, devPath: devPath, duty: duty}
	d.logger.Debugw("bound motor", "port", port, "kind", kind, "path", devPath)
	return nil
}

// command writes one command to the device's command file.
func (d *Driver) command(port motor.Port, ps *portState, cmd string) error {
	if ps.devPath == "" {
		return utils.NewNoDeviceError(port)
	}
	// Never create the file: if it is missing the device is gone.
	f, err := os.OpenFile(filepath.Join(ps.devPath, commandFile), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return utils.NewIOError(port, cmd, err)
	}
	_, werr := io.WriteString(f, cmd)
	if err := multierr.Combine(werr, f.Close()); err != nil {
		return utils.NewIOError(port, cmd, err)
	}
	return nil
}

// Coast stops driving port. If the stop command cannot be delivered the port is re-discovered,
// since a different motor may have been plugged in; the call succeeds if either step does.
func (d *Driver) Coast(port motor.Port) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ps, err := d.state(port)
	if err != nil {
		return err
	}
	ps.coasting = true
	if err := d.command(port, ps, commandStop); err == nil {
		return nil
	}
	return d.bindLocked(port)
}

// SetDutyCycle drives port at duty, in [-motor.DutyMax, motor.DutyMax]. The device takes a
// percentage, so the value is divided by 100. Failures are reported as I/O errors and left for
// the next Coast to recover.
func (d *Driver) SetDutyCycle(port motor.Port, duty int32) error {
	if duty < -motor.DutyMax || duty > motor.DutyMax {
		return motor.NewDutyOutOfRangeError(duty)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ps, err := d.state(port)
	if err != nil {
		return err
	}
	if ps.kind == motor.KindNone {
		return utils.NewNoDeviceError(port)
	}
	if ps.coasting {
		if err := d.command(port, ps, commandRunDirect); err != nil {
			return err
		}
		ps.coasting = false
	}
	if _, err := ps.duty.Seek(0, io.SeekStart); err != nil {
		return utils.NewIOError(port, "seek "+dutyFile, err)
	}
	if _, err := fmt.Fprintf(ps.duty, "%d", duty/100); err != nil {
		return utils.NewIOError(port, "write "+dutyFile, err)
	}
	return nil
}

// DeviceKind returns the kind of motor bound to port.
func (d *Driver) DeviceKind(port motor.Port) (motor.Kind, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ps, err := d.state(port)
	if err != nil {
		return motor.KindNone, err
	}
	if ps.kind == motor.KindNone {
		return motor.KindNone, utils.NewNoDeviceError(port)
	}
	return ps.kind, nil
}

// Coasting reports whether port is in coast mode rather than direct drive.
func (d *Driver) Coasting(port motor.Port) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ps, err := d.state(port)
	if err != nil {
		return false, err
	}
	return ps.coasting, nil
}

// PortInfo describes one port for diagnostics.
type PortInfo struct {
	Port     motor.Port
	Kind     motor.Kind
	Coasting bool
	DevPath  string
}

// Ports returns a snapshot of every port.
func (d *Driver) Ports() []PortInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]PortInfo, 0, motor.NumPorts)
	for _, port := range motor.AllPorts {
		ps := d.ports[port.Index()]
		infos = append(infos, PortInfo{Port: port, Kind: ps.kind, Coasting: ps.coasting, DevPath: ps.devPath})
	}
	return infos
}

// BindAll tries to bind every port and returns the ports that have a device.
func (d *Driver) BindAll() []motor.Port {
	var bound []motor.Port
	for _, port := range motor.AllPorts {
		if err := d.Bind(port); err != nil {
			d.logger.Debugw("no motor", "port", port, "error", err)
			continue
		}
		bound = append(bound, port)
	}
	return bound
}

// Close releases every port. It is safe to call more than once.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs error
	for i := range d.ports {
		errs = multierr.Combine(errs, d.ports[i].release())
	}
	return errs
}

// Setup switches port's lego-port to the mode for a servo (tacho) or plain DC motor and waits for
// the device to appear, polling at interval. maxAttempts of zero or less polls until ctx is done.
func (d *Driver) Setup(ctx context.Context, port motor.Port, servo bool, maxAttempts int) error {
	portPath, err := d.PortPath(port)
	if err != nil {
		return err
	}

	mode, device := "dc-motor", ""
	if servo {
		mode, device = "tacho-motor", "lego-ev3-l-motor"
	}
	if err := writeAttr(filepath.Join(portPath, "mode"), mode); err != nil {
		return utils.NewIOError(port, "set mode "+mode, err)
	}
	if device != "" {
		if err := writeAttr(filepath.Join(portPath, "set_device"), device); err != nil {
			return utils.NewIOError(port, "set device "+device, err)
		}
	}

	done := utils.SlowLogger(ctx, d.clock, "waiting for motor to appear", "port", port.String(), d.logger)
	defer done()
	return utils.PollAgain(ctx, d.clock, utils.DefaultPollInterval, maxAttempts, func(context.Context) error {
		err := d.Bind(port)
		if errors.Is(err, utils.ErrNoDevice) || errors.Is(err, utils.ErrIO) {
			return utils.NewAgainError("motor on port " + port.String())
		}
		return err
	})
}

// writeAttr writes a sysfs attribute. The file must already exist.
func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	_, werr := io.WriteString(f, value)
	return multierr.Combine(werr, f.Close())
}
