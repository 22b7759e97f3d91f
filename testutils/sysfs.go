package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/motioncore/components/motor"
)

// FakeSysfs lays out the parts of an ev3dev sysfs tree that the motor driver touches, under a
// temporary root.
type FakeSysfs struct {
	tb   testing.TB
	Root string
}

// NewFakeSysfs returns an empty tree removed when the test ends.
func NewFakeSysfs(tb testing.TB) *FakeSysfs {
	tb.Helper()
	return &FakeSysfs{tb: tb, Root: tb.TempDir()}
}

// Write creates path and its parents with the given contents.
func (fs *FakeSysfs) Write(path, contents string) {
	fs.tb.Helper()
	test.That(fs.tb, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	test.That(fs.tb, os.WriteFile(path, []byte(contents), 0o644), test.ShouldBeNil)
}

// Read returns the contents of path.
func (fs *FakeSysfs) Read(path string) string {
	fs.tb.Helper()
	data, err := os.ReadFile(path)
	test.That(fs.tb, err, test.ShouldBeNil)
	return string(data)
}

// AddPort creates a lego-port directory answering to ev3-ports:out<port>.
func (fs *FakeSysfs) AddPort(name string, port motor.Port) string {
	fs.tb.Helper()
	dir := filepath.Join(fs.Root, "sys", "class", "lego-port", name)
	fs.Write(filepath.Join(dir, "address"), "ev3-ports:out"+port.String()+"\n")
	fs.Write(filepath.Join(dir, "mode"), "auto")
	fs.Write(filepath.Join(dir, "set_device"), "")
	return dir
}

// AddMotor creates a motor device below a lego-port directory and returns its path.
func (fs *FakeSysfs) AddMotor(portDir string, port motor.Port, driver, class, node string) string {
	fs.tb.Helper()
	dev := filepath.Join(portDir, "ev3-ports:out"+port.String()+":"+driver, class, node)
	fs.Write(filepath.Join(dev, "command"), "")
	fs.Write(filepath.Join(dev, "duty_cycle_sp"), "0")
	return dev
}
