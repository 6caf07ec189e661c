package gpio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates how a GPIO line is configured.
type PinMode int

const (
	Input PinMode = iota
	Output
	InputPullDown // input with the internal pull-down enabled (idle LOW)
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case InputPullDown:
		return "input/pull-down"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool, log *logrus.Entry) (Driver, error) {
	if mock {
		log.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(log), nil
	}
	return NewRPiRealDriver(log)
}

// MockDriver keeps pin levels in memory and logs every access.
// Inputs read LOW unless set with SetInput, so the kiosk idles.
type MockDriver struct {
	log    *logrus.Entry
	levels map[int]Level
}

func NewMockDriver(log *logrus.Entry) *MockDriver {
	return &MockDriver{log: log, levels: make(map[int]Level)}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	m.log.WithFields(logrus.Fields{"pin": pin, "mode": mode}).Trace("GPIO SetupPin (mock)")
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	m.log.WithFields(logrus.Fields{"pin": pin, "level": level}).Trace("GPIO WritePin (mock)")
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	return m.levels[pin], nil
}

// SetInput forces the level returned by ReadPin for pin.
func (m *MockDriver) SetInput(pin int, level Level) {
	m.levels[pin] = level
}

func (m *MockDriver) Close() error {
	m.log.Trace("GPIO Close (mock)")
	return nil
}
