package led

import (
	"fmt"
	"time"

	"github.com/cjeanneret/ThermoBox/internal/hw/gpio"
	"github.com/sirupsen/logrus"
)

// Pattern is a blocking blink sequence.
type Pattern struct {
	On      time.Duration
	Off     time.Duration
	Repeats int
}

// Total returns how long the pattern blocks.
func (p Pattern) Total() time.Duration {
	return time.Duration(p.Repeats) * (p.On + p.Off)
}

var (
	// SlowPattern is the first pre-capture warning.
	SlowPattern = Pattern{On: 500 * time.Millisecond, Off: 500 * time.Millisecond, Repeats: 3}
	// FastPattern follows SlowPattern right before the shot.
	FastPattern = Pattern{On: 200 * time.Millisecond, Off: 200 * time.Millisecond, Repeats: 3}
)

// Indicator drives the two kiosk LEDs:
// - ready (green): lit while the kiosk waits for the button
// - busy (red): lit while a session is in progress
type Indicator struct {
	gpio     gpio.Driver
	log      *logrus.Entry
	readyPin int
	busyPin  int
}

// New configures both pins as outputs, ready lit and busy dark.
func New(g gpio.Driver, readyPin, busyPin int, log *logrus.Entry) (*Indicator, error) {
	if err := g.SetupPin(readyPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup ready LED pin %d: %w", readyPin, err)
	}
	if err := g.SetupPin(busyPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("setup busy LED pin %d: %w", busyPin, err)
	}

	ind := &Indicator{gpio: g, log: log, readyPin: readyPin, busyPin: busyPin}
	if err := ind.SetReady(); err != nil {
		return nil, err
	}
	return ind, nil
}

func (i *Indicator) ReadyPin() int { return i.readyPin }

func (i *Indicator) BusyPin() int { return i.busyPin }

// SetReady lights the ready LED and turns the busy LED off.
func (i *Indicator) SetReady() error {
	return i.set(gpio.High, gpio.Low)
}

// SetBusy lights the busy LED and turns the ready LED off.
func (i *Indicator) SetBusy() error {
	return i.set(gpio.Low, gpio.High)
}

// Off turns both LEDs off.
func (i *Indicator) Off() error {
	return i.set(gpio.Low, gpio.Low)
}

// Write sets a single pin.
func (i *Indicator) Write(pin int, level gpio.Level) error {
	if err := i.gpio.WritePin(pin, level); err != nil {
		return fmt.Errorf("LED pin %d -> %v: %w", pin, level, err)
	}
	return nil
}

// Pulse blinks pin p.Repeats times and blocks until done. The pin is HIGH
// before the first cycle and after the last one.
func (i *Indicator) Pulse(pin int, p Pattern) error {
	i.log.WithFields(logrus.Fields{
		"pin":     pin,
		"on":      p.On,
		"off":     p.Off,
		"repeats": p.Repeats,
	}).Debug("LED pulse")

	if err := i.Write(pin, gpio.High); err != nil {
		return err
	}
	for n := 0; n < p.Repeats; n++ {
		time.Sleep(p.On)
		if err := i.Write(pin, gpio.Low); err != nil {
			return err
		}
		time.Sleep(p.Off)
		if err := i.Write(pin, gpio.High); err != nil {
			return err
		}
	}
	return nil
}

func (i *Indicator) set(ready, busy gpio.Level) error {
	if err := i.Write(i.readyPin, ready); err != nil {
		return err
	}
	return i.Write(i.busyPin, busy)
}
