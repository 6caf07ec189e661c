package gpio

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
// Pin numbers are BCM numbers.
type RPiDriver struct {
	log  *logrus.Entry
	pins map[int]rpio.Pin
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver(log *logrus.Entry) (*RPiDriver, error) {
	log.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	log.Debug("GPIO memory mapped successfully")

	return &RPiDriver{
		log:  log,
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	r.log.WithFields(logrus.Fields{"pin": pin, "mode": mode}).Trace("GPIO SetupPin")

	p := rpio.Pin(pin)

	switch mode {
	case Input:
		p.Input()
	case InputPullDown:
		p.Input()
		p.PullDown()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	r.log.WithFields(logrus.Fields{"pin": pin, "level": level}).Trace("GPIO WritePin")

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) Close() error {
	r.log.Trace("GPIO Close (real driver)")

	// Reset all pins to input (safe state), LEDs go dark
	for pin, p := range r.pins {
		r.log.Debugf("Resetting pin %d to input", pin)
		p.Low()
		p.Input()
		p.PullOff()
	}

	return rpio.Close()
}
