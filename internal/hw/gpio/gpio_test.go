package gpio

import (
	"testing"

	"github.com/cjeanneret/ThermoBox/internal/logging"
)

func TestMockDriver_ReadsLowByDefault(t *testing.T) {
	drv := NewMockDriver(logging.Discard())
	if err := drv.SetupPin(17, InputPullDown); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}
	level, err := drv.ReadPin(17)
	if err != nil {
		t.Fatalf("ReadPin: %v", err)
	}
	if level != Low {
		t.Errorf("ReadPin = %v, want LOW", level)
	}
}

func TestMockDriver_SetInput(t *testing.T) {
	drv := NewMockDriver(logging.Discard())
	drv.SetInput(17, High)
	if level, _ := drv.ReadPin(17); level != High {
		t.Errorf("ReadPin = %v, want HIGH", level)
	}
}

func TestMockDriver_WriteThenRead(t *testing.T) {
	drv := NewMockDriver(logging.Discard())
	if err := drv.WritePin(22, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	if level, _ := drv.ReadPin(22); level != High {
		t.Errorf("ReadPin after write = %v, want HIGH", level)
	}
}

func TestNewDriver_Mock(t *testing.T) {
	drv, err := NewDriver(true, logging.Discard())
	if err != nil {
		t.Fatalf("NewDriver(mock): %v", err)
	}
	if _, ok := drv.(*MockDriver); !ok {
		t.Errorf("NewDriver(mock) = %T, want *MockDriver", drv)
	}
	if err := drv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLevelAndModeStrings(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("Level strings = %q/%q", High.String(), Low.String())
	}
	cases := map[PinMode]string{
		Input:         "input",
		Output:        "output",
		InputPullDown: "input/pull-down",
		PinMode(7):    "mode(7)",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("PinMode(%d).String() = %q, want %q", int(mode), got, want)
		}
	}
}
