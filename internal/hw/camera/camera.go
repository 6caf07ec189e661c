package camera

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/cjeanneret/ThermoBox/internal/hw/shell"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDeviceUnavailable means the camera could not be claimed at open time.
	ErrDeviceUnavailable = errors.New("camera unavailable")
	// ErrCapture means a still could not be taken or written.
	ErrCapture = errors.New("capture failed")
)

// Camera is the high-level interface used by the rest of the application.
// A Camera is opened once, with its picture settings fixed, and writes one
// JPEG per Capture call at exactly the path it is given.
type Camera interface {
	Capture(ctx context.Context, path string) error
	// Close releases the device. Safe to call more than once.
	Close() error
}

// Implementation names accepted in Settings.Type.
const (
	TypeRPiCam = "rpicam"
	TypeMock   = "mock"
)

// Settings are applied at Open and stay fixed for the handle's lifetime.
type Settings struct {
	Type           string
	Command        string // still capture tool, e.g. "rpicam-still"
	Width          int
	Height         int
	Contrast       int // -100..100, 0 is neutral
	Brightness     int // 0..100, 50 is neutral
	CaptureTimeout time.Duration
	Annotation     *Annotation // nil disables the text overlay
}

// Annotation is a text banner drawn top-centre on every picture.
type Annotation struct {
	Text       string
	Size       int // text height in pixels
	Foreground color.RGBA
	Background color.RGBA
}

// Open claims the camera described by s.
func Open(ctx context.Context, s Settings, runner shell.Runner, log *logrus.Entry) (Camera, error) {
	log.WithFields(logrus.Fields{
		"type":       s.Type,
		"resolution": fmt.Sprintf("%dx%d", s.Width, s.Height),
		"contrast":   s.Contrast,
		"brightness": s.Brightness,
		"annotate":   s.Annotation != nil,
	}).Info("Initialize camera")

	switch s.Type {
	case TypeRPiCam, "":
		return openStill(ctx, s, runner, log)
	case TypeMock:
		return &MockCamera{settings: s, log: log}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported camera type %q", ErrDeviceUnavailable, s.Type)
	}
}

// handle tracks the open/closed state shared by all implementations.
type handle struct {
	mu     sync.Mutex
	closed bool
}

// Close marks the handle closed and reports whether this call closed it.
func (h *handle) markClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	return true
}
