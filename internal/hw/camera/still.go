package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cjeanneret/ThermoBox/internal/hw/shell"
	"github.com/sirupsen/logrus"
)

// noCameras is printed by rpicam-still --list-cameras when no sensor is
// attached.
const noCameras = "No cameras available"

// StillCamera drives the Raspberry Pi camera through the rpicam-still tool.
// Each Capture runs one still; the sensor is released between shots by the
// tool itself, the handle keeps the settings and the claim.
type StillCamera struct {
	handle
	settings Settings
	runner   shell.Runner
	log      *logrus.Entry
}

func openStill(ctx context.Context, s Settings, runner shell.Runner, log *logrus.Entry) (*StillCamera, error) {
	if s.Command == "" {
		s.Command = "rpicam-still"
	}

	out, err := runner.Run(ctx, s.Command, "--list-cameras")
	if err != nil {
		return nil, fmt.Errorf("%w: %s --list-cameras: %v", ErrDeviceUnavailable, s.Command, err)
	}
	if strings.Contains(out, noCameras) {
		return nil, fmt.Errorf("%w: %s reports %q", ErrDeviceUnavailable, s.Command, noCameras)
	}
	log.WithField("command", s.Command).Debug("Camera detected")

	return &StillCamera{settings: s, runner: runner, log: log}, nil
}

// Args returns the rpicam-still arguments for a still written to path.
// Contrast and brightness are converted from the picamera scales.
func (c *StillCamera) Args(path string) []string {
	s := c.settings
	return []string{
		"--nopreview",
		"-t", strconv.FormatInt(s.CaptureTimeout.Milliseconds(), 10),
		"--width", strconv.Itoa(s.Width),
		"--height", strconv.Itoa(s.Height),
		"--saturation", "0",
		"--contrast", formatFloat(1 + float64(s.Contrast)/100),
		"--brightness", formatFloat(float64(s.Brightness-50) / 50),
		"--encoding", "jpg",
		"-o", path,
	}
}

func (c *StillCamera) Capture(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: %s: camera closed", ErrCapture, path)
	}

	c.log.WithField("image", path).Info("Capture picture")
	if _, err := c.runner.Run(ctx, c.settings.Command, c.Args(path)...); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCapture, path, err)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s was not written", ErrCapture, path)
		}
		return fmt.Errorf("%w: %s: %v", ErrCapture, path, err)
	}

	if a := c.settings.Annotation; a != nil {
		if err := annotateFile(path, *a); err != nil {
			return fmt.Errorf("%w: annotate %s: %v", ErrCapture, path, err)
		}
	}
	return nil
}

func (c *StillCamera) Close() error {
	if c.markClosed() {
		c.log.Info("Camera cleanup")
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
