package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/sirupsen/logrus"
)

// MockCamera renders a grey gradient instead of reading a sensor.
// Used for development on PC.
type MockCamera struct {
	handle
	settings Settings
	log      *logrus.Entry
}

func (m *MockCamera) Capture(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("%w: %s: camera closed", ErrCapture, path)
	}

	m.log.WithField("image", path).Info("Capture picture (mock)")

	w, h := m.settings.Width, m.settings.Height
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 255 / max(w+h-2, 1))})
		}
	}

	var out image.Image = img
	if a := m.settings.Annotation; a != nil {
		out = drawAnnotation(img, *a)
	}
	if err := writeJPEG(path, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCapture, path, err)
	}
	return nil
}

func (m *MockCamera) Close() error {
	if m.markClosed() {
		m.log.Info("Camera cleanup (mock)")
	}
	return nil
}
