package camera

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// jpegQuality is used when a picture is re-encoded after annotation.
const jpegQuality = 90

var namedColors = map[string]color.RGBA{
	"black":   {0, 0, 0, 255},
	"white":   {255, 255, 255, 255},
	"red":     {255, 0, 0, 255},
	"green":   {0, 128, 0, 255},
	"blue":    {0, 0, 255, 255},
	"yellow":  {255, 255, 0, 255},
	"cyan":    {0, 255, 255, 255},
	"magenta": {255, 0, 255, 255},
	"gray":    {128, 128, 128, 255},
	"grey":    {128, 128, 128, 255},
}

// ParseColor accepts a colour name ("white") or a hex triplet ("#ff8800").
func ParseColor(s string) (color.RGBA, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[name]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(name, "#")
	if len(hex) != 6 || hex == name {
		return color.RGBA{}, fmt.Errorf("unknown colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("unknown colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// drawAnnotation returns a copy of src with the banner drawn top-centre.
// The text is padded with a space on each side and scaled to a.Size pixels
// high, shrunk further if it would not fit the picture width.
func drawAnnotation(src image.Image, a Annotation) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	xdraw.Draw(dst, b, src, b.Min, xdraw.Src)

	text := " " + a.Text + " "
	face := basicfont.Face7x13
	metrics := face.Metrics()

	d := &font.Drawer{Face: face}
	w := d.MeasureString(text).Ceil()
	h := metrics.Height.Ceil()
	if w == 0 || h == 0 || b.Dx() == 0 {
		return dst
	}

	label := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(label, label.Bounds(), image.NewUniform(a.Background), image.Point{}, xdraw.Src)
	d.Dst = label
	d.Src = image.NewUniform(a.Foreground)
	d.Dot = fixed.P(0, metrics.Ascent.Ceil())
	d.DrawString(text)

	size := a.Size
	if size <= 0 {
		size = h
	}
	sw, sh := w*size/h, size
	if sw > b.Dx() {
		sh = sh * b.Dx() / sw
		sw = b.Dx()
	}
	x0 := b.Min.X + (b.Dx()-sw)/2
	target := image.Rect(x0, b.Min.Y, x0+sw, b.Min.Y+sh)
	xdraw.NearestNeighbor.Scale(dst, target, label, label.Bounds(), xdraw.Over, nil)
	return dst
}

// annotateFile draws the banner onto the JPEG at path, in place.
func annotateFile(path string, a Annotation) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	img, err := jpeg.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return writeJPEG(path, drawAnnotation(img, a))
}

// writeJPEG encodes img to a temporary file next to path and renames it
// over path.
func writeJPEG(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
