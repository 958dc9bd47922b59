// Package pattern provides a synthetic viewport that renders a moving test
// card, for running the stream without a display server.
package pattern

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/bryanchriswhite/FrameRelay/internal/viewport"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrClosed is returned by ReadPixels after Close.
var ErrClosed = errors.New("pattern viewport closed")

// windowID is reported by the synthetic window; X11 never hands out ids this low.
const windowID = 1

// Viewport renders a scrolling gradient with a label and frame counter.
type Viewport struct {
	mu     sync.Mutex
	size   image.Point
	label  string
	frame  uint64
	closed bool

	resized viewport.Event[image.Point]
	gone    viewport.Event[struct{}]
}

// NewViewport creates a pattern surface of the given size.
func NewViewport(size image.Point, label string) *Viewport {
	return &Viewport{size: size, label: label}
}

// Size returns the surface size
func (v *Viewport) Size() image.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

// OnResize registers a resize handler
func (v *Viewport) OnResize(fn func(image.Point)) *viewport.Subscription {
	return v.resized.Add(fn)
}

// FindWindow returns the synthetic window wrapping this surface
func (v *Viewport) FindWindow() (viewport.Window, bool) {
	return window{v}, true
}

// Resize changes the surface size and notifies subscribers.
func (v *Viewport) Resize(size image.Point) {
	v.mu.Lock()
	if size == v.size {
		v.mu.Unlock()
		return
	}
	v.size = size
	v.mu.Unlock()

	v.resized.Fire(size)
}

// Close marks the window closed and notifies subscribers once.
func (v *Viewport) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.gone.Fire(struct{}{})
}

// Frames returns how many surfaces have been rendered.
func (v *Viewport) Frames() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.frame
}

// ReadPixels renders the next test card
func (v *Viewport) ReadPixels() (*image.RGBA, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrClosed
	}
	v.frame++
	n := v.frame
	size := v.size
	label := v.label
	v.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	drawGradient(img, int(n))
	drawLabel(img, fmt.Sprintf("%s  #%d  %dx%d", label, n, size.X, size.Y), 8, 8)
	return img, nil
}

type window struct {
	v *Viewport
}

func (w window) ID() uint32 { return windowID }

func (w window) OnClosed(fn func()) *viewport.Subscription {
	return w.v.gone.Add(func(struct{}) { fn() })
}

// drawGradient fills img with diagonal color bands shifted by offset.
func drawGradient(img *image.RGBA, offset int) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			i := (x - b.Min.X) * 4
			t := x + y + offset*4
			row[i] = uint8(t)
			row[i+1] = uint8(t >> 1)
			row[i+2] = uint8(255 - uint8(t))
			row[i+3] = 255
		}
	}
}

// drawLabel writes text on a dark box at (x, y).
func drawLabel(img *image.RGBA, text string, x, y int) {
	face := basicfont.Face7x13
	const padding = 4
	height := face.Metrics().Height.Ceil()

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: face,
	}
	width := d.MeasureString(text).Ceil()

	box := image.Rect(x, y, x+width+padding*2, y+height+padding*2).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(color.RGBA{0, 0, 0, 200}), image.Point{}, draw.Over)

	d.Dot = fixed.Point26_6{
		X: fixed.I(x + padding),
		Y: fixed.I(y+padding) + face.Metrics().Ascent,
	}
	d.DrawString(text)
}
