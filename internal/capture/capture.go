package capture

import (
	"image"
	"time"

	"github.com/bryanchriswhite/FrameRelay/internal/viewport"
)

// Frame is one captured surface, already scaled to the session resolution.
type Frame struct {
	Image      *image.RGBA
	CapturedAt time.Time
}

// Size returns the frame dimensions
func (f Frame) Size() image.Point {
	if f.Image == nil {
		return image.Point{}
	}
	return f.Image.Bounds().Size()
}

// Grabber defines the frame capture facility bound to one viewport
type Grabber interface {
	// Start begins capturing from vp at the given resolution
	Start(vp viewport.Viewport, size image.Point) error

	// Stop releases the viewport and any pending frames
	Stop()

	// CaptureThisFrame requests a capture without waiting for it
	CaptureThisFrame()

	// CapturedFrames drains the frames captured since the last call,
	// oldest first
	CapturedFrames() []Frame
}
