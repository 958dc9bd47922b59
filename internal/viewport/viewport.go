package viewport

import (
	"image"
)

// Viewport is a renderable surface with a size, usually owned by a window.
type Viewport interface {
	// Size returns the current surface size in pixels
	Size() image.Point

	// OnResize registers a handler for size changes.
	// Remove the returned subscription to stop receiving them.
	OnResize(fn func(image.Point)) *Subscription

	// FindWindow returns the window hosting this viewport, if any
	FindWindow() (Window, bool)

	// ReadPixels copies the current surface contents as RGBA
	ReadPixels() (*image.RGBA, error)
}

// Window is the top-level window that owns a viewport.
type Window interface {
	// ID returns a backend-specific window identifier
	ID() uint32

	// OnClosed registers a handler invoked once the window goes away
	OnClosed(fn func()) *Subscription
}
