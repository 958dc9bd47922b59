package output

import (
	"errors"
)

var (
	// ErrNotRunning is returned when a frame arrives before Start or after Stop.
	ErrNotRunning = errors.New("output not running")
	// ErrShortBuffer is returned when pix holds fewer than width*height*4 bytes.
	ErrShortBuffer = errors.New("pixel buffer shorter than width*height*4")
)

// DefaultViewerFramerate is requested by MJPEG viewers that do not pass ?fps=.
const DefaultViewerFramerate = 30

// ImageSender accepts raw frames and delivers them to remote viewers.
// Implementations must be safe to call from a goroutine other than the one
// that created them.
type ImageSender interface {
	// SendRawImage transmits one RGBA frame, 4 bytes per pixel, rows packed
	// without padding. The sender owns pix once called.
	SendRawImage(width, height int, pix []byte) error
}

// Config holds settings shared by the output implementations
type Config struct {
	// JPEGQuality is passed to image/jpeg (1-100)
	JPEGQuality int
	// ClientBuffer is the number of encoded frames queued per client
	ClientBuffer int
}

// DefaultConfig returns the settings used when the config file is silent.
func DefaultConfig() Config {
	return Config{JPEGQuality: 85, ClientBuffer: 2}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = d.JPEGQuality
	}
	if c.ClientBuffer <= 0 {
		c.ClientBuffer = d.ClientBuffer
	}
	return c
}
