package capture

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/FrameRelay/internal/logger"
	"github.com/bryanchriswhite/FrameRelay/internal/viewport"
	xdraw "golang.org/x/image/draw"
)

// DefaultMaxBuffered bounds how many captured frames wait for a drain.
const DefaultMaxBuffered = 3

var (
	// ErrAlreadyStarted is returned by Start on a running grabber.
	ErrAlreadyStarted = errors.New("frame grabber already started")
	// ErrInvalidSize is returned by Start for a non-positive resolution.
	ErrInvalidSize = errors.New("frame grabber resolution must be positive")
)

// FrameGrabber reads a viewport on its own goroutine whenever a capture is
// requested and buffers the scaled results until they are drained.
type FrameGrabber struct {
	maxBuffered int

	mu      sync.Mutex
	running bool
	gen     uint64 // bumped on every Start so a stale worker cannot append
	size    image.Point
	frames  []Frame
	dropped uint64

	requests chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// NewFrameGrabber creates a grabber buffering at most maxBuffered frames.
// Values <= 0 use DefaultMaxBuffered.
func NewFrameGrabber(maxBuffered int) *FrameGrabber {
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBuffered
	}
	return &FrameGrabber{maxBuffered: maxBuffered}
}

// Start binds the grabber to vp and starts the capture worker
func (g *FrameGrabber) Start(vp viewport.Viewport, size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return ErrInvalidSize
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return ErrAlreadyStarted
	}

	g.running = true
	g.gen++
	g.size = size
	g.frames = nil
	g.requests = make(chan struct{}, 1)
	g.stop = make(chan struct{})
	g.done = make(chan struct{})

	go g.worker(vp, size, g.gen, g.requests, g.stop, g.done)

	logger.WithComponent("capture").Debug().
		Int("width", size.X).
		Int("height", size.Y).
		Msg("Frame grabber started")
	return nil
}

// Stop halts the worker and discards buffered frames. Safe to call twice.
func (g *FrameGrabber) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	close(g.stop)
	done := g.done
	g.mu.Unlock()

	<-done

	g.mu.Lock()
	g.frames = nil
	g.mu.Unlock()

	logger.WithComponent("capture").Debug().Msg("Frame grabber stopped")
}

// CaptureThisFrame queues a capture. Requests made while one is already
// pending collapse into it.
func (g *FrameGrabber) CaptureThisFrame() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return
	}
	select {
	case g.requests <- struct{}{}:
	default:
	}
}

// CapturedFrames hands the buffered frames to the caller
func (g *FrameGrabber) CapturedFrames() []Frame {
	g.mu.Lock()
	defer g.mu.Unlock()

	frames := g.frames
	g.frames = nil
	return frames
}

// Resolution returns the target size of the current session.
func (g *FrameGrabber) Resolution() image.Point {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.size
}

// Dropped returns how many frames fell out of a full buffer.
func (g *FrameGrabber) Dropped() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}

func (g *FrameGrabber) worker(vp viewport.Viewport, size image.Point, gen uint64, requests <-chan struct{}, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := logger.WithComponent("capture")

	for {
		select {
		case <-stop:
			return
		case <-requests:
		}

		src, err := vp.ReadPixels()
		if err != nil {
			log.Debug().Err(err).Msg("Viewport read failed")
			continue
		}

		frame := Frame{Image: scaleTo(src, size), CapturedAt: time.Now()}

		g.mu.Lock()
		if g.running && g.gen == gen {
			g.frames = append(g.frames, frame)
			if over := len(g.frames) - g.maxBuffered; over > 0 {
				g.frames = append(g.frames[:0], g.frames[over:]...)
				g.dropped += uint64(over)
			}
		}
		g.mu.Unlock()
	}
}

// scaleTo returns src resized to size, or src itself when it already fits.
func scaleTo(src *image.RGBA, size image.Point) *image.RGBA {
	if src.Bounds().Size() == size && src.Bounds().Min == (image.Point{}) {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
