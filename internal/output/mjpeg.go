package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bryanchriswhite/FrameRelay/internal/logger"
)

// Stats is a snapshot of broadcaster activity
type Stats struct {
	Running     bool      `json:"running"`
	Frames      uint64    `json:"frames"`
	Bytes       uint64    `json:"bytes"`
	Clients     int       `json:"clients"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	ActualFPS   float64   `json:"actual_fps"`
	LastUpdate  time.Time `json:"last_update"`
	LastEncode  string    `json:"last_encode"`
	StartedAt   time.Time `json:"started_at"`
	EncodeFails uint64    `json:"encode_failures"`
}

// Broadcaster JPEG-encodes each frame once and fans it out to every
// connected MJPEG and WebSocket client. Slow clients miss frames rather than
// stall the sender.
type Broadcaster struct {
	config Config

	mu          sync.RWMutex
	running     bool
	frameCount  uint64
	byteCount   uint64
	encodeFails uint64
	lastUpdate  time.Time
	lastEncode  time.Duration
	lastSize    image.Point
	startTime   time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
	accepting bool // guarded by clientsMu

	onFramerate func(int)
}

// NewBroadcaster creates a broadcaster with the given settings
func NewBroadcaster(config Config) *Broadcaster {
	return &Broadcaster{
		config:  config.normalized(),
		clients: make(map[chan []byte]struct{}),
	}
}

// OnFramerateRequest sets the callback for framerates requested by
// viewers. Call before serving.
func (b *Broadcaster) OnFramerateRequest(fn func(int)) {
	b.onFramerate = fn
}

func (b *Broadcaster) requestFramerate(rate int) {
	if rate <= 0 || b.onFramerate == nil {
		return
	}
	logger.WithComponent("output").Info().Int("framerate", rate).Msg("Viewer requested framerate")
	b.onFramerate(rate)
}

// Start begins accepting frames
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("broadcaster already running")
	}

	b.running = true
	b.startTime = time.Now()
	b.frameCount = 0
	b.byteCount = 0

	b.clientsMu.Lock()
	b.accepting = true
	b.clientsMu.Unlock()

	logger.WithComponent("output").Info().
		Int("jpeg_quality", b.config.JPEGQuality).
		Msg("Broadcaster started")
	return nil
}

// Stop disconnects every client
func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	frames := b.frameCount
	b.mu.Unlock()

	b.clientsMu.Lock()
	b.accepting = false
	for ch := range b.clients {
		close(ch)
	}
	b.clients = make(map[chan []byte]struct{})
	b.clientsMu.Unlock()

	logger.WithComponent("output").Info().Uint64("frames", frames).Msg("Broadcaster stopped")
	return nil
}

// IsRunning returns true if the broadcaster accepts frames
func (b *Broadcaster) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// SendRawImage encodes the frame as JPEG and queues it for every client
func (b *Broadcaster) SendRawImage(width, height int, pix []byte) error {
	if !b.IsRunning() {
		return ErrNotRunning
	}
	if width <= 0 || height <= 0 || len(pix) < width*height*4 {
		return fmt.Errorf("%w: %dx%d with %d bytes", ErrShortBuffer, width, height, len(pix))
	}

	img := &image.RGBA{
		Pix:    pix,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	start := time.Now()
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: b.config.JPEGQuality}); err != nil {
		b.mu.Lock()
		b.encodeFails++
		b.mu.Unlock()
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()
	elapsed := time.Since(start)

	b.mu.Lock()
	b.frameCount++
	b.byteCount += uint64(len(jpegData))
	b.lastUpdate = time.Now()
	b.lastEncode = elapsed
	b.lastSize = image.Pt(width, height)
	b.mu.Unlock()

	b.broadcast(jpegData)
	return nil
}

func (b *Broadcaster) broadcast(data []byte) {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()

	for ch := range b.clients {
		select {
		case ch <- data:
		default:
			// Client is slow, skip this frame
		}
	}
}

// addClient registers a client channel; ok is false once stopped. The
// accepting check and the insert share clientsMu with Stop, so every
// registered channel is closed by Stop.
func (b *Broadcaster) addClient() (chan []byte, int, bool) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()

	if !b.accepting {
		return nil, 0, false
	}
	ch := make(chan []byte, b.config.ClientBuffer)
	b.clients[ch] = struct{}{}
	return ch, len(b.clients), true
}

func (b *Broadcaster) removeClient(ch chan []byte) int {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()
	delete(b.clients, ch)
	return len(b.clients)
}

// ClientCount returns the number of connected clients
func (b *Broadcaster) ClientCount() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// Stats returns a snapshot of broadcaster counters
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	s := Stats{
		Running:     b.running,
		Frames:      b.frameCount,
		Bytes:       b.byteCount,
		Width:       b.lastSize.X,
		Height:      b.lastSize.Y,
		LastUpdate:  b.lastUpdate,
		LastEncode:  b.lastEncode.String(),
		StartedAt:   b.startTime,
		EncodeFails: b.encodeFails,
	}
	b.mu.RUnlock()

	if s.Running && !s.StartedAt.IsZero() {
		if elapsed := time.Since(s.StartedAt).Seconds(); elapsed > 0 {
			s.ActualFPS = float64(s.Frames) / elapsed
		}
	}
	s.Clients = b.ClientCount()
	return s
}

// MJPEGHandler returns an http.Handler streaming multipart JPEG frames
func (b *Broadcaster) MJPEGHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithComponent("output")

		frameChan, clientCount, ok := b.addClient()
		if !ok {
			http.Error(w, ErrNotRunning.Error(), http.StatusServiceUnavailable)
			return
		}

		// MJPEG viewers cannot send a hello, so the rate rides on the URL.
		rate := DefaultViewerFramerate
		if fps := r.URL.Query().Get("fps"); fps != "" {
			if n, err := strconv.Atoi(fps); err == nil {
				rate = n
			}
		}
		b.requestFramerate(rate)

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		log.Info().Int("clients", clientCount).Msg("MJPEG client connected")
		defer func() {
			remaining := b.removeClient(frameChan)
			log.Info().Int("clients", remaining).Msg("MJPEG client disconnected")
		}()

		for {
			select {
			case <-r.Context().Done():
				return
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
					return
				}
				if _, err := w.Write(jpegData); err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
		}
	}
}
