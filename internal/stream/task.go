package stream

import (
	"image"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FrameRelay/internal/logger"
	"github.com/bryanchriswhite/FrameRelay/internal/output"
)

// sendState is shared between the tick goroutine and send tasks.
type sendState struct {
	inFlight     atomic.Int32
	sent         atomic.Uint64
	failed       atomic.Uint64
	lastSendNano atomic.Int64
}

// sink boxes the sender so it can sit behind an owned pointer.
type sink struct {
	output.ImageSender
}

// sendTask carries one frame from the tick goroutine to the sender.
type sendTask struct {
	sender weakRef[sink]
	state  weakRef[sendState]
	frame  *image.RGBA
}

func (t sendTask) run() {
	if !t.sender.valid() {
		return
	}
	state, ok := t.state.pin()
	if !ok {
		return
	}
	defer state.inFlight.Add(-1)

	pix, width, height := packed(t.frame)
	forceOpaque(pix)

	s, ok := t.sender.pin()
	if !ok {
		return
	}

	start := time.Now()
	err := s.SendRawImage(width, height, pix)
	state.lastSendNano.Store(int64(time.Since(start)))
	if err != nil {
		state.failed.Add(1)
		logger.WithComponent("stream").Warn().Err(err).Msg("Failed to send frame")
		return
	}
	state.sent.Add(1)
}

// packed returns the frame's pixels with rows laid out back to back.
func packed(img *image.RGBA) ([]byte, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rowLen := w * 4
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		return img.Pix[:rowLen*h], w, h
	}

	pix := make([]byte, rowLen*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(pix[y*rowLen:], img.Pix[off:off+rowLen])
	}
	return pix, w, h
}

// forceOpaque sets every alpha sample to 255.
func forceOpaque(pix []byte) {
	for i := 3; i < len(pix); i += 4 {
		pix[i] = 255
	}
}
