package stream

import (
	"time"
)

// counters are guarded by Provider.mu.
type counters struct {
	ticks            uint64
	captureRequests  uint64
	drained          uint64
	dispatched       uint64
	dropped          uint64
	skippedBusy      uint64
	skippedThrottled uint64
	skippedDisabled  uint64
	sessions         uint64
	lastDelta        time.Duration
}

// Stats is a snapshot of provider activity
type Stats struct {
	Attached  bool `json:"attached"`
	Capturing bool `json:"capturing"`
	Width     int  `json:"width"`
	Height    int  `json:"height"`
	Framerate int  `json:"framerate"`

	Ticks            uint64 `json:"ticks"`
	CaptureRequests  uint64 `json:"capture_requests"`
	FramesDrained    uint64 `json:"frames_drained"`
	FramesDispatched uint64 `json:"frames_dispatched"`
	FramesSent       uint64 `json:"frames_sent"`
	FramesDropped    uint64 `json:"frames_dropped"`
	SkippedBusy      uint64 `json:"skipped_busy"`
	SkippedThrottled uint64 `json:"skipped_throttled"`
	SkippedDisabled  uint64 `json:"skipped_disabled"`
	SendErrors       uint64 `json:"send_errors"`
	Sessions         uint64 `json:"sessions"`
	InFlight         int    `json:"in_flight"`

	LastSentAt   time.Time     `json:"last_sent_at"`
	LastSendTime time.Duration `json:"last_send_ns"`
	LastTick     time.Duration `json:"last_tick_ns"`
}

// Stats returns a snapshot of the provider counters
func (p *Provider) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Attached:         p.viewport != nil,
		Capturing:        p.session != nil,
		Ticks:            p.counters.ticks,
		CaptureRequests:  p.counters.captureRequests,
		FramesDrained:    p.counters.drained,
		FramesDispatched: p.counters.dispatched,
		FramesDropped:    p.counters.dropped,
		SkippedBusy:      p.counters.skippedBusy,
		SkippedThrottled: p.counters.skippedThrottled,
		SkippedDisabled:  p.counters.skippedDisabled,
		Sessions:         p.counters.sessions,
		LastSentAt:       p.lastSent,
		LastTick:         p.counters.lastDelta,
	}
	if p.session != nil {
		s.Width, s.Height = p.session.size.X, p.session.size.Y
	}
	p.mu.Unlock()

	s.Framerate = p.settings.Framerate.Get()
	s.FramesSent = p.state.sent.Load()
	s.SendErrors = p.state.failed.Load()
	s.InFlight = int(p.state.inFlight.Load())
	s.LastSendTime = time.Duration(p.state.lastSendNano.Load())
	return s
}
