package stream

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/FrameRelay/internal/capture"
	"github.com/bryanchriswhite/FrameRelay/internal/logger"
	"github.com/bryanchriswhite/FrameRelay/internal/output"
	"github.com/bryanchriswhite/FrameRelay/internal/viewport"
	"github.com/sourcegraph/conc"
)

// Options configure a Provider. Zero values select the defaults.
type Options struct {
	Settings Settings

	// Now is the clock used for throttling
	Now func() time.Time

	// NewGrabber builds the capture facility for each session
	NewGrabber func() capture.Grabber

	// MaxBufferedFrames is passed to the default grabber
	MaxBufferedFrames int
}

type captureSession struct {
	grabber capture.Grabber
	size    image.Point
}

// Provider captures frames from the attached viewport on every Tick and
// hands the newest one to the ImageSender at most once per framerate
// interval, with never more than one send in flight.
//
// Tick, AttachViewport and Detach may be called from different goroutines;
// viewport notifications arrive on whatever goroutine the viewport uses.
type Provider struct {
	settings   Settings
	now        func() time.Time
	newGrabber func() capture.Grabber

	mu        sync.Mutex
	viewport  viewport.Viewport
	resizeSub *viewport.Subscription
	closeSub  *viewport.Subscription
	session   *captureSession
	lastSent  time.Time
	closed    bool
	counters  counters

	resizePending atomic.Bool

	state       *sendState
	stateOwner  *owned[sendState]
	senderOwner *owned[sink]
	tasks       conc.WaitGroup
}

// NewProvider creates a provider that forwards frames to sender
func NewProvider(sender output.ImageSender, opts Options) *Provider {
	if opts.Settings.Framerate == nil {
		opts.Settings = DefaultSettings
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewGrabber == nil {
		maxBuffered := opts.MaxBufferedFrames
		opts.NewGrabber = func() capture.Grabber { return capture.NewFrameGrabber(maxBuffered) }
	}

	state := &sendState{}
	return &Provider{
		settings:    opts.Settings,
		now:         opts.Now,
		newGrabber:  opts.NewGrabber,
		state:       state,
		stateOwner:  newOwned(state),
		senderOwner: newOwned(&sink{sender}),
	}
}

// SetTargetFramerate sets the framerate unless the user already chose one.
// It reports whether the value was applied. Rates <= 0 are ignored.
func (p *Provider) SetTargetFramerate(rate int) bool {
	if rate <= 0 {
		return false
	}
	applied := p.settings.Framerate.SetIfUnset(rate)
	logger.WithComponent("stream").Debug().
		Int("requested", rate).
		Int("framerate", p.settings.Framerate.Get()).
		Bool("applied", applied).
		Msg("Target framerate request")
	return applied
}

// AttachViewport starts capturing from vp. Attaching the viewport that is
// already attached does nothing; attaching nil detaches.
func (p *Provider) AttachViewport(vp viewport.Viewport) {
	if vp == nil {
		p.Detach()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || vp == p.viewport {
		return
	}

	p.unsubscribeLocked()
	p.viewport = vp
	p.resizePending.Store(false)

	if win, ok := vp.FindWindow(); ok {
		p.closeSub = win.OnClosed(func() { p.onWindowClosed(vp) })
	}

	p.createSessionLocked()
	p.resizeSub = vp.OnResize(p.OnViewportResized)
}

// Detach releases the capture session and forgets the viewport. Idempotent.
func (p *Provider) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detachLocked()
}

// OnViewportResized flags the session for recreation on the next Tick.
func (p *Provider) OnViewportResized(size image.Point) {
	p.resizePending.Store(true)
	logger.WithComponent("stream").Debug().
		Int("width", size.X).
		Int("height", size.Y).
		Msg("Viewport resized")
}

func (p *Provider) onWindowClosed(vp viewport.Viewport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.viewport != vp {
		return
	}
	logger.WithComponent("stream").Info().Msg("Viewport window closed, capture released")
	p.detachLocked()
}

// Tick runs one capture/send step.
func (p *Provider) Tick(delta time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.counters.ticks++
	p.counters.lastDelta = delta

	if p.resizePending.Swap(false) && p.viewport != nil {
		p.releaseSessionLocked()
		p.createSessionLocked()
	}

	if p.session == nil {
		return
	}

	grabber := p.session.grabber
	grabber.CaptureThisFrame()
	p.counters.captureRequests++

	frames := grabber.CapturedFrames()
	if len(frames) == 0 {
		return
	}
	p.counters.drained += uint64(len(frames))

	rate := p.settings.Framerate.Get()
	if rate <= 0 {
		p.counters.skippedDisabled++
		p.counters.dropped += uint64(len(frames))
		return
	}

	now := p.now()
	elapsed := now.Sub(p.lastSent)
	desired := time.Duration(1000/rate) * time.Millisecond

	if p.state.inFlight.Load() != 0 {
		p.counters.skippedBusy++
		p.counters.dropped += uint64(len(frames))
		return
	}
	if elapsed < desired {
		p.counters.skippedThrottled++
		p.counters.dropped += uint64(len(frames))
		return
	}

	last := frames[len(frames)-1]
	p.counters.dropped += uint64(len(frames) - 1)
	if last.Image == nil {
		return
	}

	p.state.inFlight.Add(1)
	task := sendTask{
		sender: p.senderOwner.weak(),
		state:  p.stateOwner.weak(),
		frame:  last.Image,
	}
	p.tasks.Go(task.run)
	p.lastSent = now
	p.counters.dispatched++
}

// Run ticks the provider every interval until ctx is cancelled.
func (p *Provider) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second / 60
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithComponent("stream").Info().Dur("interval", interval).Msg("Tick loop started")

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			p.Tick(t.Sub(last))
			last = t
		}
	}
}

// Wait blocks until every dispatched send has returned. Call it after
// ticking has stopped. A panicking sender is logged, not propagated.
func (p *Provider) Wait() {
	if r := p.tasks.WaitAndRecover(); r != nil {
		logger.WithComponent("stream").Error().
			Str("panic", r.String()).
			Msg("Send task panicked")
	}
}

// Close detaches the viewport and expires the sender and task state shared
// with background sends, which then exit without effect.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.detachLocked()
	p.closed = true
	p.senderOwner.expire()
	p.stateOwner.expire()
	return nil
}

func (p *Provider) detachLocked() {
	p.unsubscribeLocked()
	p.releaseSessionLocked()
	p.viewport = nil
	p.resizePending.Store(false)
}

func (p *Provider) unsubscribeLocked() {
	p.resizeSub.Remove()
	p.resizeSub = nil
	p.closeSub.Remove()
	p.closeSub = nil
}

func (p *Provider) createSessionLocked() {
	log := logger.WithComponent("stream")
	p.releaseSessionLocked()

	size := p.viewport.Size()
	if x := p.settings.ResX.Get(); x > 0 {
		size.X = x
	}
	if y := p.settings.ResY.Get(); y > 0 {
		size.Y = y
	}

	grabber := p.newGrabber()
	if err := grabber.Start(p.viewport, size); err != nil {
		log.Warn().
			Err(err).
			Int("width", size.X).
			Int("height", size.Y).
			Msg("Failed to start frame grabber")
		return
	}

	p.session = &captureSession{grabber: grabber, size: size}
	p.counters.sessions++
	log.Info().
		Int("width", size.X).
		Int("height", size.Y).
		Msg("Capture session started")
}

func (p *Provider) releaseSessionLocked() {
	if p.session == nil {
		return
	}
	p.session.grabber.Stop()
	p.session = nil
}
