package viewport

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FrameRelay/internal/logger"
)

// ErrWindowGone is returned by ReadPixels once the window was destroyed.
var ErrWindowGone = errors.New("x11 window is gone")

// X11Viewport exposes an existing X11 window as a Viewport.
// Resize and close notifications come from StructureNotify events on the
// window; pixels are read through the Composite extension when available.
type X11Viewport struct {
	conn             *xgb.Conn
	screen           *xproto.ScreenInfo
	win              xproto.Window
	compositeEnabled bool

	mu     sync.Mutex // serializes GetImage and guards size/closed
	size   image.Point
	closed bool

	resized Event[image.Point]
	gone    Event[struct{}]
	done    chan struct{}
}

// OpenX11 connects to the X server and binds to the given window.
func OpenX11(windowID uint32) (*X11Viewport, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	v, err := newX11Viewport(conn, xproto.Window(windowID))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return v, nil
}

func newX11Viewport(conn *xgb.Conn, win xproto.Window) (*X11Viewport, error) {
	log := logger.WithComponent("x11-viewport")

	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}

	if err := xproto.ChangeWindowAttributesChecked(
		conn,
		win,
		xproto.CwEventMask,
		[]uint32{xproto.EventMaskStructureNotify},
	).Check(); err != nil {
		return nil, fmt.Errorf("failed to select structure events: %w", err)
	}

	v := &X11Viewport{
		conn:   conn,
		screen: xproto.Setup(conn).DefaultScreen(conn),
		win:    win,
		size:   image.Pt(int(geom.Width), int(geom.Height)),
		done:   make(chan struct{}),
	}

	if err := composite.Init(conn); err != nil {
		log.Warn().
			Err(err).
			Msg("Composite extension not available - obscured windows will capture incorrectly")
	} else {
		v.compositeEnabled = true
	}

	log.Info().
		Uint32("window_id", uint32(win)).
		Int("width", v.size.X).
		Int("height", v.size.Y).
		Bool("composite", v.compositeEnabled).
		Msg("Bound to X11 window")

	go v.eventLoop()
	return v, nil
}

// Size returns the last known window size
func (v *X11Viewport) Size() image.Point {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

// OnResize registers a resize handler
func (v *X11Viewport) OnResize(fn func(image.Point)) *Subscription {
	return v.resized.Add(fn)
}

// FindWindow returns the X11 window itself
func (v *X11Viewport) FindWindow() (Window, bool) {
	return x11Window{v}, true
}

// Close stops the event loop and drops the X connection.
func (v *X11Viewport) Close() error {
	v.conn.Close()
	<-v.done
	return nil
}

type x11Window struct {
	v *X11Viewport
}

func (w x11Window) ID() uint32 { return uint32(w.v.win) }

func (w x11Window) OnClosed(fn func()) *Subscription {
	return w.v.gone.Add(func(struct{}) { fn() })
}

func (v *X11Viewport) eventLoop() {
	defer close(v.done)
	log := logger.WithComponent("x11-viewport")

	for {
		ev, xerr := v.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			// Connection closed
			return
		}
		if xerr != nil {
			log.Debug().Str("error", xerr.Error()).Msg("X error")
			continue
		}

		switch e := ev.(type) {
		case xproto.ConfigureNotifyEvent:
			if e.Window != v.win {
				continue
			}
			size := image.Pt(int(e.Width), int(e.Height))
			v.mu.Lock()
			changed := size != v.size
			v.size = size
			v.mu.Unlock()
			if changed {
				log.Debug().Int("width", size.X).Int("height", size.Y).Msg("Window resized")
				v.resized.Fire(size)
			}
		case xproto.DestroyNotifyEvent:
			if e.Window == v.win {
				v.markGone()
			}
		case xproto.UnmapNotifyEvent:
			if e.Window == v.win {
				v.markGone()
			}
		}
	}
}

func (v *X11Viewport) markGone() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	logger.WithComponent("x11-viewport").Info().
		Uint32("window_id", uint32(v.win)).
		Msg("Window closed")
	v.gone.Fire(struct{}{})
}

// ReadPixels grabs the window contents
func (v *X11Viewport) ReadPixels() (*image.RGBA, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrWindowGone
	}

	geom, err := xproto.GetGeometry(v.conn, xproto.Drawable(v.win)).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window geometry: %w", err)
	}

	drawable := xproto.Drawable(v.win)
	if v.compositeEnabled {
		if pixmap, release, ok := v.namePixmap(); ok {
			defer release()
			drawable = xproto.Drawable(pixmap)
		}
	}

	reply, err := xproto.GetImage(
		v.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		geom.Width, geom.Height,
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return convertBGRA(reply.Data, int(geom.Width), int(geom.Height), int(v.screen.RootDepth)), nil
}

// namePixmap redirects the window off-screen and names its backing pixmap so
// obscured regions read correctly.
func (v *X11Viewport) namePixmap() (xproto.Pixmap, func(), bool) {
	log := logger.WithComponent("x11-viewport")

	if err := composite.RedirectWindowChecked(v.conn, v.win, composite.RedirectAutomatic).Check(); err != nil {
		log.Debug().Err(err).Msg("Composite redirect failed, using direct capture")
		return 0, nil, false
	}

	pixmap, err := xproto.NewPixmapId(v.conn)
	if err != nil {
		composite.UnredirectWindow(v.conn, v.win, composite.RedirectAutomatic)
		return 0, nil, false
	}

	if err := composite.NameWindowPixmapChecked(v.conn, v.win, pixmap).Check(); err != nil {
		composite.UnredirectWindow(v.conn, v.win, composite.RedirectAutomatic)
		return 0, nil, false
	}

	return pixmap, func() {
		xproto.FreePixmap(v.conn, pixmap)
		composite.UnredirectWindow(v.conn, v.win, composite.RedirectAutomatic)
	}, true
}

// convertBGRA turns 32bpp ZPixmap data into RGBA. Depths other than 24/32
// yield a black image.
func convertBGRA(data []byte, width, height, depth int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if depth != 24 && depth != 32 {
		return img
	}

	n := width * height * 4
	if len(data) < n {
		n = len(data) &^ 3
	}
	for i := 0; i < n; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 255
	}
	return img
}
