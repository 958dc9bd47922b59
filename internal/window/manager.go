package window

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/FrameRelay/internal/logger"
)

// ErrNoFocus is returned when the X server reports no usable focused window.
var ErrNoFocus = errors.New("no focused window")

// Manager discovers X11 windows that can be streamed
type Manager struct {
	conn *xgb.Conn
	root xproto.Window

	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// NewManager connects to the X server named by $DISPLAY
func NewManager() (*Manager, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	return &Manager{
		conn:  conn,
		root:  root,
		atoms: make(map[string]xproto.Atom),
	}, nil
}

// Close closes the X connection
func (m *Manager) Close() {
	m.conn.Close()
}

// ListWindows returns the application windows, preferring the EWMH client
// list and falling back to the root window's children.
func (m *Manager) ListWindows() ([]*WindowInfo, error) {
	log := logger.WithComponent("window")

	ids, err := m.clientList()
	if err != nil || len(ids) == 0 {
		log.Debug().Err(err).Msg("_NET_CLIENT_LIST unavailable, falling back to QueryTree")
		tree, err := xproto.QueryTree(m.conn, m.root).Reply()
		if err != nil {
			return nil, fmt.Errorf("failed to query window tree: %w", err)
		}
		ids = make([]uint32, 0, len(tree.Children))
		for _, child := range tree.Children {
			ids = append(ids, uint32(child))
		}
	}

	var focused uint32
	if reply, err := xproto.GetInputFocus(m.conn).Reply(); err == nil {
		focused = uint32(reply.Focus)
	}

	windows := make([]*WindowInfo, 0, len(ids))
	for _, id := range ids {
		info := m.windowInfo(xproto.Window(id))
		if !info.userVisible() {
			continue
		}
		info.Focused = id == focused
		windows = append(windows, info)
	}

	log.Debug().Int("count", len(windows)).Msg("Listed windows")
	return windows, nil
}

// FocusedWindow returns the window holding input focus
func (m *Manager) FocusedWindow() (*WindowInfo, error) {
	reply, err := xproto.GetInputFocus(m.conn).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get input focus: %w", err)
	}
	// None (0) and PointerRoot (1) are not real windows.
	if reply.Focus <= 1 || reply.Focus == m.root {
		return nil, ErrNoFocus
	}

	info := m.windowInfo(reply.Focus)
	info.Focused = true
	return info, nil
}

func (m *Manager) clientList() ([]uint32, error) {
	atom, err := m.atom("_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(m.conn, false, m.root, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST: %w", err)
	}
	return parseWindowIDs(reply.Value), nil
}

func (m *Manager) windowInfo(win xproto.Window) *WindowInfo {
	info := &WindowInfo{ID: uint32(win)}

	if geom, err := xproto.GetGeometry(m.conn, xproto.Drawable(win)).Reply(); err == nil {
		info.Geometry = Geometry{
			X:      int(geom.X),
			Y:      int(geom.Y),
			Width:  int(geom.Width),
			Height: int(geom.Height),
		}
	}

	if title, err := m.property(win, "_NET_WM_NAME"); err == nil {
		info.Title = title
	}
	if info.Title == "" {
		if title, err := m.property(win, "WM_NAME"); err == nil {
			info.Title = title
		}
	}

	if raw, err := m.property(win, "WM_CLASS"); err == nil {
		info.Class = parseClass(raw)
	}

	if atom, err := m.atom("_NET_WM_PID"); err == nil {
		reply, err := xproto.GetProperty(m.conn, false, win, atom,
			xproto.AtomCardinal, 0, 1).Reply()
		if err == nil && len(reply.Value) >= 4 {
			info.PID = int(xgb.Get32(reply.Value))
		}
	}

	return info
}

// atom interns name once per manager.
func (m *Manager) atom(name string) (xproto.Atom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(m.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern %s: %w", name, err)
	}
	m.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (m *Manager) property(win xproto.Window, name string) (string, error) {
	atom, err := m.atom(name)
	if err != nil {
		return "", err
	}
	reply, err := xproto.GetProperty(m.conn, false, win, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property %s", name)
	}
	return string(reply.Value), nil
}
