package window

import (
	"strings"

	"github.com/BurntSushi/xgb"
)

// Geometry is a window's position and size relative to its parent
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowInfo describes a top-level X11 window
type WindowInfo struct {
	ID       uint32   `json:"id"`
	Title    string   `json:"title"`
	Class    string   `json:"class"`
	PID      int      `json:"pid"`
	Geometry Geometry `json:"geometry"`
	Focused  bool     `json:"focused"`
}

// userVisible reports whether the window looks like an application window.
func (w *WindowInfo) userVisible() bool {
	return w.Title != "" || w.Class != ""
}

// parseWindowIDs decodes a list of 32-bit window ids from a property value.
func parseWindowIDs(value []byte) []uint32 {
	ids := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		ids = append(ids, xgb.Get32(value[i:]))
	}
	return ids
}

// parseClass extracts the class from WM_CLASS ("instance\0class\0"),
// falling back to the instance.
func parseClass(raw string) string {
	parts := strings.Split(raw, "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return parts[0]
}
