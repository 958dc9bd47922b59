package window

import (
	"reflect"
	"testing"
)

func TestParseWindowIDs(t *testing.T) {
	value := []byte{
		0x07, 0x00, 0x40, 0x00,
		0x01, 0x02, 0x03, 0x04,
		0xff, // trailing partial id
	}
	got := parseWindowIDs(value)
	want := []uint32{0x00400007, 0x04030201}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseWindowIDs() = %#x, want %#x", got, want)
	}
}

func TestParseClass(t *testing.T) {
	cases := map[string]string{
		"navigator\x00Firefox\x00": "Firefox",
		"xterm\x00\x00":            "xterm",
		"solo":                     "solo",
		"":                         "",
	}
	for raw, want := range cases {
		if got := parseClass(raw); got != want {
			t.Errorf("parseClass(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestUserVisible(t *testing.T) {
	if (&WindowInfo{}).userVisible() {
		t.Errorf("untitled classless window reported visible")
	}
	if !(&WindowInfo{Class: "Terminal"}).userVisible() {
		t.Errorf("classed window reported hidden")
	}
}
