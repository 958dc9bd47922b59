package output

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func solidFrame(w, h int, r, g, b byte) []byte {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
	}
	return pix
}

func waitClients(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if b.ClientCount() < n {
		t.Fatalf("ClientCount() = %d, want %d", b.ClientCount(), n)
	}
}

func TestSendRawImage_NotRunning(t *testing.T) {
	b := NewBroadcaster(DefaultConfig())
	if err := b.SendRawImage(2, 2, solidFrame(2, 2, 0, 0, 0)); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}

func TestSendRawImage_ShortBuffer(t *testing.T) {
	b := NewBroadcaster(DefaultConfig())
	b.Start()
	defer b.Stop()

	if err := b.SendRawImage(4, 4, make([]byte, 10)); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
	if b.Stats().Frames != 0 {
		t.Fatalf("rejected frame was counted")
	}
}

func TestSendRawImage_UpdatesStats(t *testing.T) {
	b := NewBroadcaster(Config{JPEGQuality: 500})
	if b.config.JPEGQuality != DefaultConfig().JPEGQuality {
		t.Fatalf("out of range quality not normalized: %d", b.config.JPEGQuality)
	}
	b.Start()
	defer b.Stop()

	if err := b.SendRawImage(16, 8, solidFrame(16, 8, 200, 10, 10)); err != nil {
		t.Fatalf("SendRawImage() error: %v", err)
	}
	s := b.Stats()
	if s.Frames != 1 || s.Bytes == 0 || s.Width != 16 || s.Height != 8 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestWebSocket_ReceivesJPEGAndControl(t *testing.T) {
	var requested atomic.Int32
	b := NewBroadcaster(DefaultConfig())
	b.OnFramerateRequest(func(n int) { requested.Store(int32(n)) })
	b.Start()
	defer b.Stop()

	srv := httptest.NewServer(b.WebSocketHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ControlMessage{Type: "hello", Framerate: 24}); err != nil {
		t.Fatalf("write control: %v", err)
	}

	waitClients(t, b, 1)
	if err := b.SendRawImage(8, 8, solidFrame(8, 8, 0, 255, 0)); err != nil {
		t.Fatalf("SendRawImage() error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", msgType)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 8 {
		t.Fatalf("decoded bounds = %v", img.Bounds())
	}

	deadline := time.Now().Add(2 * time.Second)
	for requested.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if requested.Load() != 24 {
		t.Fatalf("framerate callback got %d, want 24", requested.Load())
	}
}

func TestMJPEG_StreamsMultipartFrame(t *testing.T) {
	b := NewBroadcaster(DefaultConfig())
	b.Start()
	defer b.Stop()

	srv := httptest.NewServer(b.MJPEGHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}

	waitClients(t, b, 1)
	if err := b.SendRawImage(4, 4, solidFrame(4, 4, 1, 2, 3)); err != nil {
		t.Fatalf("SendRawImage() error: %v", err)
	}

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read boundary: %v", err)
	}
	if strings.TrimSpace(line) != "--frame" {
		t.Fatalf("first line = %q", line)
	}
}

func TestMJPEG_RejectsWhenStopped(t *testing.T) {
	b := NewBroadcaster(DefaultConfig())
	rec := httptest.NewRecorder()
	b.MJPEGHandler()(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMJPEG_RequestsFramerateFromQuery(t *testing.T) {
	b := NewBroadcaster(DefaultConfig())
	var requested atomic.Int32
	b.OnFramerateRequest(func(n int) { requested.Store(int32(n)) })
	b.Start()
	defer b.Stop()

	srv := httptest.NewServer(b.MJPEGHandler())
	defer srv.Close()

	for _, tc := range []struct {
		query string
		want  int32
	}{
		{"?fps=12", 12},
		{"", DefaultViewerFramerate},
	} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+tc.query, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			cancel()
			t.Fatalf("GET %q: %v", tc.query, err)
		}
		if got := requested.Load(); got != tc.want {
			t.Errorf("GET %q requested %d, want %d", tc.query, got, tc.want)
		}
		resp.Body.Close()
		cancel()
	}
}

func TestAddClient_ClosedByConcurrentStop(t *testing.T) {
	for i := 0; i < 200; i++ {
		b := NewBroadcaster(DefaultConfig())
		b.Start()

		added := make(chan chan []byte, 1)
		go func() {
			ch, _, ok := b.addClient()
			if !ok {
				ch = nil
			}
			added <- ch
		}()
		b.Stop()

		ch := <-added
		if ch == nil {
			continue
		}
		select {
		case _, open := <-ch:
			if open {
				t.Fatalf("iteration %d: unexpected frame on client channel", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: client registered across Stop was never closed", i)
		}
	}

	b := NewBroadcaster(DefaultConfig())
	if _, _, ok := b.addClient(); ok {
		t.Fatalf("client accepted before Start")
	}
}
