package output

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bryanchriswhite/FrameRelay/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ControlMessage is what a WebSocket viewer may send upstream.
type ControlMessage struct {
	Type      string `json:"type"`
	Framerate int    `json:"framerate,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Viewers are served from any origin
	},
}

// WebSocketHandler returns an http.Handler that streams frames as binary
// WebSocket messages, one JPEG per message.
func (b *Broadcaster) WebSocketHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.WithComponent("output")

		frameChan, clientCount, ok := b.addClient()
		if !ok {
			http.Error(w, ErrNotRunning.Error(), http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.removeClient(frameChan)
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		log.Info().
			Str("remote", r.RemoteAddr).
			Int("clients", clientCount).
			Msg("WebSocket client connected")

		readerDone := make(chan struct{})
		go b.readControl(conn, readerDone)

		ticker := time.NewTicker(pingPeriod)
		defer func() {
			ticker.Stop()
			remaining := b.removeClient(frameChan)
			log.Info().Int("clients", remaining).Msg("WebSocket client disconnected")
		}()

		for {
			select {
			case <-readerDone:
				return
			case jpegData, ok := <-frameChan:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream stopped"))
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, jpegData); err != nil {
					log.Debug().Err(err).Msg("WebSocket write failed")
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

// readControl consumes upstream messages until the connection fails.
func (b *Broadcaster) readControl(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	log := logger.WithComponent("output")

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed control message")
			continue
		}

		switch msg.Type {
		case "hello", "framerate":
			b.requestFramerate(msg.Framerate)
		default:
			log.Debug().Str("type", msg.Type).Msg("Unknown control message")
		}
	}
}
