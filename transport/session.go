package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 64 * 1024
	outboxSize     = 256
)

// Session is one live websocket connection: the socket, its buffered
// outbox, and the realtime handle the rest of the system tracks it by.
// The outbox channel is never closed; shutdown is signalled through
// done, so a broadcast racing a disconnect enqueues into a channel
// nobody drains instead of panicking.
type Session struct {
	ID     string
	Handle *realtime.Conn

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *slog.Logger

	closeOnce sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		Handle: realtime.NewConn(id),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, outboxSize),
		done:   make(chan struct{}),
		log:    log,
	}
}

// enqueue never blocks: a closed session or a slow consumer loses the
// frame, the hub keeps fanning out.
func (s *Session) enqueue(data []byte) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.send <- data:
	default:
		s.log.Debug("Outbox full, dropping frame", "conn", s.ID)
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// readLoop delivers inbound frames to the handler until the socket
// errors or closes. onActivity fires for every frame and for
// transport-level pongs, feeding the liveness watch.
func (s *Session) readLoop(onFrame func(Frame), onActivity func()) {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		onActivity()
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("Websocket read error", "conn", s.ID, "err", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		onActivity()

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Debug("Dropping malformed frame", "conn", s.ID, "err", err)
			continue
		}
		onFrame(frame)
	}
}

// writeLoop drains the outbox and keeps the socket-level ping/pong
// cycle going.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
