package broadcast

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session is one connected WebSocket client.
type Session struct {
	ID    string
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	admin atomic.Bool

	// set once a tallies broadcast has been queued
	broadcasted atomic.Bool
}

func newSession(h *Hub, conn *websocket.Conn) *Session {
	return &Session{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

func (s *Session) IsAdmin() bool { return s.admin.Load() }

// writePump is the only goroutine writing to conn.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.hub.drop(s)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.drop(s)
				return
			}
		}
	}
}

func (s *Session) readPump() {
	defer func() {
		s.hub.drop(s)
		log.Printf("👋 User disconnected: %s", s.ID)
	}()

	pongWait := s.hub.opts.PongWait
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.hub.handle(s, data)
	}
}
