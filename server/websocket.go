package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whatschat/protocol"
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// HandleWebsocket attaches a browser context. The local user id is passed as
// the "user" query parameter; events travel as JSON text frames.
func (s *Server) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, 16),
	}
	session := &Session{
		ID:       uuid.NewString(),
		UserID:   r.URL.Query().Get("user"),
		Remote:   r.RemoteAddr,
		LastPing: time.Now(),
		ready:    true,
	}
	session.deliver = func(ev protocol.Event) error {
		payload, err := protocol.MarshalEvent(ev)
		if err != nil {
			return err
		}
		c.enqueue(payload)
		return nil
	}
	session.bye = func(reason, details string) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.close()
	}

	s.addSession(session)
	defer s.removeSession(session.ID)

	go c.writeLoop(s.config.WriteTimeout)
	c.readLoop(s, session)
	c.close()
}

func (c *wsClient) readLoop(s *Server, session *Session) {
	c.conn.SetReadLimit(64 * 1024)
	for {
		c.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		session.mu.Lock()
		session.LastPing = time.Now()
		session.mu.Unlock()

		ev, err := protocol.UnmarshalEvent(data)
		if err != nil {
			s.logger.Debug("bad websocket event", zap.String("session", session.ID), zap.Error(err))
			continue
		}
		s.broadcast(session, ev)
	}
}

func (c *wsClient) writeLoop(timeout time.Duration) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// enqueue drops the payload if the client is not keeping up.
func (c *wsClient) enqueue(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	c.conn.Close()
}
