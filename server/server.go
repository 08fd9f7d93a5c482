// Package server relays realtime events between contexts that do not share
// a process. It keeps no chat state: contexts read and write the shared
// store themselves and only use the relay to tell each other about it.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whatschat/protocol"
)

type Server struct {
	config   *ServerConfig
	logger   *zap.Logger
	sessions map[string]*Session
	mu       sync.RWMutex
	upgrader websocket.Upgrader

	listenMu  sync.Mutex
	listeners []net.Listener
	httpSrv   *http.Server
}

type ServerConfig struct {
	Network      string // "tcp" or "unix"
	Address      string
	WSAddress    string // empty disables the websocket endpoint
	WSPath       string
	Channel      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Session is one connected context.
type Session struct {
	ID       string
	UserID   string
	Remote   string
	LastPing time.Time

	ready bool
	// deliver writes one event in the session's wire format.
	deliver func(protocol.Event) error
	// bye closes the session after telling the peer why.
	bye func(reason, details string)
	mu  sync.Mutex
}

func New(config *ServerConfig, logger *zap.Logger) *Server {
	if config.Network == "" {
		config.Network = "tcp"
	}
	if config.Channel == "" {
		config.Channel = protocol.ChannelName
	}
	if config.WSPath == "" {
		config.WSPath = "/" + config.Channel
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 120 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		config:   config,
		logger:   logger,
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start listens on the configured stream address (and websocket address, if
// set) and serves until the listeners are closed.
func (s *Server) Start() error {
	listener, err := net.Listen(s.config.Network, s.config.Address)
	if err != nil {
		return err
	}

	if s.config.WSAddress != "" {
		mux := http.NewServeMux()
		mux.HandleFunc(s.config.WSPath, s.HandleWebsocket)
		httpSrv := &http.Server{Addr: s.config.WSAddress, Handler: mux}

		s.listenMu.Lock()
		s.httpSrv = httpSrv
		s.listenMu.Unlock()

		go func() {
			s.logger.Info("websocket relay listening",
				zap.String("addr", s.config.WSAddress), zap.String("path", s.config.WSPath))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("websocket relay stopped", zap.Error(err))
			}
		}()
	}

	s.logger.Info("relay started",
		zap.String("network", s.config.Network), zap.String("addr", listener.Addr().String()))
	return s.Serve(listener)
}

// Serve accepts stream connections on listener until it is closed.
func (s *Server) Serve(listener net.Listener) error {
	s.listenMu.Lock()
	s.listeners = append(s.listeners, listener)
	s.listenMu.Unlock()
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("error accepting connection", zap.Error(err))
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	log := s.logger.With(zap.String("remote", remoteAddr))
	log.Debug("new context connected")

	session := &Session{
		ID:       uuid.NewString(),
		Remote:   remoteAddr,
		LastPing: time.Now(),
	}
	session.deliver = func(ev protocol.Event) error {
		line, err := protocol.FormatEvent(ev)
		if err != nil {
			return err
		}
		return s.writeLine(session, conn, line)
	}
	session.bye = func(reason, details string) {
		s.sendBye(session, conn, reason, details)
		conn.Close()
	}

	reader := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Info("context timed out", zap.String("user", session.UserID))
				s.sendBye(session, conn, "timeout", "")
			} else if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Warn("error reading from context", zap.Error(err))
			}
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		pkt, err := protocol.ParsePacket(line)
		if err != nil {
			log.Debug("parse error", zap.Error(err), zap.String("line", line))
			s.sendError(session, conn, "", "Invalid packet format")
			continue
		}

		s.handlePacket(session, pkt, conn)

		if pkt.Type == protocol.TypeBye {
			return
		}
	}

	s.removeSession(session.ID)
	log.Debug("context disconnected", zap.String("user", session.UserID))
}

func (s *Server) handlePacket(session *Session, pkt *protocol.Packet, conn net.Conn) {
	session.mu.Lock()
	session.LastPing = time.Now()
	session.mu.Unlock()

	switch pkt.Type {
	case protocol.TypePing:
		s.sendPacket(session, conn, protocol.TypePong)
	case protocol.TypeHello:
		s.handleHello(session, pkt, conn)
	case protocol.TypeUpdate, protocol.TypeTyping:
		s.handleEvent(session, pkt, conn)
	case protocol.TypeBye:
		s.handleBye(session, conn)
	default:
		s.sendError(session, conn, "", "Unknown packet type")
	}
}

func (s *Server) writeLine(session *Session, conn net.Conn, line string) error {
	session.mu.Lock()
	defer session.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	_, err := conn.Write([]byte(line))
	return err
}

func (s *Server) sendPacket(session *Session, conn net.Conn, pktType string, fields ...string) {
	if err := s.writeLine(session, conn, protocol.FormatPacket(pktType, fields...)); err != nil {
		s.logger.Debug("error writing to connection", zap.Error(err))
	}
}

func (s *Server) sendOK(session *Session, conn net.Conn, operation string) {
	s.sendPacket(session, conn, protocol.TypeOk, operation)
}

func (s *Server) sendError(session *Session, conn net.Conn, operation, description string) {
	if operation != "" {
		s.sendPacket(session, conn, protocol.TypeFail, operation, description)
	} else {
		s.sendPacket(session, conn, protocol.TypeFail, description)
	}
}

func (s *Server) sendBye(session *Session, conn net.Conn, reason, details string) {
	switch {
	case details != "":
		s.sendPacket(session, conn, protocol.TypeBye, reason, details)
	case reason != "":
		s.sendPacket(session, conn, protocol.TypeBye, reason)
	default:
		s.sendPacket(session, conn, protocol.TypeBye)
	}
}

func (s *Server) addSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) snapshotSessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// GetStats returns server statistics as a formatted string
func (s *Server) GetStats() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	activeConnections := len(s.sessions)
	var users []string
	for _, sess := range s.sessions {
		if sess.UserID != "" {
			users = append(users, sess.UserID)
		}
	}

	return "connections=" + strconv.Itoa(activeConnections) + ",users=" + strings.Join(users, ";")
}

// OnlineUsers returns the sorted ids of users with at least one context
// that said hello. Anonymous observers are not counted.
func (s *Server) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	users := []string{}
	for _, sess := range s.sessions {
		if sess.UserID != "" && !seen[sess.UserID] {
			seen[sess.UserID] = true
			users = append(users, sess.UserID)
		}
	}
	sort.Strings(users)
	return users
}

// Shutdown says bye to every context and stops accepting connections.
// reason may be "maintenance" or "restart"; completionTime, if set, tells
// contexts when to come back.
func (s *Server) Shutdown(reason string, completionTime time.Time) {
	s.listenMu.Lock()
	for _, l := range s.listeners {
		l.Close()
	}
	httpSrv := s.httpSrv
	s.listenMu.Unlock()

	if httpSrv != nil {
		httpSrv.Close()
	}

	var details string
	if !completionTime.IsZero() {
		details = completionTime.UTC().Format(time.RFC3339)
	}

	for _, sess := range s.snapshotSessions() {
		sess.bye(reason, details)
		s.removeSession(sess.ID)
	}
}
