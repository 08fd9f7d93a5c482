package server

import (
	"net"

	"go.uber.org/zap"

	"whatschat/protocol"
)

// handleHello registers the context. Format: hello|channel|userID
func (s *Server) handleHello(session *Session, pkt *protocol.Packet, conn net.Conn) {
	if session.ready {
		s.sendOK(session, conn, protocol.TypeHello)
		return
	}

	if pkt.Field(0) != s.config.Channel {
		s.sendError(session, conn, protocol.TypeHello, "Unknown channel")
		return
	}

	session.UserID = pkt.Field(1)
	session.ready = true
	s.addSession(session)
	s.sendOK(session, conn, protocol.TypeHello)

	s.logger.Debug("context joined",
		zap.String("session", session.ID), zap.String("user", session.UserID))
}

func (s *Server) handleEvent(session *Session, pkt *protocol.Packet, conn net.Conn) {
	if !session.ready {
		s.sendError(session, conn, pkt.Type, "Not connected")
		return
	}

	ev, _, err := protocol.PacketEvent(pkt)
	if err != nil {
		s.sendError(session, conn, pkt.Type, "Invalid event")
		return
	}

	s.broadcast(session, ev)
}

func (s *Server) handleBye(session *Session, conn net.Conn) {
	s.sendPacket(session, conn, protocol.TypeBye)

	if session.ready {
		s.removeSession(session.ID)
		s.logger.Debug("context left (bye)",
			zap.String("session", session.ID), zap.String("user", session.UserID))
	}
}

// broadcast delivers ev to every session except from. Typing events only go
// to sessions of the receiving user and to anonymous observers.
func (s *Server) broadcast(from *Session, ev protocol.Event) {
	for _, sess := range s.snapshotSessions() {
		if sess == from || !wants(sess, ev) {
			continue
		}
		if err := sess.deliver(ev); err != nil {
			s.logger.Debug("event dropped",
				zap.String("session", sess.ID), zap.String("kind", string(ev.Kind())), zap.Error(err))
		}
	}
}

func wants(sess *Session, ev protocol.Event) bool {
	switch e := ev.(type) {
	case protocol.Typing:
		return sess.UserID == "" || sess.UserID == e.ReceiverID
	default:
		return true
	}
}
