package server

import (
	"bufio"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ShutdownFunc is called when a shutdown command arrives on the control
// socket, after the relay has said bye to every context.
type ShutdownFunc func(reason string, completionTime time.Time)

// ServeControl listens for management commands on a unix socket:
//
//	stats
//	online
//	shutdown|reason|completionTime
//
// It returns when the listener fails or is closed.
func (s *Server) ServeControl(path string, onShutdown ShutdownFunc) error {
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	s.listenMu.Lock()
	s.listeners = append(s.listeners, listener)
	s.listenMu.Unlock()
	defer listener.Close()

	s.logger.Info("control socket listening", zap.String("path", path))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}

		go s.handleControlCommand(conn, onShutdown)
	}
}

func (s *Server) handleControlCommand(conn net.Conn, onShutdown ShutdownFunc) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}

	line = strings.TrimSpace(line)
	parts := strings.SplitN(line, "|", 3)

	switch parts[0] {
	case "stats":
		conn.Write([]byte("OK|" + s.GetStats() + "\n"))

	case "online":
		conn.Write([]byte("OK|" + strings.Join(s.OnlineUsers(), ";") + "\n"))

	case "shutdown":
		reason := "maintenance"
		var completionTime time.Time

		if len(parts) >= 2 && parts[1] != "" {
			reason = parts[1]
		}
		if len(parts) >= 3 && parts[2] != "" {
			completionTime, _ = time.Parse(time.RFC3339, parts[2])
		}

		conn.Write([]byte("OK|Shutting down\n"))
		conn.Close()

		s.logger.Info("shutdown requested",
			zap.String("reason", reason), zap.Time("completion", completionTime))
		s.Shutdown(reason, completionTime)
		if onShutdown != nil {
			onShutdown(reason, completionTime)
		}

	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}

// ControlCommand sends one command to a control socket and returns the reply
// without its status prefix.
func ControlCommand(path, command string) (string, error) {
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", err
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", err
	}
	status, body, _ := strings.Cut(strings.TrimSpace(line), "|")
	if status != "OK" {
		return "", errors.New(body)
	}
	return body, nil
}
