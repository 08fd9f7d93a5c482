package bus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"whatschat/protocol"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// Client is a context connected to the relay server over a stream
// connection. It implements Bus.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	opts   options
	sub    subscription

	sendMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay at address ("tcp" or "unix" network) and
// announces userID as the local user. userID may be empty for observers.
func Dial(ctx context.Context, network, address, userID string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c, err := NewClient(conn, userID, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient performs the hello handshake on conn and starts reading events.
func NewClient(conn net.Conn, userID string, opts ...Option) (*Client, error) {
	c := &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		opts:   buildOptions(opts),
		done:   make(chan struct{}),
	}

	if err := c.handshake(userID); err != nil {
		return nil, err
	}

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *Client) handshake(userID string) error {
	if err := c.send(protocol.FormatPacket(protocol.TypeHello, protocol.ChannelName, userID)); err != nil {
		return fmt.Errorf("relay handshake: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("relay handshake: %w", err)
	}
	pkt, err := protocol.ParsePacket(line)
	if err != nil {
		return fmt.Errorf("relay handshake: %w", err)
	}

	switch {
	case pkt.Type == protocol.TypeOk && pkt.Field(0) == protocol.TypeHello:
		return nil
	case pkt.Type == protocol.TypeFail:
		return fmt.Errorf("relay handshake: %s", pkt.Field(len(pkt.Fields)-1))
	default:
		return fmt.Errorf("relay handshake: unexpected %q", strings.TrimSpace(line))
	}
}

func (c *Client) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := protocol.FormatEvent(ev)
	if err != nil {
		return err
	}
	return c.send(line)
}

func (c *Client) Subscribe(h Handler) func() {
	return c.sub.set(h)
}

// Done is closed when the connection to the relay ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.Write([]byte(protocol.FormatPacket(protocol.TypeBye)))
		c.sendMu.Unlock()

		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) send(line string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.opts.logger.Debug("bus: relay read ended", zap.Error(err))
			}
			return
		}

		pkt, err := protocol.ParsePacket(line)
		if err != nil {
			c.opts.logger.Debug("bus: bad packet from relay", zap.String("line", line))
			continue
		}

		switch pkt.Type {
		case protocol.TypePing:
			c.send(protocol.FormatPacket(protocol.TypePong))
			continue
		case protocol.TypeBye:
			c.opts.logger.Info("bus: relay said bye", zap.Strings("fields", pkt.Fields))
			return
		}

		ev, ok, err := protocol.PacketEvent(pkt)
		if err != nil {
			c.opts.logger.Debug("bus: malformed event from relay", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if h := c.sub.current(); h != nil {
			h(ev)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.send(protocol.FormatPacket(protocol.TypePing)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown closes the connection without saying bye; the relay is gone.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
