// ABOUTME: Connection is one peer TCP link: ordered send queue, receive loop, last-activity tracking.
// ABOUTME: One goroutine per socket for reads; writes serialize through a mutex.
package mesh

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/voidlux/voidlux/internal/wire"
)

// IdleTimeout closes a connection that has received no traffic for this long.
const IdleTimeout = 60 * time.Second

// Handler is invoked once per decoded Envelope received on any connection.
type Handler func(peerNodeID string, env wire.Envelope)

// Connection wraps one accepted or dialed TCP socket.
type Connection struct {
	conn    net.Conn
	reader  *wire.Reader
	writeMu sync.Mutex

	Address string // dial-key: the address this connection was dialed/accepted on
	NodeID  string // set once HELLO is exchanged; empty until then

	mu           sync.RWMutex
	lastActivity time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnection wraps an established net.Conn.
func NewConnection(conn net.Conn, address string) *Connection {
	return &Connection{
		conn:         conn,
		reader:       wire.NewReader(conn),
		Address:      address,
		lastActivity: time.Now(),
		closed:       make(chan struct{}),
	}
}

// Send encodes and writes a message, serializing concurrent writers.
func (c *Connection) Send(t wire.Type, payload any) error {
	frame, err := wire.Encode(t, payload)
	if err != nil {
		return fmt.Errorf("mesh: encode %s: %w", t.Name(), err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return fmt.Errorf("mesh: set write deadline: %w", err)
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("mesh: write to %s: %w", c.Address, err)
	}
	c.touch()
	return nil
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the timestamp of the last successful send or receive.
func (c *Connection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// Idle reports whether the connection has been silent longer than IdleTimeout.
func (c *Connection) Idle() bool {
	return time.Since(c.LastActivity()) > IdleTimeout
}

// ReceiveLoop blocks, decoding frames and invoking handle, until the
// connection errors, is closed, or ctx is cancelled.
func (c *Connection) ReceiveLoop(ctx context.Context, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		env, err := c.reader.Next()
		if err != nil {
			_ = c.Close()
			return
		}
		c.touch()
		handle(c.NodeID, env)
	}
}

// Close shuts down the underlying socket. Safe to call multiple times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
