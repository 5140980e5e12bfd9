// ABOUTME: TcpMesh runs the accept loop and outbound dialer, keeping dual registries by address and node-id.
// ABOUTME: One goroutine per connection; a duplicate node-id bind replaces the older socket.
package mesh

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/voidlux/voidlux/internal/wire"
)

// AcceptTimeout bounds how long the accept loop waits per iteration before
// re-checking the shutdown signal.
const AcceptTimeout = 1 * time.Second

// DialTimeout bounds outbound connection attempts.
const DialTimeout = 5 * time.Second

// TcpMesh owns the listening socket and all peer connections.
type TcpMesh struct {
	handler Handler

	mu           sync.RWMutex
	byAddress    map[string]*Connection
	byNodeID     map[string]*Connection
	listener     net.Listener
	running      bool
	stopAccepted chan struct{}
	wg           sync.WaitGroup
}

// New creates a TcpMesh. handle is invoked for every decoded frame on any
// connection; dispatching on the frame's type code is left to handle.
func New(handle Handler) *TcpMesh {
	return &TcpMesh{
		handler:      handle,
		byAddress:    make(map[string]*Connection),
		byNodeID:     make(map[string]*Connection),
		stopAccepted: make(chan struct{}),
	}
}

// Listen binds the accept socket and starts the accept loop.
func (m *TcpMesh) Listen(ctx context.Context, bindAddr string) (port int, err error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return 0, fmt.Errorf("mesh: listen %s: %w", bindAddr, err)
	}
	m.mu.Lock()
	m.listener = ln
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.acceptLoop(ctx)

	return ln.Addr().(*net.TCPAddr).Port, nil
}

func (m *TcpMesh) acceptLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopAccepted:
			return
		default:
		}

		if tl, ok := m.listener.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(AcceptTimeout))
		}
		conn, err := m.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-m.stopAccepted:
				return
			default:
				log.Printf("component=mesh action=accept err=%q", err)
				continue
			}
		}

		peer := NewConnection(conn, conn.RemoteAddr().String())
		m.registerByAddress(peer)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			peer.ReceiveLoop(ctx, m.wrapHandler(peer))
			m.Unregister(peer)
		}()
	}
}

// Dial opens an outbound connection to addr and starts its receive loop.
func (m *TcpMesh) Dial(ctx context.Context, addr string) (*Connection, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("mesh: dial %s: %w", addr, err)
	}
	peer := NewConnection(conn, addr)
	m.registerByAddress(peer)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		peer.ReceiveLoop(ctx, m.wrapHandler(peer))
		m.Unregister(peer)
	}()
	return peer, nil
}

func (m *TcpMesh) wrapHandler(peer *Connection) Handler {
	return func(_ string, env wire.Envelope) {
		m.handler(peer.NodeID, env)
	}
}

func (m *TcpMesh) registerByAddress(c *Connection) {
	m.mu.Lock()
	m.byAddress[c.Address] = c
	m.mu.Unlock()
}

// BindNodeID registers a connection's established peer node-id, after the
// HELLO handshake. A duplicate bind replaces and closes the older connection.
func (m *TcpMesh) BindNodeID(nodeID string, c *Connection) {
	c.NodeID = nodeID

	m.mu.Lock()
	old, exists := m.byNodeID[nodeID]
	m.byNodeID[nodeID] = c
	m.mu.Unlock()

	if exists && old != c {
		_ = old.Close()
	}
}

// Unregister removes a connection from both indices. The node-id index is
// only cleared if c is still its current holder, avoiding races with
// reconnects that already replaced it.
func (m *TcpMesh) Unregister(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byAddress[c.Address]; ok && cur == c {
		delete(m.byAddress, c.Address)
	}
	if c.NodeID != "" {
		if cur, ok := m.byNodeID[c.NodeID]; ok && cur == c {
			delete(m.byNodeID, c.NodeID)
		}
	}
}

// ByNodeID looks up an established connection by peer node-id.
func (m *TcpMesh) ByNodeID(nodeID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byNodeID[nodeID]
	return c, ok
}

// Connections returns a snapshot of every established (node-id-bound) connection.
func (m *TcpMesh) Connections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(m.byNodeID))
	for _, c := range m.byNodeID {
		out = append(out, c)
	}
	return out
}

// Count returns the number of established connections, for the MAX_CONNECTIONS cap.
func (m *TcpMesh) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byNodeID)
}

// Broadcast sends a message to every established peer except excludeNodeID
// (pass "" to exclude none).
func (m *TcpMesh) Broadcast(t wire.Type, payload any, excludeNodeID string) {
	for _, c := range m.Connections() {
		if c.NodeID == excludeNodeID {
			continue
		}
		if err := c.Send(t, payload); err != nil {
			log.Printf("component=mesh action=broadcast peer=%s type=%s err=%q", c.NodeID, t.Name(), err)
		}
	}
}

// Unicast sends a message to a single peer by node-id.
func (m *TcpMesh) Unicast(nodeID string, t wire.Type, payload any) error {
	c, ok := m.ByNodeID(nodeID)
	if !ok {
		return fmt.Errorf("mesh: no connection to node %s", nodeID)
	}
	return c.Send(t, payload)
}

// Shutdown closes the listener and every connection, then waits (bounded)
// for all loops to exit.
func (m *TcpMesh) Shutdown(timeout time.Duration) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	ln := m.listener
	conns := make([]*Connection, 0, len(m.byAddress))
	for _, c := range m.byAddress {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	close(m.stopAccepted)
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("component=mesh action=shutdown msg=\"timed out waiting for loops to exit\"")
	}
}
