// ABOUTME: PeerManager owns the known-address set, reconnect loop, and PING/PONG keepalive.
// ABOUTME: Enforces MAX_CONNECTIONS and the 30s re-dial floor per known address.9.
package mesh

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/voidlux/voidlux/internal/wire"
)

// PingInterval is how often PING is sent on every connection.
const PingInterval = 15 * time.Second

// ReconnectInterval bounds how often the reconnect loop scans known addresses.
const ReconnectInterval = 10 * time.Second

// RedialFloor is the minimum time between dial attempts to the same address.
const RedialFloor = 30 * time.Second

// MaxMissedPongs closes a connection after this many consecutive missed PONGs.
const MaxMissedPongs = 3

// MaxConnections caps the number of simultaneously established connections.
const MaxConnections = 20

// PeerManager maintains known peer addresses and drives reconnection + keepalive.
type PeerManager struct {
	mesh     *TcpMesh
	selfNode string

	mu          sync.Mutex
	known       map[string]struct{} // address -> member
	lastDialed  map[string]time.Time
	missedPongs map[string]int
}

// NewPeerManager creates a PeerManager bound to a TcpMesh.
func NewPeerManager(m *TcpMesh, selfNode string, seeds []string) *PeerManager {
	pm := &PeerManager{
		mesh:        m,
		selfNode:    selfNode,
		known:       make(map[string]struct{}),
		lastDialed:  make(map[string]time.Time),
		missedPongs: make(map[string]int),
	}
	for _, s := range seeds {
		pm.known[s] = struct{}{}
	}
	return pm
}

// AddKnown registers an address as a dial candidate (from UDP discovery or PEX).
func (pm *PeerManager) AddKnown(addr string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.known[addr] = struct{}{}
}

// KnownAddresses returns a snapshot of every known address.
func (pm *PeerManager) KnownAddresses() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]string, 0, len(pm.known))
	for a := range pm.known {
		out = append(out, a)
	}
	return out
}

// Run drives the reconnect loop and keepalive ticker until ctx is cancelled.
func (pm *PeerManager) Run(ctx context.Context) {
	reconnect := time.NewTicker(ReconnectInterval)
	defer reconnect.Stop()
	ping := time.NewTicker(PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconnect.C:
			pm.reconnectPass(ctx)
		case <-ping.C:
			pm.pingPass()
		}
	}
}

func (pm *PeerManager) reconnectPass(ctx context.Context) {
	if pm.mesh.Count() >= MaxConnections {
		return
	}
	now := time.Now()
	for _, addr := range pm.KnownAddresses() {
		if pm.mesh.Count() >= MaxConnections {
			return
		}
		if _, established := pm.connectedTo(addr); established {
			continue
		}

		pm.mu.Lock()
		last, tried := pm.lastDialed[addr]
		if tried && now.Sub(last) < RedialFloor {
			pm.mu.Unlock()
			continue
		}
		pm.lastDialed[addr] = now
		pm.mu.Unlock()

		if _, err := pm.mesh.Dial(ctx, addr); err != nil {
			log.Printf("component=peermanager action=dial addr=%s err=%q", addr, err)
		}
	}
}

func (pm *PeerManager) connectedTo(addr string) (*Connection, bool) {
	for _, c := range pm.mesh.Connections() {
		if c.Address == addr {
			return c, true
		}
	}
	return nil, false
}

func (pm *PeerManager) pingPass() {
	now := time.Now()
	for _, c := range pm.mesh.Connections() {
		if now.Sub(c.LastActivity()) < PingInterval {
			continue // traffic within the interval counts as alive
		}

		pm.mu.Lock()
		pm.missedPongs[c.NodeID]++
		missed := pm.missedPongs[c.NodeID]
		pm.mu.Unlock()

		if missed >= MaxMissedPongs {
			log.Printf("component=peermanager action=missed_pongs peer=%s count=%d", c.NodeID, missed)
			_ = c.Close()
			continue
		}

		if err := c.Send(wire.TypePing, PingPayload{NodeID: pm.selfNode, Timestamp: now}); err != nil {
			log.Printf("component=peermanager action=ping peer=%s err=%q", c.NodeID, err)
		}
	}
}

// OnPong resets the missed-pong counter for a peer.
func (pm *PeerManager) OnPong(nodeID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.missedPongs[nodeID] = 0
}

// PingPayload is the PING/PONG wire payload.
type PingPayload struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}
