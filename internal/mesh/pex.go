// ABOUTME: PeerExchange periodically gossips the bounded union of known peer addresses.
package mesh

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/voidlux/voidlux/internal/wire"
)

// PexInterval is how often this node shares its known-address set.
const PexInterval = 30 * time.Second

// MaxPexAddresses bounds how many addresses are shared per PEX round.
const MaxPexAddresses = 50

// PexPayload is the wire payload for the PEX message.
type PexPayload struct {
	Peers []string `json:"peers"`
}

// PeerExchange drives periodic PEX broadcasts and folds received addresses
// back into the PeerManager's known set.
type PeerExchange struct {
	mesh *TcpMesh
	pm   *PeerManager
}

// NewPeerExchange creates a PeerExchange bound to a mesh and peer manager.
func NewPeerExchange(m *TcpMesh, pm *PeerManager) *PeerExchange {
	return &PeerExchange{mesh: m, pm: pm}
}

// Run broadcasts this node's known addresses on a timer until ctx is cancelled.
func (px *PeerExchange) Run(ctx context.Context) {
	ticker := time.NewTicker(PexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			px.broadcast()
		}
	}
}

func (px *PeerExchange) broadcast() {
	addrs := px.pm.KnownAddresses()
	sort.Strings(addrs)
	if len(addrs) > MaxPexAddresses {
		addrs = addrs[:MaxPexAddresses]
	}
	px.mesh.Broadcast(wire.TypePex, PexPayload{Peers: addrs}, "")
}

// HandleReceived folds a received PEX payload's addresses into known peers,
// logging nothing unusual — PEX churn is expected and non-fatal.
func (px *PeerExchange) HandleReceived(payload PexPayload) {
	for _, addr := range payload.Peers {
		px.pm.AddKnown(addr)
	}
	log.Printf("component=pex action=receive count=%d", len(payload.Peers))
}
