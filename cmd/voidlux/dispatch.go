// ABOUTME: node wires the single typed dispatch over the wire.Type code into every component's handler.
// ABOUTME: Single-process coroutine wiring; unknown codes are logged and dropped.
package main

import (
	"context"
	"log"
	"time"

	"github.com/voidlux/voidlux/internal/agentreg"
	"github.com/voidlux/voidlux/internal/board"
	"github.com/voidlux/voidlux/internal/election"
	"github.com/voidlux/voidlux/internal/gossip"
	"github.com/voidlux/voidlux/internal/lamport"
	"github.com/voidlux/voidlux/internal/mesh"
	"github.com/voidlux/voidlux/internal/store"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/wire"
)

// hello is the HELLO handshake payload.
type hello struct {
	NodeID   string `json:"node_id"`
	P2PPort  int    `json:"p2p_port"`
	HTTPPort int    `json:"http_port"`
	Role     string `json:"role"`
}

// node bundles every component whose handler the top-level dispatch fans out
// to. It exists purely to give dispatch a receiver; each field is otherwise
// owned and driven independently by its own Run loop.
type node struct {
	selfNode string
	httpHost string
	httpPort int
	p2pPort  int

	mesh    *mesh.TcpMesh
	pm      *mesh.PeerManager
	px      *mesh.PeerExchange
	gossip  *gossip.Engine
	ae      *gossip.AntiEntropy
	elec    *election.Election
	agents  *agentreg.Registry
	board   *board.Board
	store   *store.Store
	clock   *lamport.Clock
}

// dispatch is the mesh.Handler passed to mesh.New: a single typed switch over
// the wire.Type code rather than string keys. Codes without an arm of their
// own fall through to the default case, which logs and drops them.
func (n *node) dispatch(peerNodeID string, env wire.Envelope) {
	switch env.Type {
	case wire.TypeHello:
		n.handleHello(peerNodeID, env)
	case wire.TypePex:
		n.handlePex(env)
	case wire.TypePing:
		n.handlePing(peerNodeID, env)
	case wire.TypePong:
		n.handlePong(peerNodeID)
	case wire.TypeTaskCreate, wire.TypeTaskUpdate, wire.TypeTaskComplete, wire.TypeTaskFail, wire.TypeTaskCancel:
		n.gossip.Dispatch(peerNodeID, env)
	case wire.TypeAgentRegister, wire.TypeAgentHeartbeat, wire.TypeAgentDeregister:
		n.gossip.Dispatch(peerNodeID, env)
	case wire.TypeBoardPost:
		n.gossip.Dispatch(peerNodeID, env)
	case wire.TypeTaskSyncReq:
		n.handleSyncReq(peerNodeID, env)
	case wire.TypeTaskSyncRsp:
		n.handleSyncRsp(peerNodeID, env)
	case wire.TypeEmperorHeartbeat:
		n.handleEmperorHeartbeat(env)
	case wire.TypeElectionStart:
		n.handleElectionStart(env)
	case wire.TypeElectionVictory:
		n.handleElectionVictory(env)
	case wire.TypeSwarmNodeRegister, wire.TypeSwarmNodeStatus:
		n.handleSwarmNode(env)
	default:
		// Marketplace/DHT/offer-pay placeholders:
		// decoded fine by the codec, intentionally unwired here.
		log.Printf("component=dispatch action=unhandled type=%s", env.Type.Name())
	}
}

func (n *node) handleHello(peerNodeID string, env wire.Envelope) {
	var h hello
	if err := wire.Unmarshal(env, &h); err != nil {
		log.Printf("component=dispatch action=hello_decode err=%q", err)
		return
	}
	if c, ok := n.mesh.ByNodeID(peerNodeID); !ok || c.NodeID != h.NodeID {
		if conn, found := n.mesh.ByNodeID(peerNodeID); found {
			n.mesh.BindNodeID(h.NodeID, conn)
		}
	}
	now := time.Now().UTC()
	rec := swarm.Node{
		NodeID:        h.NodeID,
		Role:          swarm.NodeRole(h.Role),
		P2PPort:       h.P2PPort,
		HTTPPort:      h.HTTPPort,
		Status:        swarm.NodeOnline,
		LastHeartbeat: now,
		LamportTS:     n.clock.Witness(0),
		RegisteredAt:  now,
	}
	if existing, err := n.store.GetNode(h.NodeID); err == nil {
		rec.RegisteredAt = existing.RegisteredAt
		rec.Capabilities = existing.Capabilities
	}
	if err := n.store.UpsertNode(rec); err != nil {
		log.Printf("component=dispatch action=hello_upsert node=%s err=%q", h.NodeID, err)
	}
}

func (n *node) handlePex(env wire.Envelope) {
	var p mesh.PexPayload
	if err := wire.Unmarshal(env, &p); err != nil {
		log.Printf("component=dispatch action=pex_decode err=%q", err)
		return
	}
	n.px.HandleReceived(p)
}

func (n *node) handlePing(peerNodeID string, env wire.Envelope) {
	var p mesh.PingPayload
	if err := wire.Unmarshal(env, &p); err != nil {
		log.Printf("component=dispatch action=ping_decode err=%q", err)
		return
	}
	if err := n.mesh.Unicast(peerNodeID, wire.TypePong, mesh.PingPayload{NodeID: n.selfNode, Timestamp: time.Now()}); err != nil {
		log.Printf("component=dispatch action=pong err=%q", err)
	}
}

func (n *node) handlePong(peerNodeID string) {
	n.pm.OnPong(peerNodeID)
}

func (n *node) handleSyncReq(peerNodeID string, env wire.Envelope) {
	var req gossip.SyncReqPayload
	if err := wire.Unmarshal(env, &req); err != nil {
		log.Printf("component=dispatch action=syncreq_decode err=%q", err)
		return
	}
	n.ae.HandleSyncReq(peerNodeID, req)
}

func (n *node) handleSyncRsp(peerNodeID string, env wire.Envelope) {
	var rsp gossip.SyncRspPayload
	if err := wire.Unmarshal(env, &rsp); err != nil {
		log.Printf("component=dispatch action=syncrsp_decode err=%q", err)
		return
	}
	n.ae.HandleSyncRsp(peerNodeID, rsp)
}

func (n *node) handleEmperorHeartbeat(env wire.Envelope) {
	var p election.HeartbeatPayload
	if err := wire.Unmarshal(env, &p); err != nil {
		log.Printf("component=dispatch action=heartbeat_decode err=%q", err)
		return
	}
	n.elec.OnHeartbeat(p)
}

func (n *node) handleElectionStart(env wire.Envelope) {
	var p election.ElectionPayload
	if err := wire.Unmarshal(env, &p); err != nil {
		log.Printf("component=dispatch action=election_decode err=%q", err)
		return
	}
	n.elec.OnElectionStart(context.Background(), p)
}

func (n *node) handleElectionVictory(env wire.Envelope) {
	var p election.ElectionPayload
	if err := wire.Unmarshal(env, &p); err != nil {
		log.Printf("component=dispatch action=victory_decode err=%q", err)
		return
	}
	n.elec.OnElectionVictory(p)
}

// swarmNodeStatus is the SWARM_NODE_REGISTER/STATUS payload.
type swarmNodeStatus struct {
	Node swarm.Node `json:"node"`
}

func (n *node) handleSwarmNode(env wire.Envelope) {
	var p swarmNodeStatus
	if err := wire.Unmarshal(env, &p); err != nil {
		log.Printf("component=dispatch action=swarmnode_decode err=%q", err)
		return
	}
	n.clock.Witness(p.Node.LamportTS)
	if err := n.store.UpsertNode(p.Node); err != nil {
		log.Printf("component=dispatch action=swarmnode_upsert node=%s err=%q", p.Node.NodeID, err)
	}
}
