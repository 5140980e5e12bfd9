// ABOUTME: LeaderElection implements the Bully algorithm promoting the lexicographically smallest node-id to emperor.
// ABOUTME: Tolerates brief split-brain.6; ClaimResolver absorbs any duplicate planning work.
package election

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/voidlux/voidlux/internal/mesh"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/wire"
)

// HeartbeatInterval is how often the current emperor broadcasts its heartbeat.
const HeartbeatInterval = 10 * time.Second

// StalenessTimeout is how long a worker waits without a heartbeat before starting an election.
const StalenessTimeout = 30 * time.Second

// QuorumTimeout bounds how long a candidate waits for a smaller node-id to yield.
const QuorumTimeout = 5 * time.Second

// HeartbeatPayload is the EMPEROR_HEARTBEAT wire payload.
type HeartbeatPayload struct {
	NodeID    string `json:"node_id"`
	LamportTS uint64 `json:"lamport_ts"`
}

// ElectionPayload is the ELECTION_START / ELECTION_VICTORY wire payload.
type ElectionPayload struct {
	NodeID    string `json:"node_id"`
	LamportTS uint64 `json:"lamport_ts"`
}

// RoleSink persists the locally known emperor role, implemented by internal/store.
type RoleSink interface {
	SetNodeRole(nodeID string, role swarm.NodeRole) error
}

// Clock is the narrow lamport.Clock surface Election needs.
type Clock interface {
	Tick() uint64
}

// Election runs the Bully algorithm for a single node.
type Election struct {
	mesh     *mesh.TcpMesh
	roles    RoleSink
	clock    Clock
	selfNode string

	mu              sync.Mutex
	emperor         string // "" if unknown
	lastHeartbeat   time.Time
	electing        bool
	yieldedThisRun  bool
	cancelElection  context.CancelFunc
}

// New creates an Election for this node.
func New(m *mesh.TcpMesh, roles RoleSink, clock Clock, selfNode string) *Election {
	return &Election{mesh: m, roles: roles, clock: clock, selfNode: selfNode}
}

// Emperor returns the currently known emperor node-id, or "" if none.
func (e *Election) Emperor() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emperor
}

// IsEmperor reports whether this node currently believes itself to be emperor.
func (e *Election) IsEmperor() bool {
	return e.Emperor() == e.selfNode
}

// Run drives the heartbeat/staleness supervisory loop until ctx is cancelled.
func (e *Election) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	checkTicker := time.NewTicker(5 * time.Second)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.IsEmperor() {
				e.broadcastHeartbeat()
			}
		case <-checkTicker.C:
			e.checkStaleness(ctx)
		}
	}
}

func (e *Election) broadcastHeartbeat() {
	ts := e.clock.Tick()
	e.mesh.Broadcast(wire.TypeEmperorHeartbeat, HeartbeatPayload{NodeID: e.selfNode, LamportTS: ts}, "")
}

func (e *Election) checkStaleness(ctx context.Context) {
	e.mu.Lock()
	emperor := e.emperor
	last := e.lastHeartbeat
	electing := e.electing
	e.mu.Unlock()

	if emperor == e.selfNode || electing {
		return
	}
	if emperor != "" && time.Since(last) < StalenessTimeout {
		return
	}
	e.startElection(ctx)
}

// OnHeartbeat records a fresh EMPEROR_HEARTBEAT from a peer.
func (e *Election) OnHeartbeat(p HeartbeatPayload) {
	e.mu.Lock()
	e.emperor = p.NodeID
	e.lastHeartbeat = time.Now()
	e.mu.Unlock()
}

// startElection runs the Bully candidacy: broadcast ELECTION_START, wait
// QuorumTimeout for a smaller node-id to answer, then declare victory if none did.
func (e *Election) startElection(ctx context.Context) {
	e.mu.Lock()
	if e.electing {
		e.mu.Unlock()
		return
	}
	e.electing = true
	e.yieldedThisRun = false
	electionCtx, cancel := context.WithCancel(ctx)
	e.cancelElection = cancel
	e.mu.Unlock()

	ts := e.clock.Tick()
	log.Printf("component=election action=start node=%s lamport_ts=%d", e.selfNode, ts)
	e.mesh.Broadcast(wire.TypeElectionStart, ElectionPayload{NodeID: e.selfNode, LamportTS: ts}, "")

	go func() {
		select {
		case <-electionCtx.Done():
			return
		case <-time.After(QuorumTimeout):
		}

		e.mu.Lock()
		yielded := e.yieldedThisRun
		e.electing = false
		e.mu.Unlock()

		if yielded {
			return
		}
		e.declareVictory()
	}()
}

func (e *Election) declareVictory() {
	ts := e.clock.Tick()
	e.mu.Lock()
	e.emperor = e.selfNode
	e.lastHeartbeat = time.Now()
	e.mu.Unlock()

	if err := e.roles.SetNodeRole(e.selfNode, swarm.RoleEmperor); err != nil {
		log.Printf("component=election action=set_role err=%q", err)
	}
	log.Printf("component=election action=victory node=%s lamport_ts=%d", e.selfNode, ts)
	e.mesh.Broadcast(wire.TypeElectionVictory, ElectionPayload{NodeID: e.selfNode, LamportTS: ts}, "")
}

// OnElectionStart answers a candidate: if our node-id is lexicographically
// smaller, broadcast our own ELECTION_START (the candidate yields); otherwise
// this node yields its own run. If we are the candidate ourselves receiving
// an echo, no-op.
func (e *Election) OnElectionStart(ctx context.Context, p ElectionPayload) {
	if p.NodeID == e.selfNode {
		return
	}

	if e.selfNode < p.NodeID {
		ts := e.clock.Tick()
		e.mesh.Broadcast(wire.TypeElectionStart, ElectionPayload{NodeID: e.selfNode, LamportTS: ts}, "")

		e.mu.Lock()
		alreadyElecting := e.electing
		e.mu.Unlock()
		if !alreadyElecting {
			e.startElection(ctx)
		}
		return
	}

	// Peer's node-id is smaller: yield by marking this run as answered.
	e.mu.Lock()
	e.yieldedThisRun = true
	e.mu.Unlock()
}

// OnElectionVictory terminates any ongoing local election and records the new emperor.
func (e *Election) OnElectionVictory(p ElectionPayload) {
	e.mu.Lock()
	e.emperor = p.NodeID
	e.lastHeartbeat = time.Now()
	if e.electing && e.cancelElection != nil {
		e.cancelElection()
	}
	e.electing = false
	e.mu.Unlock()

	if p.NodeID == e.selfNode {
		return
	}
	if err := e.roles.SetNodeRole(p.NodeID, swarm.RoleEmperor); err != nil {
		log.Printf("component=election action=record_emperor err=%q", err)
	}
}
