// ABOUTME: AntiEntropy periodically pulls records newer than the local max from a random peer.
// ABOUTME: Heals lost pushes and brings new joiners up to date.5.
package gossip

import (
	"log"
	"math/rand"
	"time"

	"github.com/voidlux/voidlux/internal/mesh"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/wire"
)

// Interval is the anti-entropy pull period.
const Interval = 60 * time.Second

// TaskStore is the subset of storage AntiEntropy needs.
type TaskStore interface {
	MaxTaskLamportTS() (uint64, error)
	TasksSince(since uint64) ([]swarm.Task, error)
}

// SyncReqPayload is the SYNC_REQ wire payload.
type SyncReqPayload struct {
	SinceLamportTS uint64 `json:"since_lamport_ts"`
}

// SyncRspPayload is the SYNC_RSP wire payload.
type SyncRspPayload struct {
	SinceLamportTS uint64       `json:"since_lamport_ts"`
	Tasks          []swarm.Task `json:"tasks"`
}

// AntiEntropy drives the periodic pull-sync loop.
type AntiEntropy struct {
	mesh   *mesh.TcpMesh
	store  TaskStore
	engine *Engine
}

// NewAntiEntropy creates an AntiEntropy loop bound to a mesh, store, and the
// gossip engine's TaskSink for applying synced records.
func NewAntiEntropy(m *mesh.TcpMesh, st TaskStore, engine *Engine) *AntiEntropy {
	return &AntiEntropy{mesh: m, store: st, engine: engine}
}

// Run fires a pull-sync round every Interval until stop is closed.
func (ae *AntiEntropy) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ae.pullRound()
		}
	}
}

func (ae *AntiEntropy) pullRound() {
	peers := ae.mesh.Connections()
	if len(peers) == 0 {
		return
	}
	peer := peers[rand.Intn(len(peers))]

	since, err := ae.store.MaxTaskLamportTS()
	if err != nil {
		log.Printf("component=antientropy action=max_lamport err=%q", err)
		return
	}
	if err := peer.Send(wire.TypeTaskSyncReq, SyncReqPayload{SinceLamportTS: since}); err != nil {
		log.Printf("component=antientropy action=send_req peer=%s err=%q", peer.NodeID, err)
	}
}

// HandleSyncReq answers a peer's SYNC_REQ with every task newer than 'since'.
func (ae *AntiEntropy) HandleSyncReq(senderNodeID string, req SyncReqPayload) {
	tasks, err := ae.store.TasksSince(req.SinceLamportTS)
	if err != nil {
		log.Printf("component=antientropy action=tasks_since err=%q", err)
		return
	}
	if err := ae.mesh.Unicast(senderNodeID, wire.TypeTaskSyncRsp, SyncRspPayload{
		SinceLamportTS: req.SinceLamportTS,
		Tasks:          tasks,
	}); err != nil {
		log.Printf("component=antientropy action=send_rsp peer=%s err=%q", senderNodeID, err)
	}
}

// HandleSyncRsp applies every returned task through the same ingest path as
// push gossip (dedup is moot here since these are pulled, not re-gossiped
// message frames; last-writer-wins still governs application).
func (ae *AntiEntropy) HandleSyncRsp(senderNodeID string, rsp SyncRspPayload) {
	if ae.engine.tasks == nil {
		return
	}
	for _, t := range rsp.Tasks {
		ae.engine.clock.Witness(t.LamportTS)
		if err := ae.engine.tasks.ApplyRemote(t, senderNodeID); err != nil {
			log.Printf("component=antientropy action=apply task=%s err=%q", t.ID, err)
		}
	}
}
