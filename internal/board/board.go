// ABOUTME: Board is the agent-to-agent message board; posts carry lamport_ts and node_id like Task.
// ABOUTME: Gossiped push-only; no anti-entropy pull path of its own.
package board

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/voidlux/voidlux/internal/lamport"
	"github.com/voidlux/voidlux/internal/store"
	"github.com/voidlux/voidlux/internal/swarm"
)

// Publisher gossips a BoardMessage. Implemented by internal/gossip.Engine.
type Publisher interface {
	PublishBoard(m swarm.BoardMessage) error
}

type noopPublisher struct{}

func (noopPublisher) PublishBoard(swarm.BoardMessage) error { return nil }

// Board is the message-board component.
type Board struct {
	store     *store.Store
	clock     *lamport.Clock
	publisher Publisher
	selfNode  string
}

// New creates a Board bound to local storage and the gossip publisher.
func New(st *store.Store, clock *lamport.Clock, pub Publisher, selfNode string) *Board {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Board{store: st, clock: clock, publisher: pub, selfNode: selfNode}
}

// Post creates a new board message and gossips it to the mesh.
func (b *Board) Post(channel, agentID, taskID, body string) (swarm.BoardMessage, error) {
	m := swarm.BoardMessage{
		ID:        uuid.NewString(),
		NodeID:    b.selfNode,
		AgentID:   agentID,
		TaskID:    taskID,
		Channel:   channel,
		Body:      body,
		LamportTS: b.clock.Tick(),
		CreatedAt: time.Now().UTC(),
	}
	if err := b.store.UpsertBoardMessage(m); err != nil {
		return swarm.BoardMessage{}, err
	}
	if err := b.publisher.PublishBoard(m); err != nil {
		log.Printf("component=board action=publish err=%q", err)
	}
	return m, nil
}

// List returns every message on a channel, newest first.
func (b *Board) List(channel string) ([]swarm.BoardMessage, error) {
	return b.store.ListBoardMessages(channel)
}

// ApplyRemoteMessage ingests a gossiped BoardMessage from a peer. Board
// messages are append-only (distinct ids per post), so any unseen id is
// simply persisted; the id-based dedup at the gossip layer already filters
// replays.
func (b *Board) ApplyRemoteMessage(m swarm.BoardMessage, _ string) error {
	b.clock.Witness(m.LamportTS)
	return b.store.UpsertBoardMessage(m)
}
