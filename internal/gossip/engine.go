// ABOUTME: GossipEngine pushes local state changes to every peer and dedups+forwards inbound gossip.
// ABOUTME: Wraps each record in a Frame carrying a UUID message-id.5; witnesses the Lamport clock before applying.
package gossip

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/voidlux/voidlux/internal/lamport"
	"github.com/voidlux/voidlux/internal/mesh"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/task"
	"github.com/voidlux/voidlux/internal/wire"
)

// Frame wraps a gossiped record with a dedup id and the originating node,
// the envelope every push-gossip message carries regardless of payload type.
type Frame struct {
	MsgID  string          `json:"msg_id"`
	NodeID string          `json:"node_id"`
	Record json.RawMessage `json:"record"`
}

// TaskSink is the task queue's remote-ingest surface gossip writes through.
type TaskSink interface {
	ApplyRemote(t swarm.Task, nodeID string) error
}

// AgentSink is the agent registry's remote-ingest surface.
type AgentSink interface {
	ApplyRemoteAgent(a swarm.Agent, nodeID string) error
}

// BoardSink is the board's remote-ingest surface.
type BoardSink interface {
	ApplyRemoteMessage(m swarm.BoardMessage, nodeID string) error
}

// Engine is the push-dissemination component.
type Engine struct {
	mesh     *mesh.TcpMesh
	clock    *lamport.Clock
	selfNode string
	seen     *seenSet

	tasks  TaskSink
	agents AgentSink
	board  BoardSink
}

// New creates a GossipEngine. Sinks may be set after construction via the
// SetX methods since task/agentreg/board wiring happens during startup.
func New(m *mesh.TcpMesh, clock *lamport.Clock, selfNode string) *Engine {
	return &Engine{
		mesh:     m,
		clock:    clock,
		selfNode: selfNode,
		seen:     newSeenSet(MinCapacity),
	}
}

func (e *Engine) SetTaskSink(s TaskSink)   { e.tasks = s }
func (e *Engine) SetAgentSink(s AgentSink) { e.agents = s }
func (e *Engine) SetBoardSink(s BoardSink) { e.board = s }

// Publish implements task.Publisher: wrap, broadcast, and self-dedup so a
// later inbound echo of our own message is dropped rather than reprocessed.
func (e *Engine) Publish(out task.Outbound) error {
	raw, err := json.Marshal(out.Payload)
	if err != nil {
		return fmt.Errorf("gossip: marshal outbound %s: %w", out.Type.Name(), err)
	}
	frame := Frame{MsgID: uuid.NewString(), NodeID: e.selfNode, Record: raw}
	e.seen.MarkIfNew(frame.MsgID)
	e.mesh.Broadcast(out.Type, frame, "")
	return nil
}

// PublishBoard gossips a BoardMessage the same way Publish gossips a Task.
func (e *Engine) PublishBoard(m swarm.BoardMessage) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("gossip: marshal board message: %w", err)
	}
	frame := Frame{MsgID: uuid.NewString(), NodeID: e.selfNode, Record: raw}
	e.seen.MarkIfNew(frame.MsgID)
	e.mesh.Broadcast(wire.TypeBoardPost, frame, "")
	return nil
}

// PublishAgent gossips an Agent record (AGENT_REGISTER/HEARTBEAT/DEREGISTER share this path).
func (e *Engine) PublishAgent(t wire.Type, a swarm.Agent) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("gossip: marshal agent: %w", err)
	}
	frame := Frame{MsgID: uuid.NewString(), NodeID: e.selfNode, Record: raw}
	e.seen.MarkIfNew(frame.MsgID)
	e.mesh.Broadcast(t, frame, "")
	return nil
}

// Dispatch is the mesh.Handler entry point: decode the gossip Frame, dedup,
// witness the clock, deliver to the matching sink, and forward to every peer
// except the sender.
func (e *Engine) Dispatch(senderNodeID string, env wire.Envelope) {
	switch env.Type {
	case wire.TypeTaskCreate, wire.TypeTaskUpdate, wire.TypeTaskComplete, wire.TypeTaskFail, wire.TypeTaskCancel:
		e.handleTaskFrame(senderNodeID, env)
	case wire.TypeAgentRegister, wire.TypeAgentHeartbeat, wire.TypeAgentDeregister:
		e.handleAgentFrame(senderNodeID, env)
	case wire.TypeBoardPost:
		e.handleBoardFrame(senderNodeID, env)
	default:
		log.Printf("component=gossip action=dispatch msg=\"unhandled type\" type=%s", env.Type.Name())
	}
}

func (e *Engine) decodeFrame(env wire.Envelope) (Frame, bool) {
	var frame Frame
	if err := wire.Unmarshal(env, &frame); err != nil {
		log.Printf("component=gossip action=decode err=%q", err)
		return Frame{}, false
	}
	if !e.seen.MarkIfNew(frame.MsgID) {
		return Frame{}, false
	}
	return frame, true
}

func (e *Engine) handleTaskFrame(sender string, env wire.Envelope) {
	frame, fresh := e.decodeFrame(env)
	if !fresh {
		return
	}
	var t swarm.Task
	if err := json.Unmarshal(frame.Record, &t); err != nil {
		log.Printf("component=gossip action=unmarshal_task err=%q", err)
		return
	}
	e.clock.Witness(t.LamportTS)
	if e.tasks != nil {
		if err := e.tasks.ApplyRemote(t, frame.NodeID); err != nil {
			log.Printf("component=gossip action=apply_task task=%s err=%q", t.ID, err)
		}
	}
	e.mesh.Broadcast(env.Type, frame, sender)
}

func (e *Engine) handleAgentFrame(sender string, env wire.Envelope) {
	frame, fresh := e.decodeFrame(env)
	if !fresh {
		return
	}
	var a swarm.Agent
	if err := json.Unmarshal(frame.Record, &a); err != nil {
		log.Printf("component=gossip action=unmarshal_agent err=%q", err)
		return
	}
	e.clock.Witness(a.LamportTS)
	if e.agents != nil {
		if err := e.agents.ApplyRemoteAgent(a, frame.NodeID); err != nil {
			log.Printf("component=gossip action=apply_agent agent=%s err=%q", a.ID, err)
		}
	}
	e.mesh.Broadcast(env.Type, frame, sender)
}

func (e *Engine) handleBoardFrame(sender string, env wire.Envelope) {
	frame, fresh := e.decodeFrame(env)
	if !fresh {
		return
	}
	var m swarm.BoardMessage
	if err := json.Unmarshal(frame.Record, &m); err != nil {
		log.Printf("component=gossip action=unmarshal_board err=%q", err)
		return
	}
	e.clock.Witness(m.LamportTS)
	if e.board != nil {
		if err := e.board.ApplyRemoteMessage(m, frame.NodeID); err != nil {
			log.Printf("component=gossip action=apply_board id=%s err=%q", m.ID, err)
		}
	}
	e.mesh.Broadcast(env.Type, frame, sender)
}
