// ABOUTME: AgentRegistry owns agent lifecycle: registration, heartbeat gossip, and offline detection.
// ABOUTME: Agents are local-write, gossip-replicated, following the same actor-over-store shape as internal/task.Queue.
package agentreg

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/voidlux/voidlux/internal/lamport"
	"github.com/voidlux/voidlux/internal/store"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/wire"
)

// OfflineTimeout marks an agent offline after this long without a heartbeat.
const OfflineTimeout = 45 * time.Second

// Publisher gossips an agent record. Implemented by internal/gossip.Engine.
type Publisher interface {
	PublishAgent(t wire.Type, a swarm.Agent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishAgent(wire.Type, swarm.Agent) error { return nil }

// Registry is the AgentRegistry component.
type Registry struct {
	store     *store.Store
	clock     *lamport.Clock
	publisher Publisher
	selfNode  string
}

// New creates a Registry bound to local storage and the node's short id.
func New(st *store.Store, clock *lamport.Clock, pub Publisher, selfNode string) *Registry {
	if pub == nil {
		pub = noopPublisher{}
	}
	return &Registry{store: st, clock: clock, publisher: pub, selfNode: selfNode}
}

// NamePrefix returns the 6-char node-id slice every local agent name is
// prefixed with for swarm-wide uniqueness.
func (r *Registry) NamePrefix() string {
	if len(r.selfNode) < 6 {
		return r.selfNode
	}
	return r.selfNode[:6]
}

// Register creates a new local agent in 'starting' status and gossips it.
func (r *Registry) Register(name, tool, model, projectPath string, capabilities []string, maxConcurrent int) (swarm.Agent, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	now := time.Now().UTC()
	a := swarm.Agent{
		ID:                 uuid.NewString(),
		NodeID:             r.selfNode,
		Name:               fmt.Sprintf("%s-%s", r.NamePrefix(), name),
		Tool:               tool,
		Model:              model,
		Capabilities:       capabilities,
		Status:             swarm.AgentStarting,
		ProjectPath:        projectPath,
		MaxConcurrentTasks: maxConcurrent,
		LastHeartbeat:      now,
		LamportTS:          r.clock.Tick(),
	}
	if err := r.store.UpsertAgent(a); err != nil {
		return swarm.Agent{}, err
	}
	r.publish(wire.TypeAgentRegister, a)
	return a, nil
}

// Heartbeat refreshes an agent's liveness timestamp and, if status changed,
// gossips immediately rather than waiting for the next heartbeat tick.
func (r *Registry) Heartbeat(agentID string, status swarm.AgentStatus) error {
	a, err := r.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	changed := a.Status != status
	a.Status = status
	a.LastHeartbeat = now
	a.LamportTS = r.clock.Tick()
	if err := r.store.UpsertAgent(a); err != nil {
		return err
	}
	if changed {
		r.publish(wire.TypeAgentHeartbeat, a)
	}
	return nil
}

// SetStatus writes a new status without bumping the heartbeat timestamp
// semantics beyond what store.SetAgentStatus already does, and gossips it.
func (r *Registry) SetStatus(agentID string, status swarm.AgentStatus, clearTask bool) error {
	now := time.Now().UTC()
	if err := r.store.SetAgentStatus(agentID, status, clearTask, now); err != nil {
		return err
	}
	a, err := r.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	a.LamportTS = r.clock.Tick()
	if err := r.store.UpsertAgent(a); err != nil {
		return err
	}
	r.publish(wire.TypeAgentHeartbeat, a)
	return nil
}

// AssignTask records which task a busy agent is working, gossiping the change.
func (r *Registry) AssignTask(agentID, taskID string) error {
	a, err := r.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	a.CurrentTaskID = &taskID
	a.Status = swarm.AgentBusy
	a.LastHeartbeat = time.Now().UTC()
	a.LamportTS = r.clock.Tick()
	if err := r.store.UpsertAgent(a); err != nil {
		return err
	}
	r.publish(wire.TypeAgentHeartbeat, a)
	return nil
}

// Deregister marks an agent offline and gossips the deregistration.
func (r *Registry) Deregister(agentID string) error {
	if err := r.store.SetAgentStatus(agentID, swarm.AgentOffline, true, time.Now().UTC()); err != nil {
		return err
	}
	a, err := r.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	a.LamportTS = r.clock.Tick()
	r.publish(wire.TypeAgentDeregister, a)
	return nil
}

// SweepOffline marks every agent whose heartbeat is older than OfflineTimeout
// as offline. Returns the agents that were freshly marked, so callers (AgentMonitor)
// can requeue any task those agents held.
func (r *Registry) SweepOffline() ([]swarm.Agent, error) {
	cutoff := time.Now().UTC().Add(-OfflineTimeout)
	stale, err := r.store.StaleAgents(cutoff)
	if err != nil {
		return nil, err
	}
	var newlyOffline []swarm.Agent
	for _, a := range stale {
		if err := r.SetStatus(a.ID, swarm.AgentOffline, false); err != nil {
			log.Printf("component=agentreg action=sweep_offline agent=%s err=%q", a.ID, err)
			continue
		}
		newlyOffline = append(newlyOffline, a)
	}
	return newlyOffline, nil
}

// Get reads a single agent by id.
func (r *Registry) Get(id string) (swarm.Agent, error) { return r.store.GetAgent(id) }

// List reads every known agent.
func (r *Registry) List() ([]swarm.Agent, error) { return r.store.ListAgents() }

// ApplyRemoteAgent ingests a gossiped Agent record from a peer, applying
// last-writer-wins on (lamport_ts, node_id) exactly as TaskQueue.ApplyRemote does.
func (r *Registry) ApplyRemoteAgent(remote swarm.Agent, remoteNodeID string) error {
	r.clock.Witness(remote.LamportTS)

	existing, err := r.store.GetAgent(remote.ID)
	if err == swarm.ErrAgentNotFound {
		return r.store.UpsertAgent(remote)
	}
	if err != nil {
		return err
	}
	if !lastWriterWins(remote.LamportTS, remoteNodeID, existing.LamportTS, r.selfNode) {
		return nil
	}
	return r.store.UpsertAgent(remote)
}

func lastWriterWins(remoteTS uint64, remoteNode string, localTS uint64, localNode string) bool {
	if remoteTS != localTS {
		return remoteTS > localTS
	}
	return remoteNode < localNode
}

func (r *Registry) publish(t wire.Type, a swarm.Agent) {
	if err := r.publisher.PublishAgent(t, a); err != nil {
		log.Printf("component=agentreg action=publish type=%s err=%q", t.Name(), err)
	}
}
