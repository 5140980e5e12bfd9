// ABOUTME: TaskDispatcher matches idle agents to ready tasks over a bounded event channel.
// ABOUTME: Rescans on AgentIdle/TaskReady events pushed via Notify and on its own 2s ticker.
package task

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/voidlux/voidlux/internal/lamport"
	"github.com/voidlux/voidlux/internal/store"
	"github.com/voidlux/voidlux/internal/swarm"
)

// DispatchEventKind discriminates the events a Dispatcher reacts to.
type DispatchEventKind int

const (
	EventAgentIdle DispatchEventKind = iota
	EventTaskReady
	EventTick
)

// DispatchEvent is pushed onto the Dispatcher's bounded channel.
type DispatchEvent struct {
	Kind DispatchEventKind
}

// Deliverer hands a claimed task's prompt to the concrete agent session.
// Implemented by boardDeliverer in cmd/voidlux, which posts the prompt to the board.
type Deliverer interface {
	DeliverTask(ctx context.Context, agentID string, t swarm.Task) error
}

const tickInterval = 2 * time.Second

// Dispatcher is the event-driven matcher pairing idle agents with ready tasks.
type Dispatcher struct {
	queue     *Queue
	store     *store.Store
	clock     *lamport.Clock
	deliverer Deliverer
	selfNode  string
	events    chan DispatchEvent
}

// NewDispatcher creates a Dispatcher with its bounded event channel.
func NewDispatcher(q *Queue, st *store.Store, clock *lamport.Clock, deliverer Deliverer, selfNode string) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		store:     st,
		clock:     clock,
		deliverer: deliverer,
		selfNode:  selfNode,
		events:    make(chan DispatchEvent, 128),
	}
}

// Notify pushes an event onto the bounded channel, dropping it if the
// dispatcher is backed up (the next Tick will still re-scan and catch up).
func (d *Dispatcher) Notify(kind DispatchEventKind) {
	select {
	case d.events <- DispatchEvent{Kind: kind}:
	default:
	}
}

// Run drives the dispatch loop until ctx is cancelled, emitting its own Tick
// events every 2s for liveness alongside externally pushed events.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scanAndDispatch(ctx)
		case <-d.events:
			d.scanAndDispatch(ctx)
		}
	}
}

// scanAndDispatch is the core matching pass: for each idle local agent, pick
// the highest-priority ready task whose capabilities and dependencies allow
// dispatch, claim it, and hand it to the Deliverer.
func (d *Dispatcher) scanAndDispatch(ctx context.Context) {
	agents, err := d.store.ListIdleAgentsForNode(d.selfNode)
	if err != nil {
		log.Printf("component=dispatcher action=list_idle_agents err=%q", err)
		return
	}
	if len(agents) == 0 {
		return
	}

	ready, err := d.readyTasks()
	if err != nil {
		log.Printf("component=dispatcher action=ready_tasks err=%q", err)
		return
	}

	for _, agent := range agents {
		idx := pickTask(ready, agent.Capabilities)
		if idx < 0 {
			continue
		}
		t := ready[idx]
		ready = append(ready[:idx], ready[idx+1:]...)

		lamportTS := d.clock.Tick()
		if err := d.queue.Submit(ClaimTask{
			TaskID:    t.ID,
			AgentID:   agent.ID,
			NodeID:    d.selfNode,
			LamportTS: lamportTS,
		}); err != nil {
			log.Printf("component=dispatcher action=claim task=%s agent=%s err=%q", t.ID, agent.ID, err)
			continue
		}

		if d.deliverer == nil {
			continue
		}
		if err := d.deliverer.DeliverTask(ctx, agent.ID, t); err != nil {
			log.Printf("component=dispatcher action=deliver task=%s agent=%s err=%q", t.ID, agent.ID, err)
			_ = d.queue.Submit(DeliveryFailed{TaskID: t.ID, AgentID: agent.ID})
			continue
		}
		if err := d.queue.Submit(MarkDelivered{TaskID: t.ID, AgentID: agent.ID}); err != nil {
			log.Printf("component=dispatcher action=mark_delivered task=%s err=%q", t.ID, err)
		}
	}
}

// readyTasks returns pending tasks whose dependencies are all satisfied,
// ordered by priority desc, then created_at asc, then id asc.
func (d *Dispatcher) readyTasks() ([]swarm.Task, error) {
	pending, err := d.store.ListTasksByStatus(swarm.TaskPending)
	if err != nil {
		return nil, err
	}
	var ready []swarm.Task
	for _, t := range pending {
		if allDependenciesDone(d.store, t.DependsOn) {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		if !ready[i].CreatedAt.Equal(ready[j].CreatedAt) {
			return ready[i].CreatedAt.Before(ready[j].CreatedAt)
		}
		return ready[i].ID < ready[j].ID
	})
	return ready, nil
}

func allDependenciesDone(st *store.Store, dependsOn []string) bool {
	for _, depID := range dependsOn {
		dep, err := st.GetTask(depID)
		if err != nil || dep.Status != swarm.TaskCompleted || dep.ReviewStatus == swarm.ReviewFail {
			return false
		}
	}
	return true
}

// pickTask returns the index of the first ready task whose required
// capabilities are a subset of the agent's capabilities, or -1.
func pickTask(ready []swarm.Task, agentCaps []string) int {
	caps := make(map[string]bool, len(agentCaps))
	for _, c := range agentCaps {
		caps[c] = true
	}
	for i, t := range ready {
		if subsetOf(t.RequiredCapabilities, caps) {
			return i
		}
	}
	return -1
}

func subsetOf(required []string, have map[string]bool) bool {
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}
