// ABOUTME: AgentMonitor runs a 5s poll loop per local agent, classifying captured output into a status and driving task transitions.
// ABOUTME: One goroutine per watched resource, confined state, no shared locks.
package agentreg

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/task"
)

// PollInterval is the AgentMonitor's poll cadence.
const PollInterval = 5 * time.Second

// SweepInterval is how often the offline sweep runs, piggybacking on the
// same loop so a single goroutine drives both concerns per local agent set.
const SweepInterval = 10 * time.Second

// ResultLines is how many trailing meaningful output lines are kept as a
// task's result when AgentMonitor performs orphan-recovery completion.
const ResultLines = 10

// StatusDetector classifies a session's raw captured output into a coarse
// status. The default implementation is injected by the orchestrator; tests
// supply a fake.
type StatusDetector interface {
	Classify(output string) swarm.SessionStatus
}

// SessionFor resolves the concrete AgentSession backing a local agent id.
// Returns ok=false if the agent no longer has a live session (vanished).
type SessionFor func(agentID string) (swarm.AgentSession, bool)

// Monitor is the AgentMonitor component.
type Monitor struct {
	registry   *Registry
	queue      *task.Queue
	detector   StatusDetector
	sessionFor SessionFor

	// lastStatus is confined to the Run goroutine; no lock needed.
	lastStatus map[string]swarm.SessionStatus
}

// NewMonitor creates a Monitor bound to the registry, task queue, detector,
// and session resolver.
func NewMonitor(reg *Registry, q *task.Queue, detector StatusDetector, sessionFor SessionFor) *Monitor {
	return &Monitor{
		registry:   reg,
		queue:      q,
		detector:   detector,
		sessionFor: sessionFor,
		lastStatus: make(map[string]swarm.SessionStatus),
	}
}

// Run drives the poll loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	pollTicker := time.NewTicker(PollInterval)
	defer pollTicker.Stop()
	sweepTicker := time.NewTicker(SweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			m.pollPass(ctx)
		case <-sweepTicker.C:
			m.sweepPass()
		}
	}
}

func (m *Monitor) sweepPass() {
	offline, err := m.registry.SweepOffline()
	if err != nil {
		log.Printf("component=agentmonitor action=sweep err=%q", err)
		return
	}
	for _, a := range offline {
		if a.CurrentTaskID == nil {
			continue
		}
		if err := m.queue.Submit(task.OrphanRequeue{TaskID: *a.CurrentTaskID}); err != nil {
			log.Printf("component=agentmonitor action=requeue_offline agent=%s task=%s err=%q", a.ID, *a.CurrentTaskID, err)
		}
	}
}

func (m *Monitor) pollPass(ctx context.Context) {
	agents, err := m.registry.List()
	if err != nil {
		log.Printf("component=agentmonitor action=list err=%q", err)
		return
	}
	for _, a := range agents {
		if a.NodeID != "" && a.NodeID != m.registry.selfNode {
			continue // only watches locally-hosted sessions
		}
		m.pollOne(ctx, a)
	}
}

func (m *Monitor) pollOne(ctx context.Context, a swarm.Agent) {
	session, ok := m.sessionFor(a.ID)
	if !ok {
		m.handleMissingSession(a)
		return
	}

	output, err := session.CaptureOutput(ctx)
	if err != nil {
		log.Printf("component=agentmonitor action=capture agent=%s err=%q", a.ID, err)
		m.handleMissingSession(a)
		return
	}

	status := m.detector.Classify(output)
	prev, had := m.lastStatus[a.ID]
	m.lastStatus[a.ID] = status
	if had && prev == status {
		return
	}
	m.transition(a, prev, status, output)
}

func (m *Monitor) handleMissingSession(a swarm.Agent) {
	delete(m.lastStatus, a.ID)
	if err := m.registry.SetStatus(a.ID, swarm.AgentOffline, true); err != nil {
		log.Printf("component=agentmonitor action=mark_offline agent=%s err=%q", a.ID, err)
	}
	if a.CurrentTaskID != nil {
		if err := m.queue.Submit(task.OrphanRequeue{TaskID: *a.CurrentTaskID}); err != nil {
			log.Printf("component=agentmonitor action=orphan_requeue agent=%s task=%s err=%q", a.ID, *a.CurrentTaskID, err)
		}
	}
}

// transition applies the busy->{idle,error,waiting} edges from.7.
// MCP may have already reported the terminal transition; the CompleteTask/
// FailTask/NeedsInput commands are no-ops in that case since the
// underlying task.Queue transition will simply reject the now-illegal edge.
func (m *Monitor) transition(a swarm.Agent, prev, cur swarm.SessionStatus, output string) {
	if prev != swarm.SessionBusy {
		// Only busy->X edges drive task transitions; idle->busy etc are
		// pure agent-status gossip, handled by Heartbeat below.
		m.gossipStatus(a, cur)
		return
	}

	if a.CurrentTaskID == nil {
		m.gossipStatus(a, cur)
		return
	}
	taskID := *a.CurrentTaskID

	switch cur {
	case swarm.SessionIdle:
		result := lastMeaningfulLines(output, ResultLines)
		if err := m.queue.Submit(task.CompleteTask{TaskID: taskID, Result: result}); err != nil {
			log.Printf("component=agentmonitor action=orphan_complete task=%s err=%q", taskID, err)
		}
	case swarm.SessionError:
		if err := m.queue.Submit(task.FailTask{TaskID: taskID, Reason: "agent session reported an error"}); err != nil {
			log.Printf("component=agentmonitor action=orphan_fail task=%s err=%q", taskID, err)
		}
	case swarm.SessionWaiting:
		if err := m.queue.Submit(task.NeedsInput{TaskID: taskID}); err != nil {
			log.Printf("component=agentmonitor action=needs_input task=%s err=%q", taskID, err)
		}
	}
	m.gossipStatus(a, cur)
}

func (m *Monitor) gossipStatus(a swarm.Agent, cur swarm.SessionStatus) {
	if err := m.registry.Heartbeat(a.ID, toAgentStatus(cur)); err != nil {
		log.Printf("component=agentmonitor action=heartbeat agent=%s err=%q", a.ID, err)
	}
}

func toAgentStatus(s swarm.SessionStatus) swarm.AgentStatus {
	switch s {
	case swarm.SessionBusy:
		return swarm.AgentBusy
	case swarm.SessionError:
		return swarm.AgentError
	case swarm.SessionWaiting:
		return swarm.AgentWaiting
	default:
		return swarm.AgentIdle
	}
}

// lastMeaningfulLines returns the trailing n non-blank lines of output,
// trimmed, used as a completed task's captured result.
func lastMeaningfulLines(output string, n int) string {
	all := strings.Split(output, "\n")
	var meaningful []string
	for _, l := range all {
		if strings.TrimSpace(l) != "" {
			meaningful = append(meaningful, strings.TrimRight(l, " \t\r"))
		}
	}
	if len(meaningful) > n {
		meaningful = meaningful[len(meaningful)-n:]
	}
	return strings.Join(meaningful, "\n")
}
