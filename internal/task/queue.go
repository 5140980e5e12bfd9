// ABOUTME: TaskQueue is the single-writer actor owning all task status transitions.
// ABOUTME: One command channel, sequential processing, broadcast on commit.
package task

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/voidlux/voidlux/internal/lamport"
	"github.com/voidlux/voidlux/internal/store"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/wire"
)

// Outbound is a wire message the actor wants published to the mesh after a
// successful local commit.
type Outbound struct {
	Type    wire.Type
	Payload any
}

// Publisher gossips an Outbound message to peers. Implemented by internal/gossip;
// TaskQueue depends on this narrow interface rather than importing gossip directly.
type Publisher interface {
	Publish(out Outbound) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(Outbound) error { return nil }

type commandMsg struct {
	cmd   Command
	reply chan error
}

// Queue is the task lifecycle state machine actor.
type Queue struct {
	cmdCh     chan commandMsg
	store     *store.Store
	clock     *lamport.Clock
	publisher Publisher
	selfNode  string
	claims    map[string]Claim // taskID -> recorded winning claim, confined to this goroutine
}

// NewQueue creates a Queue and starts its processing goroutine.
func NewQueue(st *store.Store, clock *lamport.Clock, pub Publisher, selfNode string) *Queue {
	if pub == nil {
		pub = noopPublisher{}
	}
	q := &Queue{
		cmdCh:     make(chan commandMsg, 256),
		store:     st,
		clock:     clock,
		publisher: pub,
		selfNode:  selfNode,
		claims:    make(map[string]Claim),
	}
	go q.run()
	return q
}

// Submit sends a command to the actor and blocks for its result.
func (q *Queue) Submit(cmd Command) error {
	reply := make(chan error, 1)
	q.cmdCh <- commandMsg{cmd: cmd, reply: reply}
	return <-reply
}

// SubmitContext is Submit with cancellation support for callers on a request path.
func (q *Queue) SubmitContext(ctx context.Context, cmd Command) error {
	reply := make(chan error, 1)
	select {
	case q.cmdCh <- commandMsg{cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	for msg := range q.cmdCh {
		msg.reply <- q.process(msg.cmd)
	}
}

func (q *Queue) process(cmd Command) error {
	now := time.Now().UTC()
	switch c := cmd.(type) {
	case CreateTask:
		return q.handleCreate(c, now)
	case ClaimTask:
		return q.handleClaim(c, now)
	case UpdateProgress:
		return q.handleUpdateProgress(c, now)
	case CompleteTask:
		return q.handleComplete(c, now)
	case FailTask:
		return q.handleFail(c, now)
	case NeedsInput:
		return q.handleNeedsInput(c, now)
	case ResumeTask:
		return q.handleResume(c, now)
	case ReviewVerdict:
		return q.handleReviewVerdict(c, now)
	case MergeSucceeded:
		return q.handleMergeSucceeded(c, now)
	case MergeRequeue:
		return q.handleMergeRequeue(c, now)
	case CancelTask:
		return q.handleCancel(c, now)
	case MarkDelivered:
		return q.handleMarkDelivered(c, now)
	case DeliveryFailed:
		return q.handleDeliveryFailed(c, now)
	case OrphanRequeue:
		return q.handleOrphanRequeue(c, now)
	case StartSubtaskTracking:
		return q.handleStartSubtaskTracking(c, now)
	case applyRemoteTask:
		return q.handleApplyRemote(c)
	default:
		return fmt.Errorf("task queue: unknown command %T", cmd)
	}
}

func (q *Queue) publish(out Outbound) {
	if err := q.publisher.Publish(out); err != nil {
		log.Printf("component=task action=publish type=%s err=%q", out.Type.Name(), err)
	}
}

func (q *Queue) handleCreate(c CreateTask, now time.Time) error {
	t := c.Task
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.LamportTS = q.clock.Tick()

	if hasCycle(t.ID, t.DependsOn) {
		return swarm.ErrDependencyCycle
	}

	if t.Status == "" {
		if ready, err := q.dependenciesSatisfied(t.DependsOn); err == nil && !ready {
			t.Status = swarm.TaskBlocked
		} else {
			t.Status = swarm.TaskPending
		}
	}

	if err := q.store.UpsertTask(t); err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskCreate, Payload: t})
	return nil
}

func hasCycle(id string, dependsOn []string) bool {
	for _, dep := range dependsOn {
		if dep == id {
			return true
		}
	}
	return false
}

func (q *Queue) dependenciesSatisfied(dependsOn []string) (bool, error) {
	for _, depID := range dependsOn {
		dep, err := q.store.GetTask(depID)
		if err != nil {
			return false, err
		}
		if dep.Status != swarm.TaskCompleted || dep.ReviewStatus == swarm.ReviewFail {
			return false, nil
		}
	}
	return true, nil
}

func (q *Queue) handleClaim(c ClaimTask, now time.Time) error {
	q.clock.Witness(c.LamportTS)

	candidate := Claim{TaskID: c.TaskID, AgentID: c.AgentID, NodeID: c.NodeID, LamportTS: c.LamportTS}

	current, haveCurrent := q.claims[c.TaskID]
	if !haveCurrent {
		// First claim seen locally for this task: attempt the atomic CAS.
		claimed, err := q.store.ClaimTask(c.TaskID, c.AgentID, c.LamportTS, now)
		if err != nil {
			return err
		}
		if !claimed {
			return nil // task no longer pending/blocked: idempotent no-op
		}
		q.claims[c.TaskID] = candidate
		q.publish(Outbound{Type: wire.TypeTaskClaim, Payload: c})
		return nil
	}

	if candidate == current {
		return nil // replaying the winning claim is a no-op
	}

	if !Beats(candidate, current) {
		// Losing claim: revert this candidate's agent to idle. A winner
		// already holds the task, so the task itself is left as it is.
		if err := q.store.SetAgentStatus(c.AgentID, swarm.AgentIdle, true, now); err != nil {
			log.Printf("component=task action=revert_losing_claim agent=%s err=%q", c.AgentID, err)
		}
		return nil
	}

	// Candidate beats the recorded winner: swap the claim, revert the
	// previous winner's agent, and re-run the CAS for the new winner.
	if err := q.store.RevertClaim(c.TaskID, now); err != nil {
		return err
	}
	if err := q.store.SetAgentStatus(current.AgentID, swarm.AgentIdle, true, now); err != nil {
		log.Printf("component=task action=revert_superseded_claim agent=%s err=%q", current.AgentID, err)
	}
	claimed, err := q.store.ClaimTask(c.TaskID, c.AgentID, c.LamportTS, now)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	q.claims[c.TaskID] = candidate
	q.publish(Outbound{Type: wire.TypeTaskClaim, Payload: c})
	return nil
}

func (q *Queue) handleUpdateProgress(c UpdateProgress, now time.Time) error {
	t, err := q.store.GetTask(c.TaskID)
	if err != nil {
		return err
	}
	t.Progress = c.Progress
	t.LamportTS = q.clock.Tick()
	t.UpdatedAt = now
	if err := q.store.UpsertTask(t); err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskUpdate, Payload: t})
	return nil
}

func (q *Queue) transition(taskID string, to swarm.TaskStatus, now time.Time, mutate func(*swarm.Task)) (swarm.Task, error) {
	t, err := q.store.GetTask(taskID)
	if err != nil {
		return swarm.Task{}, err
	}
	if !swarm.CanTransition(t.Status, to) {
		return swarm.Task{}, &swarm.TransitionError{TaskID: taskID, From: t.Status, To: to}
	}
	t.Status = to
	t.LamportTS = q.clock.Tick()
	t.UpdatedAt = now
	if mutate != nil {
		mutate(&t)
	}
	if err := q.store.UpsertTask(t); err != nil {
		return swarm.Task{}, err
	}
	return t, nil
}

func (q *Queue) handleComplete(c CompleteTask, now time.Time) error {
	t, err := q.transition(c.TaskID, swarm.TaskPendingReview, now, func(t *swarm.Task) {
		t.Result = c.Result
		t.CompletedAt = &now
	})
	if err != nil {
		return err
	}
	if t.AssignedTo != nil {
		if err := q.store.SetAgentStatus(*t.AssignedTo, swarm.AgentIdle, true, now); err != nil {
			log.Printf("component=task action=free_agent task=%s err=%q", t.ID, err)
		}
	}
	q.publish(Outbound{Type: wire.TypeTaskComplete, Payload: t})
	if err := q.maybeUnblockDependents(t.ID, now); err != nil {
		log.Printf("component=task action=unblock task=%s err=%q", t.ID, err)
	}
	return nil
}

func (q *Queue) handleFail(c FailTask, now time.Time) error {
	t, err := q.transition(c.TaskID, swarm.TaskFailed, now, func(t *swarm.Task) {
		t.Error = c.Reason
	})
	if err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskFail, Payload: t})
	return nil
}

func (q *Queue) handleNeedsInput(c NeedsInput, now time.Time) error {
	t, err := q.transition(c.TaskID, swarm.TaskWaitingInput, now, nil)
	if err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskUpdate, Payload: t})
	return nil
}

func (q *Queue) handleResume(c ResumeTask, now time.Time) error {
	t, err := q.transition(c.TaskID, swarm.TaskInProgress, now, nil)
	if err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskUpdate, Payload: t})
	return nil
}

func (q *Queue) handleReviewVerdict(c ReviewVerdict, now time.Time) error {
	if c.Pass {
		_, err := q.transition(c.TaskID, swarm.TaskMerging, now, func(t *swarm.Task) {
			t.ReviewStatus = swarm.ReviewPass
			t.ReviewFeedback = c.Feedback
		})
		return err
	}

	t, err := q.store.GetTask(c.TaskID)
	if err != nil {
		return err
	}
	if t.MergeAttempts >= swarm.MaxMergeAttempts {
		_, err := q.transition(c.TaskID, swarm.TaskFailed, now, func(t *swarm.Task) {
			t.Error = "retry-exhausted"
			t.ReviewStatus = swarm.ReviewFail
			t.ReviewFeedback = c.Feedback
		})
		return err
	}
	_, err = q.transition(c.TaskID, swarm.TaskPending, now, func(t *swarm.Task) {
		t.MergeAttempts++
		t.ReviewStatus = swarm.ReviewFail
		t.ReviewFeedback = c.Feedback
		t.AssignedTo = nil
	})
	return err
}

func (q *Queue) handleMergeSucceeded(c MergeSucceeded, now time.Time) error {
	t, err := q.transition(c.TaskID, swarm.TaskCompleted, now, func(t *swarm.Task) {
		t.PRURL = c.PRURL
	})
	if err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskComplete, Payload: t})
	return nil
}

func (q *Queue) handleMergeRequeue(c MergeRequeue, now time.Time) error {
	parent, err := q.store.GetTask(c.TaskID)
	if err != nil {
		return err
	}
	parent.MergeAttempts++
	if parent.MergeAttempts >= swarm.MaxMergeAttempts {
		_, err := q.transition(c.TaskID, swarm.TaskFailed, now, func(t *swarm.Task) {
			t.Error = "retry-exhausted"
			t.MergeAttempts = parent.MergeAttempts
		})
		return err
	}

	ids := c.SubtaskIDs
	if len(ids) == 0 {
		subs, err := q.store.ListSubtasks(c.TaskID)
		if err != nil {
			return err
		}
		for _, s := range subs {
			ids = append(ids, s.ID)
		}
	}
	for _, id := range ids {
		// Subtasks land here already 'completed' (the agent finished and it
		// passed review); a merge conflict still needs them reworked, which
		// swarm.CanTransition's general terminal-state rule forbids. This is
		// the one deliberate bypass of that rule (see store.ReopenCompletedSubtask).
		if err := q.store.ReopenCompletedSubtask(id, c.TaskID, c.Feedback, now); err != nil {
			log.Printf("component=task action=merge_requeue subtask=%s err=%q", id, err)
			continue
		}
		sub, err := q.store.GetTask(id)
		if err != nil {
			log.Printf("component=task action=merge_requeue_reload subtask=%s err=%q", id, err)
			continue
		}
		sub.LamportTS = q.clock.Tick()
		if err := q.store.UpsertTask(sub); err != nil {
			log.Printf("component=task action=merge_requeue_stamp subtask=%s err=%q", id, err)
			continue
		}
		q.publish(Outbound{Type: wire.TypeTaskUpdate, Payload: sub})
	}
	_, err = q.transition(c.TaskID, swarm.TaskPending, now, func(t *swarm.Task) {
		t.MergeAttempts = parent.MergeAttempts
		t.ReviewFeedback = c.Feedback
	})
	return err
}

func (q *Queue) handleCancel(c CancelTask, now time.Time) error {
	t, err := q.transition(c.TaskID, swarm.TaskCancelled, now, nil)
	if err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskCancel, Payload: t})
	return nil
}

func (q *Queue) handleMarkDelivered(c MarkDelivered, now time.Time) error {
	_, err := q.transition(c.TaskID, swarm.TaskInProgress, now, nil)
	if err != nil {
		return err
	}
	if err := q.store.SetAgentStatus(c.AgentID, swarm.AgentBusy, false, now); err != nil {
		log.Printf("component=task action=mark_busy agent=%s err=%q", c.AgentID, err)
	}
	return nil
}

func (q *Queue) handleDeliveryFailed(c DeliveryFailed, now time.Time) error {
	delete(q.claims, c.TaskID)
	if err := q.store.RevertClaim(c.TaskID, now); err != nil {
		return err
	}
	if err := q.store.SetAgentStatus(c.AgentID, swarm.AgentIdle, true, now); err != nil {
		log.Printf("component=task action=revert_delivery_failure agent=%s err=%q", c.AgentID, err)
	}
	return nil
}

func (q *Queue) handleOrphanRequeue(c OrphanRequeue, now time.Time) error {
	delete(q.claims, c.TaskID)
	if err := q.store.RequeueOrphan(c.TaskID, now); err != nil {
		return err
	}
	t, err := q.store.GetTask(c.TaskID)
	if err != nil {
		return err
	}
	t.LamportTS = q.clock.Tick()
	t.UpdatedAt = now
	if err := q.store.UpsertTask(t); err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskUpdate, Payload: t})
	return nil
}

func (q *Queue) handleStartSubtaskTracking(c StartSubtaskTracking, now time.Time) error {
	t, err := q.transition(c.TaskID, swarm.TaskInProgress, now, func(t *swarm.Task) {
		t.AssignedTo = &c.Assignee
	})
	if err != nil {
		return err
	}
	q.publish(Outbound{Type: wire.TypeTaskUpdate, Payload: t})
	return nil
}

// maybeUnblockDependents scans for blocked tasks whose dependencies are now
// all satisfied and flips them to pending, so the dispatcher picks them up
// on its next tick.
func (q *Queue) maybeUnblockDependents(completedID string, now time.Time) error {
	all, err := q.store.ListTasksByStatus(swarm.TaskBlocked)
	if err != nil {
		return err
	}
	var unblocked []string
	for _, t := range all {
		dependsOnCompleted := false
		for _, dep := range t.DependsOn {
			if dep == completedID {
				dependsOnCompleted = true
				break
			}
		}
		if !dependsOnCompleted {
			continue
		}
		ready, err := q.dependenciesSatisfied(t.DependsOn)
		if err != nil || !ready {
			continue
		}
		if _, err := q.transition(t.ID, swarm.TaskPending, now, nil); err != nil {
			log.Printf("component=task action=unblock task=%s err=%q", t.ID, err)
			continue
		}
		unblocked = append(unblocked, t.ID)
	}
	sort.Strings(unblocked)
	return nil
}

// ApplyRemote ingests a gossiped/anti-entropy Task record from a peer. Applied
// via last-writer-wins on (lamport_ts, node_id); stale records are no-ops.
// This is the sole write path gossip uses — it never calls Submit directly.
func (q *Queue) ApplyRemote(remote swarm.Task, remoteNodeID string) error {
	reply := make(chan error, 1)
	q.cmdCh <- commandMsg{cmd: applyRemoteTask{task: remote, nodeID: remoteNodeID}, reply: reply}
	return <-reply
}

type applyRemoteTask struct {
	task   swarm.Task
	nodeID string
}

func (applyRemoteTask) isCommand() {}

func (q *Queue) handleApplyRemote(c applyRemoteTask) error {
	q.clock.Witness(c.task.LamportTS)

	existing, err := q.store.GetTask(c.task.ID)
	if err == swarm.ErrTaskNotFound {
		return q.store.UpsertTask(c.task)
	}
	if err != nil {
		return err
	}
	if !lastWriterWins(c.task.LamportTS, c.nodeID, existing.LamportTS, q.selfNode) {
		return nil // stale, no-op
	}
	return q.store.UpsertTask(c.task)
}

// lastWriterWins implements the conflict rule: higher lamport_ts always
// wins; ties broken lexicographically on node_id (smaller wins, matching the
// Bully election and ClaimResolver tie-break convention).
func lastWriterWins(remoteTS uint64, remoteNode string, localTS uint64, localNode string) bool {
	if remoteTS != localTS {
		return remoteTS > localTS
	}
	return remoteNode < localNode
}

// Get reads a single task by id.
func (q *Queue) Get(id string) (swarm.Task, error) { return q.store.GetTask(id) }

// List reads every non-archived task.
func (q *Queue) List() ([]swarm.Task, error) { return q.store.ListTasks() }

// ListByStatus reads every non-archived task with the given status.
func (q *Queue) ListByStatus(status swarm.TaskStatus) ([]swarm.Task, error) {
	return q.store.ListTasksByStatus(status)
}
