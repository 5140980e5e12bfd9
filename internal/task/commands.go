// ABOUTME: Commands accepted by the TaskQueue actor, one per external trigger named in.2.
package task

import "github.com/voidlux/voidlux/internal/swarm"

// Command is processed sequentially by the single TaskQueue actor goroutine.
type Command interface{ isCommand() }

// CreateTask inserts a new task (parent or subtask) in 'pending' status,
// or 'blocked' if it has unsatisfied dependencies.
type CreateTask struct {
	Task swarm.Task
}

// ClaimTask is a worker's bid to claim a ready task for an idle agent.
// Resolved via ClaimResolver against any concurrent claims.
type ClaimTask struct {
	TaskID    string
	AgentID   string
	NodeID    string
	LamportTS uint64
}

// UpdateProgress records a progress string without changing status.
type UpdateProgress struct {
	TaskID   string
	Progress string
}

// CompleteTask transitions in_progress -> pending_review (MCP task_complete).
type CompleteTask struct {
	TaskID string
	Result string
}

// FailTask transitions in_progress -> failed (MCP task_failed or orphan detection).
type FailTask struct {
	TaskID string
	Reason string
}

// NeedsInput transitions in_progress -> waiting_input (MCP task_needs_input).
type NeedsInput struct {
	TaskID string
}

// ResumeTask transitions waiting_input -> in_progress on human response.
type ResumeTask struct {
	TaskID string
}

// ReviewVerdict applies a Reviewer's pass/fail to a parent task in pending_review.
type ReviewVerdict struct {
	TaskID   string
	Pass     bool
	Feedback string
}

// MergeSucceeded transitions merging -> completed with the PR url recorded.
type MergeSucceeded struct {
	TaskID string
	PRURL  string
}

// MergeRequeue requeues subtasks after a conflict or test failure, bumping
// merge_attempts; reaching swarm.MaxMergeAttempts marks the parent failed.
type MergeRequeue struct {
	TaskID         string
	Feedback       string
	SubtaskIDs     []string // empty means requeue all subtasks of TaskID
}

// CancelTask moves any non-terminal task to cancelled (operator request).
type CancelTask struct {
	TaskID string
}

// MarkDelivered transitions claimed -> in_progress once the Deliverer has
// successfully delivered the prompt to the agent's session.
type MarkDelivered struct {
	TaskID  string
	AgentID string
}

// DeliveryFailed reverts a claimed task back to pending and its agent to idle
// when prompt delivery fails, freeing the task for the next dispatch tick.
type DeliveryFailed struct {
	TaskID  string
	AgentID string
}

// OrphanRequeue reverts a task whose agent vanished (AgentMonitor found no
// session) back to pending from whatever non-terminal status it was in.
type OrphanRequeue struct {
	TaskID string
}

// StartSubtaskTracking transitions a decomposed parent task from planning to
// in_progress, recording a synthetic assignee since the parent is driven by
// its subtasks rather than by a single claimed agent.
type StartSubtaskTracking struct {
	TaskID   string
	Assignee string
}

func (CreateTask) isCommand()     {}
func (ClaimTask) isCommand()      {}
func (UpdateProgress) isCommand() {}
func (CompleteTask) isCommand()   {}
func (FailTask) isCommand()       {}
func (NeedsInput) isCommand()     {}
func (ResumeTask) isCommand()     {}
func (ReviewVerdict) isCommand()  {}
func (MergeSucceeded) isCommand() {}
func (MergeRequeue) isCommand()   {}
func (CancelTask) isCommand()     {}
func (MarkDelivered) isCommand()  {}
func (DeliveryFailed) isCommand() {}
func (OrphanRequeue) isCommand()  {}
func (StartSubtaskTracking) isCommand() {}
