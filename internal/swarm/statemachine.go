// ABOUTME: Task lifecycle transition table.
// ABOUTME: CanTransition is the single source of truth consulted by TaskQueue before any status write.
package swarm

var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:       {TaskPlanning, TaskBlocked, TaskClaimed, TaskCancelled},
	TaskPlanning:      {TaskInProgress, TaskCancelled},
	TaskBlocked:       {TaskPending, TaskClaimed, TaskCancelled},
	TaskClaimed:       {TaskInProgress, TaskPending, TaskCancelled},
	TaskInProgress:    {TaskPendingReview, TaskFailed, TaskWaitingInput, TaskCancelled},
	TaskWaitingInput:  {TaskInProgress, TaskCancelled},
	TaskPendingReview: {TaskMerging, TaskPending, TaskCancelled},
	TaskMerging:       {TaskCompleted, TaskPending, TaskFailed, TaskCancelled},
}

// CanTransition reports whether moving a task from 'from' to 'to' is a legal
// state machine edge. Terminal states accept no further transitions.
func CanTransition(from, to TaskStatus) bool {
	if from.Terminal() {
		return false
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
