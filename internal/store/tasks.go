// ABOUTME: Task row persistence: upsert, get, list by status/parent, and the atomic claim CAS.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/voidlux/voidlux/internal/swarm"
)

func (s *Store) UpsertTask(t swarm.Task) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (
			id, title, description, status, priority, required_capabilities, assigned_to,
			result, error, progress, project_path, context, lamport_ts, claimed_at, completed_at,
			parent_id, work_instructions, acceptance_criteria, review_status, review_feedback,
			archived, git_branch, merge_attempts, test_command, depends_on, auto_merge, pr_url,
			complexity, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, description=excluded.description, status=excluded.status,
			priority=excluded.priority, required_capabilities=excluded.required_capabilities,
			assigned_to=excluded.assigned_to, result=excluded.result, error=excluded.error,
			progress=excluded.progress, project_path=excluded.project_path, context=excluded.context,
			lamport_ts=excluded.lamport_ts, claimed_at=excluded.claimed_at,
			completed_at=excluded.completed_at, parent_id=excluded.parent_id,
			work_instructions=excluded.work_instructions, acceptance_criteria=excluded.acceptance_criteria,
			review_status=excluded.review_status, review_feedback=excluded.review_feedback,
			archived=excluded.archived, git_branch=excluded.git_branch,
			merge_attempts=excluded.merge_attempts, test_command=excluded.test_command,
			depends_on=excluded.depends_on, auto_merge=excluded.auto_merge, pr_url=excluded.pr_url,
			complexity=excluded.complexity, updated_at=excluded.updated_at`,
		t.ID, t.Title, t.Description, string(t.Status), t.Priority,
		marshalStrings(t.RequiredCapabilities), nullableString(t.AssignedTo),
		t.Result, t.Error, t.Progress, t.ProjectPath, t.Context, t.LamportTS,
		formatTimePtr(t.ClaimedAt), formatTimePtr(t.CompletedAt), nullableString(t.ParentID),
		t.WorkInstructions, t.AcceptanceCriteria, string(t.ReviewStatus), t.ReviewFeedback,
		boolToInt(t.Archived), t.GitBranch, t.MergeAttempts, t.TestCommand,
		marshalStrings(t.DependsOn), boolToInt(t.AutoMerge), t.PRURL, string(t.Complexity),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

const taskColumns = `id, title, description, status, priority, required_capabilities, assigned_to,
	result, error, progress, project_path, context, lamport_ts, claimed_at, completed_at,
	parent_id, work_instructions, acceptance_criteria, review_status, review_feedback,
	archived, git_branch, merge_attempts, test_command, depends_on, auto_merge, pr_url,
	complexity, created_at, updated_at`

func scanTask(row interface {
	Scan(dest ...any) error
}) (swarm.Task, error) {
	var t swarm.Task
	var status, reviewStatus, complexity string
	var assignedTo, parentID sql.NullString
	var claimedAt, completedAt sql.NullString
	var requiredCaps, dependsOn string
	var archived, autoMerge int
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &status, &t.Priority, &requiredCaps, &assignedTo,
		&t.Result, &t.Error, &t.Progress, &t.ProjectPath, &t.Context, &t.LamportTS,
		&claimedAt, &completedAt, &parentID, &t.WorkInstructions, &t.AcceptanceCriteria,
		&reviewStatus, &t.ReviewFeedback, &archived, &t.GitBranch, &t.MergeAttempts,
		&t.TestCommand, &dependsOn, &autoMerge, &t.PRURL, &complexity, &createdAt, &updatedAt,
	)
	if err != nil {
		return swarm.Task{}, err
	}

	t.Status = swarm.TaskStatus(status)
	t.ReviewStatus = swarm.ReviewStatus(reviewStatus)
	t.Complexity = swarm.Complexity(complexity)
	t.RequiredCapabilities = unmarshalStrings(requiredCaps)
	t.DependsOn = unmarshalStrings(dependsOn)
	t.Archived = archived != 0
	t.AutoMerge = autoMerge != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	if assignedTo.Valid {
		v := assignedTo.String
		t.AssignedTo = &v
	}
	if parentID.Valid {
		v := parentID.String
		t.ParentID = &v
	}
	t.ClaimedAt = parseTimePtr(claimedAt)
	t.CompletedAt = parseTimePtr(completedAt)
	return t, nil
}

// GetTask loads a single task by id.
func (s *Store) GetTask(id string) (swarm.Task, error) {
	row := s.db.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return swarm.Task{}, swarm.ErrTaskNotFound
	}
	if err != nil {
		return swarm.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns every non-archived task, ordered by lamport_ts ascending.
func (s *Store) ListTasks() ([]swarm.Task, error) {
	rows, err := s.db.Query("SELECT " + taskColumns + " FROM tasks WHERE archived = 0 ORDER BY lamport_ts ASC")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTasksByStatus returns every non-archived task with the given status.
func (s *Store) ListTasksByStatus(status swarm.TaskStatus) ([]swarm.Task, error) {
	rows, err := s.db.Query(
		"SELECT "+taskColumns+" FROM tasks WHERE archived = 0 AND status = ? ORDER BY priority DESC, created_at ASC, id ASC",
		string(status))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSubtasks returns every subtask of the given parent.
func (s *Store) ListSubtasks(parentID string) ([]swarm.Task, error) {
	rows, err := s.db.Query("SELECT "+taskColumns+" FROM tasks WHERE parent_id = ? ORDER BY created_at ASC", parentID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClaimTask performs an atomic compare-and-set: status pending|blocked ->
// claimed, assigned_to = agentID. Returns claimed=false without error if
// another writer already moved the row out of a claimable status (lost the
// race).
func (s *Store) ClaimTask(taskID, agentID string, lamportTS uint64, now time.Time) (claimed bool, err error) {
	res, err := s.db.Exec(
		`UPDATE tasks SET status = ?, assigned_to = ?, lamport_ts = ?, claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(swarm.TaskClaimed), agentID, lamportTS, formatTime(now), formatTime(now),
		taskID, string(swarm.TaskPending), string(swarm.TaskBlocked))
	if err != nil {
		return false, fmt.Errorf("claim task %s: %w", taskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim task %s rows affected: %w", taskID, err)
	}
	return n > 0, nil
}

// RevertClaim reverts a losing claim: task back to pending, assigned_to
// cleared. A no-op if the task is no longer claimed.
func (s *Store) RevertClaim(taskID string, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, assigned_to = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(swarm.TaskPending), formatTime(now), taskID, string(swarm.TaskClaimed))
	if err != nil {
		return fmt.Errorf("revert claim %s: %w", taskID, err)
	}
	return nil
}

// RequeueOrphan reverts a task to pending and clears its assignee
// unconditionally (except terminal states), used by AgentMonitor when an
// agent's session vanishes out from under an in-progress or claimed task.
func (s *Store) RequeueOrphan(taskID string, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, assigned_to = NULL, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?, ?)`,
		string(swarm.TaskPending), formatTime(now), taskID,
		string(swarm.TaskCompleted), string(swarm.TaskFailed), string(swarm.TaskCancelled))
	if err != nil {
		return fmt.Errorf("requeue orphan %s: %w", taskID, err)
	}
	return nil
}

// ReopenCompletedSubtask moves a completed subtask back to pending with the
// given feedback. This is the one path that deliberately bypasses the
// general task state machine, which treats completed as terminal: a subtask
// whose branch conflicted during merge integration needs rework even though
// the agent already finished it and review passed. Scoped to parent_id so it
// can never reopen an unrelated completed task by mistake.
func (s *Store) ReopenCompletedSubtask(taskID, parentID, feedback string, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE tasks SET status = ?, assigned_to = NULL, review_feedback = ?, updated_at = ?
		 WHERE id = ? AND parent_id = ? AND status = ?`,
		string(swarm.TaskPending), feedback, formatTime(now),
		taskID, parentID, string(swarm.TaskCompleted))
	if err != nil {
		return fmt.Errorf("reopen completed subtask %s: %w", taskID, err)
	}
	return nil
}

// SetTaskStatus performs an unconditional status write, used by transitions
// that are not contested (MCP reports, reviewer verdicts, merge outcomes).
// Callers are expected to have validated the transition via swarm.CanTransition.
func (s *Store) SetTaskStatus(taskID string, status swarm.TaskStatus, now time.Time) error {
	_, err := s.db.Exec("UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(now), taskID)
	if err != nil {
		return fmt.Errorf("set task status %s: %w", taskID, err)
	}
	return nil
}

func nullableString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
