// ABOUTME: Core domain types shared across the orchestration substrate: Node, Agent, Task, BoardMessage.
// ABOUTME: These are the records replicated verbatim by the gossip mesh and persisted by the storage layer.
package swarm

import "time"

// NodeRole is the role a swarm node plays.
type NodeRole string

const (
	RoleEmperor    NodeRole = "emperor"
	RoleWorker     NodeRole = "worker"
	RoleSeneschal  NodeRole = "seneschal"
)

// NodeStatus is the liveness status of a swarm node.
type NodeStatus string

const (
	NodeOnline  NodeStatus = "online"
	NodeOffline NodeStatus = "offline"
)

// Node is a swarm process, one per participating machine/process.
type Node struct {
	NodeID          string     `json:"node_id"`
	Role            NodeRole   `json:"role"`
	HTTPHost        string     `json:"http_host"`
	HTTPPort        int        `json:"http_port"`
	P2PPort         int        `json:"p2p_port"`
	Capabilities    []string   `json:"capabilities"`
	AgentCount      int        `json:"agent_count"`
	ActiveTaskCount int        `json:"active_task_count"`
	Status          NodeStatus `json:"status"`
	LastHeartbeat   time.Time  `json:"last_heartbeat"`
	LamportTS       uint64     `json:"lamport_ts"`
	RegisteredAt    time.Time  `json:"registered_at"`
	UptimeSeconds   int64      `json:"uptime_seconds"`
	MemoryUsageByte int64      `json:"memory_usage_bytes"`
}

// AgentStatus is the liveness/work status of a controllable AI session.
type AgentStatus string

const (
	AgentStarting AgentStatus = "starting"
	AgentIdle     AgentStatus = "idle"
	AgentBusy     AgentStatus = "busy"
	AgentWaiting  AgentStatus = "waiting"
	AgentError    AgentStatus = "error"
	AgentOffline  AgentStatus = "offline"
)

// Agent is a controllable AI coding session hosted by a node.
type Agent struct {
	ID                 string      `json:"id"`
	NodeID              string      `json:"node_id"`
	Name                string      `json:"name"`
	Tool                string      `json:"tool"`
	Model               string      `json:"model"`
	Capabilities        []string    `json:"capabilities"`
	Status              AgentStatus `json:"status"`
	CurrentTaskID       *string     `json:"current_task_id,omitempty"`
	SessionHandle       string      `json:"session_handle"`
	ProjectPath         string      `json:"project_path"`
	MaxConcurrentTasks  int         `json:"max_concurrent_tasks"`
	LastHeartbeat       time.Time   `json:"last_heartbeat"`
	LamportTS           uint64      `json:"lamport_ts"`
}

// TaskStatus is a state in the task lifecycle state machine.
type TaskStatus string

const (
	TaskPending       TaskStatus = "pending"
	TaskPlanning      TaskStatus = "planning"
	TaskBlocked       TaskStatus = "blocked"
	TaskClaimed       TaskStatus = "claimed"
	TaskInProgress    TaskStatus = "in_progress"
	TaskWaitingInput  TaskStatus = "waiting_input"
	TaskPendingReview TaskStatus = "pending_review"
	TaskMerging       TaskStatus = "merging"
	TaskCompleted     TaskStatus = "completed"
	TaskFailed        TaskStatus = "failed"
	TaskCancelled     TaskStatus = "cancelled"
)

// Terminal reports whether s is a terminal state with no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// ReviewStatus is the outcome of an external Reviewer evaluation.
type ReviewStatus string

const (
	ReviewNone ReviewStatus = ""
	ReviewPass ReviewStatus = "pass"
	ReviewFail ReviewStatus = "fail"
)

// Complexity is a coarse size estimate carried on a task for scheduling hints.
type Complexity string

const (
	ComplexitySmall  Complexity = "small"
	ComplexityMedium Complexity = "medium"
	ComplexityLarge  Complexity = "large"
	ComplexityXL     Complexity = "xl"
)

// MaxMergeAttempts bounds the retry loop in MergeTestRetry.
const MaxMergeAttempts = 3

// Task is a user-level unit of work, or a subtask of one when ParentID is set.
type Task struct {
	ID                   string       `json:"id"`
	Title                string       `json:"title"`
	Description          string       `json:"description"`
	Status               TaskStatus   `json:"status"`
	Priority             int          `json:"priority"`
	RequiredCapabilities []string     `json:"required_capabilities"`
	AssignedTo           *string      `json:"assigned_to,omitempty"`
	Result               string       `json:"result,omitempty"`
	Error                string       `json:"error,omitempty"`
	Progress             string       `json:"progress,omitempty"`
	ProjectPath          string       `json:"project_path"`
	Context              string       `json:"context,omitempty"`
	LamportTS            uint64       `json:"lamport_ts"`
	ClaimedAt            *time.Time   `json:"claimed_at,omitempty"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	ParentID             *string      `json:"parent_id,omitempty"`
	WorkInstructions     string       `json:"work_instructions,omitempty"`
	AcceptanceCriteria   string       `json:"acceptance_criteria,omitempty"`
	ReviewStatus         ReviewStatus `json:"review_status,omitempty"`
	ReviewFeedback       string       `json:"review_feedback,omitempty"`
	Archived             bool         `json:"archived"`
	GitBranch            string       `json:"git_branch,omitempty"`
	MergeAttempts        int          `json:"merge_attempts"`
	TestCommand          string       `json:"test_command,omitempty"`
	DependsOn            []string     `json:"depends_on,omitempty"`
	AutoMerge            bool         `json:"auto_merge"`
	PRURL                string       `json:"pr_url,omitempty"`
	Complexity           Complexity   `json:"complexity,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// IsSubtask reports whether t has a parent task.
func (t Task) IsSubtask() bool {
	return t.ParentID != nil
}

// RequiresAssignee reports whether status s mandates a non-null AssignedTo
//.
func (s TaskStatus) RequiresAssignee() bool {
	switch s {
	case TaskClaimed, TaskInProgress, TaskPendingReview, TaskMerging:
		return true
	default:
		return false
	}
}

// BoardMessage is a gossiped agent-to-agent message-board post. Like Task it
// carries lamport_ts and node_id, but a received post is stored as it comes
// (no last-writer-wins comparison) and posts have no anti-entropy pull sync.
type BoardMessage struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Channel   string    `json:"channel"`
	Body      string    `json:"body"`
	LamportTS uint64    `json:"lamport_ts"`
	CreatedAt time.Time `json:"created_at"`
}
