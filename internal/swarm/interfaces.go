// ABOUTME: External collaborator interfaces the orchestration substrate depends on but does not implement.
// ABOUTME: Planner, Reviewer, AgentSession, and GitWorkspace are opaque capabilities injected at startup.
package swarm

import "context"

// Subtask is a planner-proposed decomposition of a parent task.
type Subtask struct {
	Title                string
	Description          string
	WorkInstructions     string
	AcceptanceCriteria   string
	RequiredCapabilities []string
	DependsOn            []int // indices into the decomposition slice, resolved by the caller
	Complexity           Complexity
	TestCommand          string
}

// Planner decomposes a parent task into dependency-annotated subtasks. It is
// an opaque external capability — the orchestration substrate never reasons
// about how decomposition happens, only that DependsOn forms a DAG.
type Planner interface {
	Decompose(ctx context.Context, task Task) ([]Subtask, error)
}

// Verdict is a Reviewer's pass/fail judgment on a completed task's artifacts.
type Verdict struct {
	Pass     bool
	Feedback string
}

// Artifacts bundles what a Reviewer inspects to render a Verdict.
type Artifacts struct {
	Result string
	Diff   string
}

// Reviewer evaluates a completed task's artifacts against its acceptance
// criteria. An opaque external capability backed by an LLM in production.
type Reviewer interface {
	Evaluate(ctx context.Context, task Task, artifacts Artifacts) (Verdict, error)
}

// SessionStatus is the coarse status an AgentSession reports back.
type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionBusy    SessionStatus = "busy"
	SessionError   SessionStatus = "error"
	SessionWaiting SessionStatus = "waiting"
)

// AgentSession is a single controllable agent runtime (a tmux pane, a
// container, a remote API session — the substrate does not care). It accepts
// prompt text and reports status; AgentMonitor polls it.
type AgentSession interface {
	Deliver(ctx context.Context, prompt string) error
	CaptureOutput(ctx context.Context) (string, error)
	Status(ctx context.Context) (SessionStatus, error)
}

// GitWorkspace is the git backend capability: worktree management, branch
// merge, test invocation, and PR creation. MergeTestRetry drives this
// interface; it never shells out to git directly.
type GitWorkspace interface {
	WorktreeAdd(ctx context.Context, branch string) (path string, err error)
	WorktreeRemove(ctx context.Context, path string) error
	Commit(ctx context.Context, path, message string) error
	Push(ctx context.Context, branch string) error
	MergeNoFF(ctx context.Context, intoPath, branch string) (conflict bool, err error)
	RunTests(ctx context.Context, path, command string) (output string, err error)
	CreatePR(ctx context.Context, branch, title, body string) (url string, err error)
	DefaultBranch(ctx context.Context) (string, error)
}
