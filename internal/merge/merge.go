// ABOUTME: MergeTestRetry integrates completed subtask branches: sequential merge, test run, bounded retry on conflict/failure.
// ABOUTME: The PR body is markdown; only the parent's work instructions are rendered to HTML (goldmark) inside it.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/yuin/goldmark"

	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/task"
)

// TaskLister is the narrow store surface MergeTestRetry needs to read a
// parent's completed subtasks.
type TaskLister interface {
	Get(id string) (swarm.Task, error)
	List() ([]swarm.Task, error)
}

// Runner is the MergeTestRetry component. It drives
// swarm.GitWorkspace and reports outcomes back through task.Queue commands.
type Runner struct {
	git   swarm.GitWorkspace
	queue *task.Queue
	store TaskLister
}

// New creates a Runner bound to the git backend, task queue, and a store
// reader for listing subtasks.
func New(git swarm.GitWorkspace, q *task.Queue, store TaskLister) *Runner {
	return &Runner{git: git, queue: q, store: store}
}

// conflictResult records whether a single subtask branch merged cleanly.
type conflictResult struct {
	subtask    swarm.Task
	conflicted bool
}

// Integrate runs the full merge/test/retry sequence for a parent task whose
// subtasks are all completed and reviewed pass. It is invoked by
// the orchestrator once TaskQueue reports the parent entering 'merging'.
func (r *Runner) Integrate(ctx context.Context, parentID string) error {
	parent, err := r.store.Get(parentID)
	if err != nil {
		return fmt.Errorf("merge: load parent %s: %w", parentID, err)
	}

	subtasks, err := r.completedSubtasks(parentID)
	if err != nil {
		return fmt.Errorf("merge: list subtasks %s: %w", parentID, err)
	}

	integrationBranch := fmt.Sprintf("integration/%s", parentID)
	path, err := r.git.WorktreeAdd(ctx, integrationBranch)
	if err != nil {
		return fmt.Errorf("merge: worktree add %s: %w", integrationBranch, err)
	}
	defer func() {
		if err := r.git.WorktreeRemove(ctx, path); err != nil {
			log.Printf("component=merge action=worktree_cleanup task=%s err=%q", parentID, err)
		}
	}()

	var conflicted []swarm.Task
	for _, sub := range subtasks {
		if sub.GitBranch == "" {
			continue
		}
		isConflict, err := r.git.MergeNoFF(ctx, path, sub.GitBranch)
		if err != nil {
			log.Printf("component=merge action=merge task=%s subtask=%s err=%q", parentID, sub.ID, err)
			continue
		}
		if isConflict {
			conflicted = append(conflicted, sub)
		}
	}

	if len(conflicted) > 0 {
		ids := make([]string, len(conflicted))
		for i, s := range conflicted {
			ids[i] = s.ID
		}
		log.Printf("component=merge action=conflict task=%s count=%d", parentID, len(conflicted))
		return r.queue.Submit(task.MergeRequeue{
			TaskID:     parentID,
			Feedback:   fmt.Sprintf("merge conflict on %d subtask branch(es); resolve and resubmit", len(conflicted)),
			SubtaskIDs: ids,
		})
	}

	output, err := r.git.RunTests(ctx, path, parent.TestCommand)
	if err != nil {
		log.Printf("component=merge action=tests_failed task=%s err=%q", parentID, err)
		return r.queue.Submit(task.MergeRequeue{
			TaskID:   parentID,
			Feedback: truncateOutput(output, 4000),
			// empty SubtaskIDs: a test failure requeues every subtask
		})
	}

	if err := r.git.Push(ctx, integrationBranch); err != nil {
		return fmt.Errorf("merge: push %s: %w", integrationBranch, err)
	}

	title := fmt.Sprintf("%s (swarm)", parent.Title)
	body := renderPRBody(parent, subtasks)
	prURL, err := r.git.CreatePR(ctx, integrationBranch, title, body)
	if err != nil {
		return fmt.Errorf("merge: create pr: %w", err)
	}

	return r.queue.Submit(task.MergeSucceeded{TaskID: parentID, PRURL: prURL})
}

func (r *Runner) completedSubtasks(parentID string) ([]swarm.Task, error) {
	all, err := r.store.List()
	if err != nil {
		return nil, err
	}
	var out []swarm.Task
	for _, t := range all {
		if t.ParentID != nil && *t.ParentID == parentID {
			out = append(out, t)
		}
	}
	return out, nil
}

// renderPRBody composes the parent's work instructions into a collapsible
// <details> block, rendered to HTML via goldmark; GitHub
// PR bodies accept raw HTML inline with markdown, so the rendered block
// nests inside the rest of the markdown body untouched.
func renderPRBody(parent swarm.Task, subtasks []swarm.Task) string {
	var md bytes.Buffer
	fmt.Fprintf(&md, "## %s\n\n%s\n\n", parent.Title, parent.Description)
	if parent.AcceptanceCriteria != "" {
		fmt.Fprintf(&md, "### Acceptance criteria\n\n%s\n\n", parent.AcceptanceCriteria)
	}
	if parent.WorkInstructions != "" {
		var rendered bytes.Buffer
		if err := goldmark.Convert([]byte(parent.WorkInstructions), &rendered); err == nil {
			fmt.Fprintf(&md, "<details><summary>Work instructions</summary>\n\n%s\n\n</details>\n\n", rendered.String())
		}
	}
	fmt.Fprintf(&md, "### Subtasks\n\n")
	for _, s := range subtasks {
		fmt.Fprintf(&md, "- [x] %s\n", s.Title)
	}
	return md.String()
}

func truncateOutput(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
