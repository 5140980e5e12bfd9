// ABOUTME: Workspace is the default os/exec-backed swarm.GitWorkspace: worktree add/remove, merge, test run, PR create.
// ABOUTME: git itself is an external CLI collaborator surface, so shelling out is the only mechanism — no library replaces it.
package gitshell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Workspace drives a single base git repository and its worktrees.
type Workspace struct {
	repoPath     string // the shared base clone
	worktreeRoot string // parent directory under which integration/subtask worktrees live
	prCreator    PRCreator
}

// PRCreator is the narrow surface for opening a pull request against a
// hosting provider. The default implementation shells out to the `gh` CLI,
// grounded in the same os/exec idiom as the rest of this package; swapping
// in a hosted-API client is a drop-in replacement of this one field.
type PRCreator interface {
	Create(ctx context.Context, repoPath, branch, base, title, body string) (url string, err error)
}

// New creates a Workspace rooted at repoPath, with worktrees created under worktreeRoot.
func New(repoPath, worktreeRoot string, pr PRCreator) *Workspace {
	if pr == nil {
		pr = ghCLI{}
	}
	return &Workspace{repoPath: repoPath, worktreeRoot: worktreeRoot, prCreator: pr}
}

func (w *Workspace) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// DefaultBranch resolves the repo's default branch via
// `git symbolic-ref refs/remotes/origin/HEAD`.
func (w *Workspace) DefaultBranch(ctx context.Context) (string, error) {
	out, err := w.run(ctx, w.repoPath, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err != nil {
		return "", fmt.Errorf("gitshell: resolve default branch: %w: %s", err, out)
	}
	ref := strings.TrimSpace(out)
	return strings.TrimPrefix(ref, "refs/remotes/origin/"), nil
}

// WorktreeAdd creates or resets a linked worktree for branch under
// worktreeRoot, branched from the repo's resolved default branch.
func (w *Workspace) WorktreeAdd(ctx context.Context, branch string) (string, error) {
	base, err := w.DefaultBranch(ctx)
	if err != nil {
		return "", err
	}
	path := filepath.Join(w.worktreeRoot, sanitize(branch))
	// Best-effort: the worktree may not exist yet, which is the common case.
	_, _ = w.run(ctx, w.repoPath, "worktree", "remove", "--force", path)
	if out, err := w.run(ctx, w.repoPath, "worktree", "add", "-B", branch, path, base); err != nil {
		return "", fmt.Errorf("gitshell: worktree add %s: %w: %s", branch, err, out)
	}
	return path, nil
}

// WorktreeRemove removes a linked worktree, force-discarding any local state.
func (w *Workspace) WorktreeRemove(ctx context.Context, path string) error {
	if out, err := w.run(ctx, w.repoPath, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("gitshell: worktree remove %s: %w: %s", path, err, out)
	}
	return nil
}

// Commit stages everything under path and commits with message.
func (w *Workspace) Commit(ctx context.Context, path, message string) error {
	if out, err := w.run(ctx, path, "add", "-A"); err != nil {
		return fmt.Errorf("gitshell: add: %w: %s", err, out)
	}
	if out, err := w.run(ctx, path, "commit", "-m", message); err != nil {
		return fmt.Errorf("gitshell: commit: %w: %s", err, out)
	}
	return nil
}

// Push pushes the worktree's current branch to origin.
func (w *Workspace) Push(ctx context.Context, branch string) error {
	path := filepath.Join(w.worktreeRoot, sanitize(branch))
	if out, err := w.run(ctx, path, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("gitshell: push %s: %w: %s", branch, err, out)
	}
	return nil
}

// MergeNoFF merges branch into the worktree at intoPath with --no-ff. On
// conflict it aborts the merge and returns conflict=true rather than an error
//.
func (w *Workspace) MergeNoFF(ctx context.Context, intoPath, branch string) (bool, error) {
	out, err := w.run(ctx, intoPath, "merge", "--no-ff", "--no-edit", branch)
	if err == nil {
		return false, nil
	}
	if _, abortErr := w.run(ctx, intoPath, "merge", "--abort"); abortErr != nil {
		return true, fmt.Errorf("gitshell: merge abort after conflict on %s: %w", branch, abortErr)
	}
	_ = out
	return true, nil
}

// RunTests runs command in path via a shell, capturing combined output.
func (w *Workspace) RunTests(ctx context.Context, path, command string) (string, error) {
	if command == "" {
		return "", nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = path
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// CreatePR delegates to the configured PRCreator (default: the gh CLI).
func (w *Workspace) CreatePR(ctx context.Context, branch, title, body string) (string, error) {
	base, err := w.DefaultBranch(ctx)
	if err != nil {
		return "", err
	}
	return w.prCreator.Create(ctx, w.repoPath, branch, base, title, body)
}

func sanitize(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// ghCLI is the default PRCreator, shelling out to the GitHub `gh` CLI.
type ghCLI struct{}

func (ghCLI) Create(ctx context.Context, repoPath, branch, base, title, body string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", "pr", "create",
		"--head", branch, "--base", base, "--title", title, "--body", body)
	cmd.Dir = repoPath
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gitshell: gh pr create: %w: %s", err, out.String())
	}
	return strings.TrimSpace(out.String()), nil
}
