// ABOUTME: Round-trip and claim-CAS tests for the task table, exercising the exactly-once claim invariant.
package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/voidlux/voidlux/internal/swarm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "voidlux-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestTask(id string) swarm.Task {
	now := time.Now().UTC()
	return swarm.Task{
		ID:                   id,
		Title:                "wire the gossip dispatcher",
		Description:          "add a bounded channel fan-in",
		Status:               swarm.TaskPending,
		Priority:             5,
		RequiredCapabilities: []string{"go"},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestUpsertAndGetTaskRoundTrip(t *testing.T) {
	st := openTestStore(t)
	want := newTestTask("task-1")
	want.DependsOn = []string{"task-0"}

	if err := st.UpsertTask(want); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := st.GetTask("task-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != want.Title || got.Priority != want.Priority {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != "task-0" {
		t.Fatalf("depends_on not preserved: %v", got.DependsOn)
	}
}

func TestClaimTaskIsExclusive(t *testing.T) {
	st := openTestStore(t)
	task := newTestTask("task-2")
	if err := st.UpsertTask(task); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := time.Now().UTC()
	first, err := st.ClaimTask("task-2", "agent-a", 5, now)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !first {
		t.Fatalf("first claim should succeed")
	}

	second, err := st.ClaimTask("task-2", "agent-b", 5, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second {
		t.Fatalf("second claim on an already-claimed task must fail")
	}

	got, err := st.GetTask("task-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != swarm.TaskClaimed {
		t.Fatalf("status = %s, want claimed", got.Status)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "agent-a" {
		t.Fatalf("assigned_to = %v, want agent-a", got.AssignedTo)
	}
}

func TestRevertClaimIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	task := newTestTask("task-3")
	if err := st.UpsertTask(task); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	now := time.Now().UTC()
	if _, err := st.ClaimTask("task-3", "agent-a", 1, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := st.RevertClaim("task-3", now); err != nil {
		t.Fatalf("first revert: %v", err)
	}
	if err := st.RevertClaim("task-3", now); err != nil {
		t.Fatalf("second revert (no-op) must not error: %v", err)
	}

	got, err := st.GetTask("task-3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != swarm.TaskPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if got.AssignedTo != nil {
		t.Fatalf("assigned_to should be cleared, got %v", got.AssignedTo)
	}
}

func TestListTasksByStatus(t *testing.T) {
	st := openTestStore(t)
	pending := newTestTask("task-4")
	completed := newTestTask("task-5")
	completed.Status = swarm.TaskCompleted
	if err := st.UpsertTask(pending); err != nil {
		t.Fatalf("upsert pending: %v", err)
	}
	if err := st.UpsertTask(completed); err != nil {
		t.Fatalf("upsert completed: %v", err)
	}

	got, err := st.ListTasksByStatus(swarm.TaskCompleted)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "task-5" {
		t.Fatalf("ListTasksByStatus(completed) = %+v, want only task-5", got)
	}
}
