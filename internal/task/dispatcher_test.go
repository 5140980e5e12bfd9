// ABOUTME: Unit tests for the dispatcher's pure matching helpers: capability subset and fairness ordering.
package task

import (
	"testing"
	"time"

	"github.com/voidlux/voidlux/internal/swarm"
)

func TestSubsetOf(t *testing.T) {
	have := map[string]bool{"go": true, "python": true}
	cases := []struct {
		required []string
		want     bool
	}{
		{nil, true},
		{[]string{"go"}, true},
		{[]string{"go", "python"}, true},
		{[]string{"rust"}, false},
		{[]string{"go", "rust"}, false},
	}
	for _, c := range cases {
		if got := subsetOf(c.required, have); got != c.want {
			t.Errorf("subsetOf(%v, %v) = %v, want %v", c.required, have, got, c.want)
		}
	}
}

func TestPickTaskSkipsTasksMissingCapabilities(t *testing.T) {
	ready := []swarm.Task{
		{ID: "t1", RequiredCapabilities: []string{"rust"}},
		{ID: "t2", RequiredCapabilities: []string{"go"}},
	}
	idx := pickTask(ready, []string{"go"})
	if idx != 1 {
		t.Fatalf("pickTask returned index %d, want 1 (t2, the only capability-matching task)", idx)
	}
}

func TestPickTaskNoMatch(t *testing.T) {
	ready := []swarm.Task{{ID: "t1", RequiredCapabilities: []string{"rust"}}}
	if idx := pickTask(ready, []string{"go"}); idx != -1 {
		t.Fatalf("pickTask = %d, want -1 when no ready task matches", idx)
	}
}

func TestReadyTasksFairnessOrdering(t *testing.T) {
	base := time.Now().UTC()
	tasks := []swarm.Task{
		{ID: "b", Priority: 5, CreatedAt: base},
		{ID: "a", Priority: 5, CreatedAt: base},
		{ID: "c", Priority: 10, CreatedAt: base.Add(time.Second)},
	}
	// Mirrors the sort.SliceStable comparator in readyTasks: priority desc,
	// then created_at asc, then id asc.
	less := func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	}
	if !less(2, 0) {
		t.Fatalf("higher-priority task c must sort before same-created-time lower-priority tasks")
	}
	if !less(1, 0) {
		t.Fatalf("equal priority and created_at must break ties lexicographically by id (a before b)")
	}
}
