// ABOUTME: Orchestrator is the top-level wiring that watches task status and drives the external Planner/Reviewer/MergeTestRetry collaborators.
// ABOUTME: Polls task status on an interval, the same shape as task.Dispatcher and agentreg.Monitor, since Queue has no event subscription.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidlux/voidlux/internal/merge"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/task"
)

// PollInterval is how often the orchestrator scans for tasks that have
// entered a status requiring an external collaborator's attention.
const PollInterval = 3 * time.Second

// plannerAssignee marks a decomposed parent task's AssignedTo field while it
// waits on its subtasks, satisfying TaskInProgress.RequiresAssignee without
// implying any single agent owns the work.
const plannerAssignee = "orchestrator:planner"

// Orchestrator is component #18: it owns no state of its own beyond an
// in-flight set guarding against re-dispatching a task already being
// decomposed, reviewed, or merged, since every actual state transition lives
// in task.Queue.
type Orchestrator struct {
	queue    *task.Queue
	planner  swarm.Planner
	reviewer swarm.Reviewer
	merger   *merge.Runner

	mu       sync.Mutex
	inFlight map[string]bool
}

// New creates an Orchestrator bound to the task queue and the three
// external collaborators.
func New(q *task.Queue, planner swarm.Planner, reviewer swarm.Reviewer, merger *merge.Runner) *Orchestrator {
	return &Orchestrator{
		queue:    q,
		planner:  planner,
		reviewer: reviewer,
		merger:   merger,
		inFlight: make(map[string]bool),
	}
}

// Run drives the poll loop until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.scan(ctx)
		}
	}
}

func (o *Orchestrator) scan(ctx context.Context) {
	o.scanPlanning(ctx)
	o.scanAwaitingSubtasks(ctx)
	o.scanPendingReview(ctx)
	o.scanMerging(ctx)
}

// scanPlanning decomposes parent tasks sitting in 'planning' into
// dependency-annotated subtasks, then moves the parent to 'in_progress' to
// await them (a legal planning->in_progress edge; the parent "progresses"
// via its subtasks rather than a single agent session).
func (o *Orchestrator) scanPlanning(ctx context.Context) {
	tasks, err := o.queue.ListByStatus(swarm.TaskPlanning)
	if err != nil {
		log.Printf("component=orchestrator action=list_planning err=%q", err)
		return
	}
	for _, t := range tasks {
		if o.claim(t.ID) {
			go o.decompose(ctx, t)
		}
	}
}

func (o *Orchestrator) decompose(ctx context.Context, parent swarm.Task) {
	defer o.release(parent.ID)

	subtasks, err := o.planner.Decompose(ctx, parent)
	if err != nil {
		log.Printf("component=orchestrator action=decompose task=%s err=%q", parent.ID, err)
		if failErr := o.queue.Submit(task.FailTask{TaskID: parent.ID, Reason: err.Error()}); failErr != nil {
			log.Printf("component=orchestrator action=decompose_fail task=%s err=%q", parent.ID, failErr)
		}
		return
	}

	ids := make([]string, len(subtasks))
	for i := range subtasks {
		ids[i] = uuid.NewString()
	}
	for i, s := range subtasks {
		dependsOn := make([]string, 0, len(s.DependsOn))
		for _, idx := range s.DependsOn {
			if idx >= 0 && idx < len(ids) {
				dependsOn = append(dependsOn, ids[idx])
			}
		}
		child := swarm.Task{
			ID:                   ids[i],
			Title:                s.Title,
			Description:          s.Description,
			ProjectPath:          parent.ProjectPath,
			WorkInstructions:     s.WorkInstructions,
			AcceptanceCriteria:   s.AcceptanceCriteria,
			RequiredCapabilities: s.RequiredCapabilities,
			Complexity:           s.Complexity,
			TestCommand:          s.TestCommand,
			ParentID:             &parent.ID,
			DependsOn:            dependsOn,
		}
		if err := o.queue.Submit(task.CreateTask{Task: child}); err != nil {
			log.Printf("component=orchestrator action=create_subtask parent=%s err=%q", parent.ID, err)
		}
	}

	if err := o.queue.Submit(task.StartSubtaskTracking{TaskID: parent.ID, Assignee: plannerAssignee}); err != nil {
		log.Printf("component=orchestrator action=start_tracking task=%s err=%q", parent.ID, err)
	}
}

// scanAwaitingSubtasks finds decomposed parents (in_progress, assigned to the
// synthetic planner marker) whose subtasks have all completed, and reports
// the parent complete so it flows into the normal review/merge path.
func (o *Orchestrator) scanAwaitingSubtasks(ctx context.Context) {
	tasks, err := o.queue.ListByStatus(swarm.TaskInProgress)
	if err != nil {
		log.Printf("component=orchestrator action=list_awaiting err=%q", err)
		return
	}
	for _, t := range tasks {
		if t.AssignedTo == nil || *t.AssignedTo != plannerAssignee {
			continue
		}
		if !o.claim(t.ID) {
			continue
		}
		go o.checkSubtasksDone(t)
	}
}

func (o *Orchestrator) checkSubtasksDone(parent swarm.Task) {
	defer o.release(parent.ID)

	all, err := o.queue.List()
	if err != nil {
		log.Printf("component=orchestrator action=list_subtasks parent=%s err=%q", parent.ID, err)
		return
	}
	var subtasks []swarm.Task
	for _, t := range all {
		if t.ParentID != nil && *t.ParentID == parent.ID {
			subtasks = append(subtasks, t)
		}
	}
	if len(subtasks) == 0 {
		return
	}
	for _, s := range subtasks {
		if s.Status == swarm.TaskFailed || s.Status == swarm.TaskCancelled {
			if err := o.queue.Submit(task.FailTask{TaskID: parent.ID, Reason: "subtask " + s.ID + " did not complete"}); err != nil {
				log.Printf("component=orchestrator action=fail_parent parent=%s err=%q", parent.ID, err)
			}
			return
		}
		if s.Status != swarm.TaskCompleted {
			return
		}
	}
	if err := o.queue.Submit(task.CompleteTask{TaskID: parent.ID, Result: "all subtasks completed"}); err != nil {
		log.Printf("component=orchestrator action=complete_parent parent=%s err=%q", parent.ID, err)
	}
}

// scanPendingReview runs the Reviewer over completed parent tasks and
// submits the resulting verdict.
func (o *Orchestrator) scanPendingReview(ctx context.Context) {
	tasks, err := o.queue.ListByStatus(swarm.TaskPendingReview)
	if err != nil {
		log.Printf("component=orchestrator action=list_review err=%q", err)
		return
	}
	for _, t := range tasks {
		if o.claim(t.ID) {
			go o.review(ctx, t)
		}
	}
}

func (o *Orchestrator) review(ctx context.Context, t swarm.Task) {
	defer o.release(t.ID)
	verdict, err := o.reviewer.Evaluate(ctx, t, swarm.Artifacts{Result: t.Result})
	if err != nil {
		log.Printf("component=orchestrator action=review task=%s err=%q", t.ID, err)
		return
	}
	if err := o.queue.Submit(task.ReviewVerdict{TaskID: t.ID, Pass: verdict.Pass, Feedback: verdict.Feedback}); err != nil {
		log.Printf("component=orchestrator action=review_submit task=%s err=%q", t.ID, err)
	}
}

// scanMerging invokes MergeTestRetry for every parent task sitting in
// 'merging'.
func (o *Orchestrator) scanMerging(ctx context.Context) {
	tasks, err := o.queue.ListByStatus(swarm.TaskMerging)
	if err != nil {
		log.Printf("component=orchestrator action=list_merging err=%q", err)
		return
	}
	for _, t := range tasks {
		if o.claim(t.ID) {
			go o.integrate(ctx, t)
		}
	}
}

func (o *Orchestrator) integrate(ctx context.Context, t swarm.Task) {
	defer o.release(t.ID)
	if err := o.merger.Integrate(ctx, t.ID); err != nil {
		log.Printf("component=orchestrator action=integrate task=%s err=%q", t.ID, err)
	}
}

func (o *Orchestrator) claim(taskID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[taskID] {
		return false
	}
	o.inFlight[taskID] = true
	return true
}

func (o *Orchestrator) release(taskID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, taskID)
}
