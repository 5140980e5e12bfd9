// ABOUTME: Default task delivery and offline-sweep wiring for a node whose agents are external MCP clients, not locally-spawned processes.
// ABOUTME: Delivery becomes a board post; staleness detection uses AgentRegistry.SweepOffline directly rather than agentreg.Monitor's output-polling loop (see DESIGN.md).
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voidlux/voidlux/internal/agentreg"
	"github.com/voidlux/voidlux/internal/board"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/task"
)

// boardDeliverer implements task.Deliverer by posting the task's work
// instructions to the agent-scoped board channel. An external agent process
// (any MCP client that has called agent_ready) polls its channel and picks
// the prompt up; it reports back via the task_complete/task_failed/
// task_progress/task_needs_input MCP tools rather than being captured.
type boardDeliverer struct {
	b *board.Board
}

func newBoardDeliverer(b *board.Board) *boardDeliverer {
	return &boardDeliverer{b: b}
}

func (d *boardDeliverer) DeliverTask(ctx context.Context, agentID string, t swarm.Task) error {
	channel := fmt.Sprintf("agent:%s", agentID)
	body := t.WorkInstructions
	if body == "" {
		body = t.Description
	}
	_, err := d.b.Post(channel, "", t.ID, body)
	return err
}

// runOfflineSweep periodically reaps agents whose heartbeat has gone stale
// and requeues whatever task they were holding. It covers the same ground as
// agentreg.Monitor's sweep half without that component's pollPass, which
// assumes a locally-captured session output stream this node never has.
func runOfflineSweep(ctx context.Context, reg *agentreg.Registry, q *task.Queue) {
	ticker := time.NewTicker(agentreg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			offline, err := reg.SweepOffline()
			if err != nil {
				log.Printf("component=offline_sweep err=%q", err)
				continue
			}
			for _, a := range offline {
				if a.CurrentTaskID == nil {
					continue
				}
				if err := q.Submit(task.OrphanRequeue{TaskID: *a.CurrentTaskID}); err != nil {
					log.Printf("component=offline_sweep action=requeue agent=%s task=%s err=%q", a.ID, *a.CurrentTaskID, err)
				}
			}
		}
	}
}
