// ABOUTME: HTTP polling client over one node's httpapi surface (/tasks, /agents, /nodes, /board).
// ABOUTME: Deliberately minimal: voidluxtop is a read-only viewer, not a swarm participant, so it never joins the mesh itself.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voidlux/voidlux/internal/swarm"
)

// client fetches snapshots from a single node's HTTP surface. It deliberately
// has no knowledge of the gossip mesh: the node it points at is already
// gossip-converged with the rest of the swarm, so one HTTP endpoint is enough
// to render a swarm-wide view.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) Tasks(ctx context.Context) ([]swarm.Task, error) {
	var tasks []swarm.Task
	err := c.getJSON(ctx, "/tasks/", &tasks)
	return tasks, err
}

func (c *client) Agents(ctx context.Context) ([]swarm.Agent, error) {
	var agents []swarm.Agent
	err := c.getJSON(ctx, "/agents/", &agents)
	return agents, err
}

func (c *client) Nodes(ctx context.Context) ([]swarm.Node, error) {
	var nodes []swarm.Node
	err := c.getJSON(ctx, "/nodes/", &nodes)
	return nodes, err
}

func (c *client) Board(ctx context.Context) ([]swarm.BoardMessage, error) {
	var msgs []swarm.BoardMessage
	err := c.getJSON(ctx, "/board/", &msgs)
	return msgs, err
}

// status is a snapshot of everything the HTTP surface offers, fetched once
// per poll tick.
type status struct {
	tasks  []swarm.Task
	agents []swarm.Agent
	nodes  []swarm.Node
	board  []swarm.BoardMessage
	err    error
}

func (c *client) fetch(ctx context.Context) status {
	var s status
	if s.tasks, s.err = c.Tasks(ctx); s.err != nil {
		return s
	}
	if s.agents, s.err = c.Agents(ctx); s.err != nil {
		return s
	}
	if s.nodes, s.err = c.Nodes(ctx); s.err != nil {
		return s
	}
	s.board, s.err = c.Board(ctx)
	return s
}
