// ABOUTME: Top-level Bubble Tea model for voidluxtop: polls a node on a tick and renders tabbed tables.
// ABOUTME: Standard Init/Update/View Bubble Tea model, tea.Batch of tick + fetch commands, driven by swarm snapshots.
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/voidlux/voidlux/internal/swarm"
)

// tab identifies which panel is currently shown.
type tab int

const (
	tabNodes tab = iota
	tabAgents
	tabTasks
	tabBoard
	tabCount
)

func (t tab) label() string {
	switch t {
	case tabNodes:
		return "Nodes"
	case tabAgents:
		return "Agents"
	case tabTasks:
		return "Tasks"
	case tabBoard:
		return "Board"
	default:
		return "?"
	}
}

// snapshotMsg carries a poll result into the Bubble Tea update loop.
type snapshotMsg status

// tickMsg fires the next poll.
type tickMsg time.Time

// model is the voidluxtop top-level Bubble Tea model.
type model struct {
	client   *client
	interval time.Duration

	active tab
	tables [tabCount]table.Model

	lastErr    error
	lastPolled time.Time
	width      int
	height     int
}

func newModel(c *client, interval time.Duration) model {
	m := model{client: c, interval: interval}
	m.tables[tabNodes] = newTable([]table.Column{
		{Title: "Node", Width: 14},
		{Title: "Role", Width: 10},
		{Title: "Status", Width: 8},
		{Title: "Agents", Width: 6},
		{Title: "Active", Width: 6},
		{Title: "Last heartbeat", Width: 20},
	})
	m.tables[tabAgents] = newTable([]table.Column{
		{Title: "Name", Width: 20},
		{Title: "Node", Width: 10},
		{Title: "Status", Width: 8},
		{Title: "Tool", Width: 10},
		{Title: "Task", Width: 10},
		{Title: "Model", Width: 14},
	})
	m.tables[tabTasks] = newTable([]table.Column{
		{Title: "ID", Width: 10},
		{Title: "Title", Width: 28},
		{Title: "Status", Width: 14},
		{Title: "Assignee", Width: 10},
		{Title: "Attempts", Width: 8},
		{Title: "Priority", Width: 8},
	})
	m.tables[tabBoard] = newTable([]table.Column{
		{Title: "Channel", Width: 14},
		{Title: "Agent", Width: 10},
		{Title: "Task", Width: 10},
		{Title: "Body", Width: 40},
	})
	return m
}

func newTable(cols []table.Column) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(false),
		table.WithHeight(15),
	)
	return t
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), tickCmd(m.interval))
}

func (m model) pollCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return snapshotMsg(m.client.fetch(ctx))
	}
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		for i := range m.tables {
			m.tables[i].SetHeight(m.height - 6)
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.pollCmd(), tickCmd(m.interval))

	case snapshotMsg:
		m.lastPolled = time.Now()
		m.lastErr = msg.err
		if msg.err == nil {
			m.applySnapshot(status(msg))
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "right", "l":
			m.active = (m.active + 1) % tabCount
			return m, nil
		case "shift+tab", "left", "h":
			m.active = (m.active - 1 + tabCount) % tabCount
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.tables[m.active], cmd = m.tables[m.active].Update(msg)
	return m, cmd
}

func (m *model) applySnapshot(s status) {
	m.tables[tabNodes].SetRows(nodeRows(s.nodes))
	m.tables[tabAgents].SetRows(agentRows(s.agents))
	m.tables[tabTasks].SetRows(taskRows(s.tasks))
	m.tables[tabBoard].SetRows(boardRows(s.board))
}

func nodeRows(nodes []swarm.Node) []table.Row {
	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		id := n.NodeID
		if len(id) > 12 {
			id = id[:12]
		}
		rows = append(rows, table.Row{
			id, string(n.Role), string(n.Status),
			strconv.Itoa(n.AgentCount), strconv.Itoa(n.ActiveTaskCount),
			n.LastHeartbeat.Format("15:04:05"),
		})
	}
	return rows
}

func agentRows(agents []swarm.Agent) []table.Row {
	rows := make([]table.Row, 0, len(agents))
	for _, a := range agents {
		taskID := "-"
		if a.CurrentTaskID != nil {
			taskID = shortID(*a.CurrentTaskID)
		}
		rows = append(rows, table.Row{
			a.Name, shortID(a.NodeID), string(a.Status), a.Tool, taskID, a.Model,
		})
	}
	return rows
}

func taskRows(tasks []swarm.Task) []table.Row {
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		assignee := "-"
		if t.AssignedTo != nil {
			assignee = shortID(*t.AssignedTo)
		}
		rows = append(rows, table.Row{
			shortID(t.ID), truncate(t.Title, 28), string(t.Status), assignee,
			fmt.Sprintf("%d/%d", t.MergeAttempts, swarm.MaxMergeAttempts),
			strconv.Itoa(t.Priority),
		})
	}
	return rows
}

func boardRows(msgs []swarm.BoardMessage) []table.Row {
	rows := make([]table.Row, 0, len(msgs))
	for _, b := range msgs {
		rows = append(rows, table.Row{
			b.Channel, shortID(b.AgentID), shortID(b.TaskID), truncate(b.Body, 40),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}

func (m model) View() string {
	return renderView(m)
}
