// ABOUTME: Agent row persistence: upsert, get, list, and offline-detection scans.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/voidlux/voidlux/internal/swarm"
)

const agentColumns = `id, node_id, name, tool, model, capabilities, status, current_task_id,
	session_handle, project_path, max_concurrent_tasks, last_heartbeat, lamport_ts`

func (s *Store) UpsertAgent(a swarm.Agent) error {
	_, err := s.db.Exec(`
		INSERT INTO agents (`+agentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			node_id=excluded.node_id, name=excluded.name, tool=excluded.tool, model=excluded.model,
			capabilities=excluded.capabilities, status=excluded.status,
			current_task_id=excluded.current_task_id, session_handle=excluded.session_handle,
			project_path=excluded.project_path, max_concurrent_tasks=excluded.max_concurrent_tasks,
			last_heartbeat=excluded.last_heartbeat, lamport_ts=excluded.lamport_ts`,
		a.ID, a.NodeID, a.Name, a.Tool, a.Model, marshalStrings(a.Capabilities), string(a.Status),
		nullableString(a.CurrentTaskID), a.SessionHandle, a.ProjectPath, a.MaxConcurrentTasks,
		formatTime(a.LastHeartbeat), a.LamportTS)
	if err != nil {
		return fmt.Errorf("upsert agent %s: %w", a.ID, err)
	}
	return nil
}

func scanAgent(row interface {
	Scan(dest ...any) error
}) (swarm.Agent, error) {
	var a swarm.Agent
	var status, capsRaw, lastHeartbeat string
	var currentTaskID sql.NullString

	err := row.Scan(&a.ID, &a.NodeID, &a.Name, &a.Tool, &a.Model, &capsRaw, &status,
		&currentTaskID, &a.SessionHandle, &a.ProjectPath, &a.MaxConcurrentTasks,
		&lastHeartbeat, &a.LamportTS)
	if err != nil {
		return swarm.Agent{}, err
	}
	a.Status = swarm.AgentStatus(status)
	a.Capabilities = unmarshalStrings(capsRaw)
	a.LastHeartbeat = parseTime(lastHeartbeat)
	if currentTaskID.Valid {
		v := currentTaskID.String
		a.CurrentTaskID = &v
	}
	return a, nil
}

// GetAgent loads a single agent by id.
func (s *Store) GetAgent(id string) (swarm.Agent, error) {
	row := s.db.QueryRow("SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return swarm.Agent{}, swarm.ErrAgentNotFound
	}
	if err != nil {
		return swarm.Agent{}, fmt.Errorf("get agent %s: %w", id, err)
	}
	return a, nil
}

// ListAgents returns every known agent.
func (s *Store) ListAgents() ([]swarm.Agent, error) {
	rows, err := s.db.Query("SELECT " + agentColumns + " FROM agents ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListIdleAgentsForNode returns every local agent currently idle, owned by nodeID.
func (s *Store) ListIdleAgentsForNode(nodeID string) ([]swarm.Agent, error) {
	rows, err := s.db.Query(
		"SELECT "+agentColumns+" FROM agents WHERE node_id = ? AND status = ? ORDER BY name ASC",
		nodeID, string(swarm.AgentIdle))
	if err != nil {
		return nil, fmt.Errorf("list idle agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// StaleAgents returns every agent whose last_heartbeat is older than cutoff
// and is not already marked offline, for AgentMonitor's 45s offline sweep.
func (s *Store) StaleAgents(cutoff time.Time) ([]swarm.Agent, error) {
	rows, err := s.db.Query(
		"SELECT "+agentColumns+" FROM agents WHERE last_heartbeat < ? AND status != ?",
		formatTime(cutoff), string(swarm.AgentOffline))
	if err != nil {
		return nil, fmt.Errorf("stale agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAgentStatus writes a new status (and optionally clears current_task_id).
func (s *Store) SetAgentStatus(agentID string, status swarm.AgentStatus, clearTask bool, now time.Time) error {
	if clearTask {
		_, err := s.db.Exec(
			"UPDATE agents SET status = ?, current_task_id = NULL, last_heartbeat = ? WHERE id = ?",
			string(status), formatTime(now), agentID)
		if err != nil {
			return fmt.Errorf("set agent status %s: %w", agentID, err)
		}
		return nil
	}
	_, err := s.db.Exec("UPDATE agents SET status = ?, last_heartbeat = ? WHERE id = ?",
		string(status), formatTime(now), agentID)
	if err != nil {
		return fmt.Errorf("set agent status %s: %w", agentID, err)
	}
	return nil
}
