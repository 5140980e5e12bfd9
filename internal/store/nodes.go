// ABOUTME: Node row persistence: upsert, get, list, and staleness scans for the 30s offline rule.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/voidlux/voidlux/internal/swarm"
)

const nodeColumns = `node_id, role, http_host, http_port, p2p_port, capabilities, agent_count,
	active_task_count, status, last_heartbeat, lamport_ts, registered_at, uptime_seconds, memory_usage_bytes`

func (s *Store) UpsertNode(n swarm.Node) error {
	_, err := s.db.Exec(`
		INSERT INTO nodes (`+nodeColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(node_id) DO UPDATE SET
			role=excluded.role, http_host=excluded.http_host, http_port=excluded.http_port,
			p2p_port=excluded.p2p_port, capabilities=excluded.capabilities,
			agent_count=excluded.agent_count, active_task_count=excluded.active_task_count,
			status=excluded.status, last_heartbeat=excluded.last_heartbeat,
			lamport_ts=excluded.lamport_ts, uptime_seconds=excluded.uptime_seconds,
			memory_usage_bytes=excluded.memory_usage_bytes`,
		n.NodeID, string(n.Role), n.HTTPHost, n.HTTPPort, n.P2PPort, marshalStrings(n.Capabilities),
		n.AgentCount, n.ActiveTaskCount, string(n.Status), formatTime(n.LastHeartbeat), n.LamportTS,
		formatTime(n.RegisteredAt), n.UptimeSeconds, n.MemoryUsageByte)
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", n.NodeID, err)
	}
	return nil
}

func scanNode(row interface {
	Scan(dest ...any) error
}) (swarm.Node, error) {
	var n swarm.Node
	var role, capsRaw, status, lastHeartbeat, registeredAt string

	err := row.Scan(&n.NodeID, &role, &n.HTTPHost, &n.HTTPPort, &n.P2PPort, &capsRaw,
		&n.AgentCount, &n.ActiveTaskCount, &status, &lastHeartbeat, &n.LamportTS,
		&registeredAt, &n.UptimeSeconds, &n.MemoryUsageByte)
	if err != nil {
		return swarm.Node{}, err
	}
	n.Role = swarm.NodeRole(role)
	n.Status = swarm.NodeStatus(status)
	n.Capabilities = unmarshalStrings(capsRaw)
	n.LastHeartbeat = parseTime(lastHeartbeat)
	n.RegisteredAt = parseTime(registeredAt)
	return n, nil
}

// GetNode loads a single node by id.
func (s *Store) GetNode(nodeID string) (swarm.Node, error) {
	row := s.db.QueryRow("SELECT "+nodeColumns+" FROM nodes WHERE node_id = ?", nodeID)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return swarm.Node{}, fmt.Errorf("node %s: %w", nodeID, sql.ErrNoRows)
	}
	if err != nil {
		return swarm.Node{}, fmt.Errorf("get node %s: %w", nodeID, err)
	}
	return n, nil
}

// ListNodes returns every known node.
func (s *Store) ListNodes() ([]swarm.Node, error) {
	rows, err := s.db.Query("SELECT " + nodeColumns + " FROM nodes ORDER BY node_id ASC")
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkStaleNodesOffline flips status to offline for every online node whose
// last_heartbeat is older than cutoff (the 30s rule).
func (s *Store) MarkStaleNodesOffline(cutoff time.Time) error {
	_, err := s.db.Exec(
		"UPDATE nodes SET status = ? WHERE last_heartbeat < ? AND status = ?",
		string(swarm.NodeOffline), formatTime(cutoff), string(swarm.NodeOnline))
	if err != nil {
		return fmt.Errorf("mark stale nodes offline: %w", err)
	}
	return nil
}

// SetNodeRole sets a node's role, used by LeaderElection on victory.
func (s *Store) SetNodeRole(nodeID string, role swarm.NodeRole) error {
	_, err := s.db.Exec("UPDATE nodes SET role = ? WHERE node_id = ?", string(role), nodeID)
	if err != nil {
		return fmt.Errorf("set node role %s: %w", nodeID, err)
	}
	return nil
}
