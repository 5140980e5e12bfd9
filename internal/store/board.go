// ABOUTME: BoardMessage row persistence; a post is upserted by id, with no last-writer-wins check.
package store

import (
	"fmt"

	"github.com/voidlux/voidlux/internal/swarm"
)

const boardColumns = `id, node_id, agent_id, task_id, channel, body, lamport_ts, created_at`

func (s *Store) UpsertBoardMessage(m swarm.BoardMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO board_messages (`+boardColumns+`) VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			lamport_ts=excluded.lamport_ts, body=excluded.body, channel=excluded.channel`,
		m.ID, m.NodeID, m.AgentID, m.TaskID, m.Channel, m.Body, m.LamportTS, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert board message %s: %w", m.ID, err)
	}
	return nil
}

func scanBoardMessage(row interface {
	Scan(dest ...any) error
}) (swarm.BoardMessage, error) {
	var m swarm.BoardMessage
	var createdAt string
	err := row.Scan(&m.ID, &m.NodeID, &m.AgentID, &m.TaskID, &m.Channel, &m.Body, &m.LamportTS, &createdAt)
	if err != nil {
		return swarm.BoardMessage{}, err
	}
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

// ListBoardMessages returns every message on a channel, newest first.
func (s *Store) ListBoardMessages(channel string) ([]swarm.BoardMessage, error) {
	rows, err := s.db.Query(
		"SELECT "+boardColumns+" FROM board_messages WHERE channel = ? ORDER BY lamport_ts DESC",
		channel)
	if err != nil {
		return nil, fmt.Errorf("list board messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.BoardMessage
	for rows.Next() {
		m, err := scanBoardMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan board message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TasksSince returns every task whose lamport_ts is above since, oldest
// first, used by AntiEntropy's SYNC_RSP. Only tasks are covered; agents,
// nodes and board messages are not part of this pull sync.
func (s *Store) TasksSince(since uint64) ([]swarm.Task, error) {
	rows, err := s.db.Query("SELECT "+taskColumns+" FROM tasks WHERE lamport_ts > ? ORDER BY lamport_ts ASC", since)
	if err != nil {
		return nil, fmt.Errorf("tasks since %d: %w", since, err)
	}
	defer func() { _ = rows.Close() }()

	var out []swarm.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MaxTaskLamportTS returns the highest lamport_ts across all tasks, the
// local_max used to seed an outbound SYNC_REQ.
func (s *Store) MaxTaskLamportTS() (uint64, error) {
	var max uint64
	err := s.db.QueryRow("SELECT COALESCE(MAX(lamport_ts), 0) FROM tasks").Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max task lamport_ts: %w", err)
	}
	return max, nil
}
