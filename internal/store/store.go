// ABOUTME: SQLite-backed persistence for tasks, agents, nodes, and board messages with WAL journaling.
// ABOUTME: Single-writer-per-table discipline via short transactions, indexed for the lookups each component needs.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single SQLite database file holding the full local replica.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	node_id TEXT PRIMARY KEY,
	role TEXT NOT NULL,
	http_host TEXT NOT NULL,
	http_port INTEGER NOT NULL,
	p2p_port INTEGER NOT NULL,
	capabilities TEXT NOT NULL,
	agent_count INTEGER NOT NULL,
	active_task_count INTEGER NOT NULL,
	status TEXT NOT NULL,
	last_heartbeat TEXT NOT NULL,
	lamport_ts INTEGER NOT NULL,
	registered_at TEXT NOT NULL,
	uptime_seconds INTEGER NOT NULL,
	memory_usage_bytes INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	node_id TEXT NOT NULL,
	name TEXT NOT NULL,
	tool TEXT NOT NULL,
	model TEXT NOT NULL,
	capabilities TEXT NOT NULL,
	status TEXT NOT NULL,
	current_task_id TEXT,
	session_handle TEXT NOT NULL,
	project_path TEXT NOT NULL,
	max_concurrent_tasks INTEGER NOT NULL,
	last_heartbeat TEXT NOT NULL,
	lamport_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL,
	required_capabilities TEXT NOT NULL,
	assigned_to TEXT,
	result TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	progress TEXT NOT NULL DEFAULT '',
	project_path TEXT NOT NULL,
	context TEXT NOT NULL DEFAULT '',
	lamport_ts INTEGER NOT NULL,
	claimed_at TEXT,
	completed_at TEXT,
	parent_id TEXT,
	work_instructions TEXT NOT NULL DEFAULT '',
	acceptance_criteria TEXT NOT NULL DEFAULT '',
	review_status TEXT NOT NULL DEFAULT '',
	review_feedback TEXT NOT NULL DEFAULT '',
	archived INTEGER NOT NULL DEFAULT 0,
	git_branch TEXT NOT NULL DEFAULT '',
	merge_attempts INTEGER NOT NULL DEFAULT 0,
	test_command TEXT NOT NULL DEFAULT '',
	depends_on TEXT NOT NULL DEFAULT '[]',
	auto_merge INTEGER NOT NULL DEFAULT 0,
	pr_url TEXT NOT NULL DEFAULT '',
	complexity TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_lamport_ts ON tasks(lamport_ts);

CREATE TABLE IF NOT EXISTS board_messages (
	id TEXT PRIMARY KEY,
	node_id TEXT NOT NULL,
	agent_id TEXT NOT NULL DEFAULT '',
	task_id TEXT NOT NULL DEFAULT '',
	channel TEXT NOT NULL,
	body TEXT NOT NULL,
	lamport_ts INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_board_lamport_ts ON board_messages(lamport_ts);

CREATE TABLE IF NOT EXISTS node_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Open opens or creates a SQLite database at path and runs the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer-per-table discipline

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const rfc3339 = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(rfc3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(rfc3339, s)
	return t
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(rfc3339), Valid: true}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(rfc3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func joinCSV(items []string) string {
	return strings.Join(items, ",")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func marshalStrings(items []string) string {
	raw, _ := json.Marshal(items)
	return string(raw)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

// NodeStateGet reads a key from the node_state table.
func (s *Store) NodeStateGet(key string) (string, bool, error) {
	var val string
	err := s.db.QueryRow("SELECT value FROM node_state WHERE key = ?", key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("node_state get %s: %w", key, err)
	}
	return val, true, nil
}

// NodeStateSet upserts a key in the node_state table.
func (s *Store) NodeStateSet(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO node_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("node_state set %s: %w", key, err)
	}
	return nil
}

// FlushLamportClock persists the given clock value under the node_state
// "lamport_clock" key, as required on orderly shutdown.
func (s *Store) FlushLamportClock(ts uint64) error {
	return s.NodeStateSet("lamport_clock", fmt.Sprintf("%d", ts))
}

// LoadLamportClock reads back the last flushed clock value, or 0 if none.
func (s *Store) LoadLamportClock() (uint64, error) {
	val, ok, err := s.NodeStateGet("lamport_clock")
	if err != nil || !ok {
		return 0, err
	}
	var ts uint64
	if _, err := fmt.Sscanf(val, "%d", &ts); err != nil {
		return 0, fmt.Errorf("parse lamport_clock: %w", err)
	}
	return ts, nil
}
