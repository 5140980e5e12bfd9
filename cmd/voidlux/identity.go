// ABOUTME: Resolves this process's stable node_id, persisting it across restarts via the node_state table.
// ABOUTME: Uses ulid/v2 for the id itself (monotonic, sortable, 128-bit) rather than a bare UUID.
package main

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/voidlux/voidlux/internal/store"
)

const nodeIDKey = "node_id"

// resolveNodeID loads the node's persisted identity, or mints and persists a
// fresh one on first boot. The id is stable across restarts as
// requires ("created on first boot ... persisted").
func resolveNodeID(st *store.Store) (string, error) {
	if existing, ok, err := st.NodeStateGet(nodeIDKey); err != nil {
		return "", fmt.Errorf("load node_id: %w", err)
	} else if ok && existing != "" {
		return existing, nil
	}

	id := ulid.Make().String()
	if err := st.NodeStateSet(nodeIDKey, id); err != nil {
		return "", fmt.Errorf("persist node_id: %w", err)
	}
	return id, nil
}
