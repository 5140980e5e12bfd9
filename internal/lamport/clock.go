// ABOUTME: LamportClock is a monotonic logical counter used to order gossiped events causally.
// ABOUTME: tick() advances for local events, witness() merges a remote timestamp into the clock.
package lamport

import "sync"

// Clock is a thread-safe Lamport logical clock.
type Clock struct {
	mu  sync.Mutex
	now uint64
}

// New creates a Clock starting at the given timestamp (0 for a fresh node).
func New(start uint64) *Clock {
	return &Clock{now: start}
}

// Tick advances the clock for a local event and returns the new timestamp.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// Witness merges a remote timestamp into the clock: now = max(now, remote) + 1.
// Returns the resulting local timestamp.
func (c *Clock) Witness(remote uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.now {
		c.now = remote
	}
	c.now++
	return c.now
}

// Peek returns the current timestamp without advancing it.
func (c *Clock) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Observe folds a remote timestamp into the clock without the +1 bump used by
// Witness, for callers that only need to track the high-water mark (e.g. the
// anti-entropy cursor) rather than register a new causal event.
func (c *Clock) Observe(remote uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.now {
		c.now = remote
	}
}
