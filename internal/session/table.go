// Package session implements the concurrent subscriber session table.
//
// A session is the record that an IMSI was seen and is considered active;
// it carries a single monotonic last-activity timestamp. The table holds at
// most one session per IMSI and owns the static blacklist loaded at startup.
package session

import (
	"sync"
	"time"
)

// TouchResult reports which case a Touch call took.
type TouchResult int

const (
	// Created indicates no session existed and one was inserted.
	Created TouchResult = iota

	// Refreshed indicates an existing session had its timestamp updated.
	Refreshed
)

// String returns the human-readable touch result name.
func (r TouchResult) String() string {
	switch r {
	case Created:
		return "created"
	case Refreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

// Table is the mapping IMSI -> last-seen timestamp shared by the datagram
// loop, the expiry sweeper, the offload drainer, and the admin HTTP
// handlers.
//
// All operations are linearizable with respect to one another: a single
// mutex guards the map, and every critical section is O(1) except Sweep
// (O(N)) and DrainBatch (O(n)). Touch runs its on-create callback inside
// the critical section so a session can never be observed by Sweep or
// DrainBatch before its create record exists; all other record writes
// happen after the table operation returns. Lock order is always table
// first, never the reverse.
//
// Timestamps come from time.Now and age comparisons rely on its monotonic
// clock reading, so wall-clock jumps cannot expire or resurrect sessions.
type Table struct {
	mu       sync.Mutex
	sessions map[string]time.Time

	// blacklist is immutable after construction, so reads need no lock.
	blacklist map[string]struct{}
}

// NewTable creates an empty session table with the given blacklist.
// The blacklist is fixed for the lifetime of the table.
func NewTable(blacklist []string) *Table {
	bl := make(map[string]struct{}, len(blacklist))
	for _, imsi := range blacklist {
		bl[imsi] = struct{}{}
	}

	return &Table{
		sessions:  make(map[string]time.Time),
		blacklist: bl,
	}
}

// Touch inserts a session for imsi with the current time if absent, or
// refreshes the stored timestamp if present, and reports which occurred.
//
// On insertion, onCreate (if non-nil) runs inside the critical section,
// after the session is stored but before the lock is released. A drain or
// sweep can therefore never remove a session whose create record has not
// been written yet. onCreate must not call back into the table.
func (t *Table) Touch(imsi string, onCreate func()) TouchResult {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	_, exists := t.sessions[imsi]
	t.sessions[imsi] = now

	if exists {
		return Refreshed
	}

	if onCreate != nil {
		onCreate()
	}
	return Created
}

// Contains reports whether a session exists for imsi.
func (t *Table) Contains(imsi string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.sessions[imsi]
	return ok
}

// Len returns the number of active sessions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.sessions)
}

// Sweep atomically removes and returns every IMSI whose age relative to
// now is greater than or equal to ttl. The comparison is inclusive: an
// entry exactly at the TTL boundary is removed.
func (t *Table) Sweep(now time.Time, ttl time.Duration) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	for imsi, ts := range t.sessions {
		if now.Sub(ts) >= ttl {
			expired = append(expired, imsi)
		}
	}
	for _, imsi := range expired {
		delete(t.sessions, imsi)
	}

	return expired
}

// DrainBatch removes up to n sessions in unspecified order and returns
// their IMSIs. Returns nil when the table is empty.
func (t *Table) DrainBatch(n int) []string {
	if n <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	drained := make([]string, 0, min(n, len(t.sessions)))
	for imsi := range t.sessions {
		if len(drained) == n {
			break
		}
		drained = append(drained, imsi)
	}
	for _, imsi := range drained {
		delete(t.sessions, imsi)
	}

	if len(drained) == 0 {
		return nil
	}
	return drained
}

// IsBlacklisted reports whether imsi is in the static blacklist.
func (t *Table) IsBlacklisted(imsi string) bool {
	_, ok := t.blacklist[imsi]
	return ok
}
