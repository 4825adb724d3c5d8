// Package ratelimit implements in-process fixed-window admission control keyed by client identity.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

// Identity is the best-effort client key used as a rate limit bucket.
type Identity string

// UnknownIdentity is the shared bucket for requests without a usable identity.
const UnknownIdentity Identity = "unknown"

// WindowEntry captures the counter for one identity in its current window.
type WindowEntry struct {
	Count     int
	ResetTime time.Time
}

// expired reports whether the window is over at now.
func (e WindowEntry) expired(now time.Time) bool {
	return !e.ResetTime.After(now)
}

type shard struct {
	mu      sync.Mutex
	entries map[Identity]WindowEntry
}

// Store maps identities to window entries. All read-modify-write sequences on
// an entry happen under that entry's shard lock.
type Store struct {
	window time.Duration
	shards []*shard
}

// NewStore creates a store for the given window size spread over shardCount locks.
func NewStore(window time.Duration, shardCount int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	if shardCount <= 0 {
		shardCount = DefaultShards
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[Identity]WindowEntry)}
	}

	return &Store{window: window, shards: shards}
}

// Window returns the configured window size.
func (s *Store) Window() time.Duration {
	return s.window
}

func (s *Store) shardFor(id Identity) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// GetOrCreate returns the live entry for id, replacing a missing or expired one
// with a fresh zero-count window starting at now.
func (s *Store) GetOrCreate(id Identity, now time.Time) WindowEntry {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	return s.getOrCreateLocked(sh, id, now)
}

func (s *Store) getOrCreateLocked(sh *shard, id Identity, now time.Time) WindowEntry {
	entry, ok := sh.entries[id]
	if !ok || entry.expired(now) {
		entry = WindowEntry{Count: 0, ResetTime: now.Add(s.window)}
		sh.entries[id] = entry
	}
	return entry
}

// Increment adds one to the stored count for id. It reports false when no
// entry exists.
func (s *Store) Increment(id Identity) (WindowEntry, bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[id]
	if !ok {
		return WindowEntry{}, false
	}
	entry.Count++
	sh.entries[id] = entry
	return entry, true
}

// Hit performs get-or-create followed by increment as one atomic step and
// returns the updated entry.
func (s *Store) Hit(id Identity, now time.Time) WindowEntry {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry := s.getOrCreateLocked(sh, id, now)
	entry.Count++
	sh.entries[id] = entry
	return entry
}

// Sweep removes every entry whose reset time is before now and returns how
// many were removed.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, entry := range sh.entries {
			if entry.ResetTime.Before(now) {
				delete(sh.entries, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked identities.
func (s *Store) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}

// Lookup returns the stored entry for id without modifying it.
func (s *Store) Lookup(id Identity) (WindowEntry, bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[id]
	return entry, ok
}

// Snapshot copies the current entries. Shards are copied one at a time, so the
// result is not a single point-in-time view across shards.
func (s *Store) Snapshot() map[Identity]WindowEntry {
	out := make(map[Identity]WindowEntry)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, entry := range sh.entries {
			out[id] = entry
		}
		sh.mu.Unlock()
	}
	return out
}
