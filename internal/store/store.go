package store

import (
	"sync"
	"time"

	"github.com/lobbyisup/lobbyisup/pkg/lobby"
)

// DefaultTTL is how long an entry survives without being seen again.
const DefaultTTL = 120 * time.Second

// Entry is a lobby record together with the time it was last seen.
type Entry struct {
	Lobby    lobby.Lobby
	LastSeen time.Time
}

// Store is a thread-safe in-memory lobby table keyed by lobby id.
type Store struct {
	mu   sync.RWMutex
	data map[string]Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used to stamp LastSeen.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store with the given TTL. A non-positive ttl selects DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		data: make(map[string]Entry),
		ttl:  ttl,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the freshness window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Upsert stores or replaces the record for key and stamps it as seen now.
// The previous record, if any, is replaced wholesale.
func (s *Store) Upsert(key string, l lobby.Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Entry{Lobby: l, LastSeen: s.now()}
}

// Get returns the Entry for key and whether it was present.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	return e, ok
}

// Remove deletes key and reports whether it was present.
func (s *Store) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return false
	}
	delete(s.data, key)
	return true
}

// Clear removes every entry and returns how many were dropped.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.data)
	s.data = make(map[string]Entry, n)
	return n
}

// Replace swaps the whole table for records, all stamped as seen now.
// Readers observe either the old table or the new one.
func (s *Store) Replace(records map[string]lobby.Lobby) {
	now := s.now()
	data := make(map[string]Entry, len(records))
	for key, l := range records {
		data[key] = Entry{Lobby: l, LastSeen: now}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

// Patch removes deleted, then upserts updated, under one lock. It returns the
// number of deleted keys that were present.
func (s *Store) Patch(deleted []string, updated map[string]lobby.Lobby) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, key := range deleted {
		if _, ok := s.data[key]; ok {
			delete(s.data, key)
			removed++
		}
	}
	for key, l := range updated {
		s.data[key] = Entry{Lobby: l, LastSeen: now}
	}
	return removed
}

// Retain keeps only the entries for which keep returns true and returns the
// number of entries removed. keep must not call back into the Store.
func (s *Store) Retain(keep func(key string, e Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.data {
		if !keep(key, e) {
			delete(s.data, key)
			removed++
		}
	}
	return removed
}

// Sweep removes entries whose LastSeen is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-s.ttl)
	return s.Retain(func(_ string, e Entry) bool {
		return e.LastSeen.After(cutoff)
	})
}

// List returns a copy of every entry, keyed by lobby id.
func (s *Store) List() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Entry, len(s.data))
	for k, e := range s.data {
		out[k] = e
	}
	return out
}

// Count returns the number of entries currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
