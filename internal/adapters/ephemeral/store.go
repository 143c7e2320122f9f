// Package ephemeral provides short-lived in-process stores keyed by snowflake
// ids. Entry lifetime is derived from the creation timestamp embedded in the
// key itself, so expiry is a pure function of (now, key) with no background
// timer to manage.
package ephemeral

import (
	"sync"
	"time"

	"github.com/universalbff/user-api/internal/snowflake"
)

// DefaultMaxAge is the lifetime of sessions and retrieval codes. These only
// bridge a redirect round trip, not persistent user sessions.
const DefaultMaxAge = time.Minute

// Store maps snowflake ids to values of type V. All operations serialize on a
// single mutex; read-modify-write sequences (redeem-once, replace-in-place)
// each execute inside one critical section.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[snowflake.ID]V
	maxAge  time.Duration
	now     func() time.Time
}

// NewStore creates a store whose entries expire maxAge after the creation
// time encoded in their key. A non-positive maxAge falls back to
// DefaultMaxAge.
func NewStore[V any](maxAge time.Duration) *Store[V] {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store[V]{
		entries: make(map[snowflake.ID]V),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// NewStoreWithClock creates a store with an injectable clock for tests.
func NewStoreWithClock[V any](maxAge time.Duration, now func() time.Time) *Store[V] {
	s := NewStore[V](maxAge)
	if now != nil {
		s.now = now
	}
	return s
}

// expired reports whether the key's embedded creation time is older than maxAge.
func (s *Store[V]) expired(id snowflake.ID) bool {
	return snowflake.DecodeTime(id).Add(s.maxAge).Before(s.now())
}

// Put inserts or overwrites the value for id.
func (s *Store[V]) Put(id snowflake.ID, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = value
}

// Get returns the value for id. Absent and expired keys both report not found;
// expired entries are left for the next sweep.
func (s *Store[V]) Get(id snowflake.ID) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	if s.expired(id) {
		return zero, false
	}
	v, ok := s.entries[id]
	if !ok {
		return zero, false
	}
	return v, true
}

// Replace overwrites the value for an existing, non-expired id. Returns false
// without mutation when the id is absent or expired.
func (s *Store[V]) Replace(id snowflake.ID, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expired(id) {
		return false
	}
	if _, ok := s.entries[id]; !ok {
		return false
	}
	s.entries[id] = value
	return true
}

// Take atomically reads and deletes the value for id, enforcing single-use
// semantics. Exactly one of any number of concurrent callers succeeds.
func (s *Store[V]) Take(id snowflake.ID) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	if s.expired(id) {
		return zero, false
	}
	v, ok := s.entries[id]
	if !ok {
		return zero, false
	}
	delete(s.entries, id)
	return v, true
}

// Remove deletes the entry for id if present.
func (s *Store[V]) Remove(id snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Sweep deletes all expired entries. Called opportunistically on every
// session or code creation; the live set is small, so O(n) is acceptable.
func (s *Store[V]) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.entries {
		if s.expired(id) {
			delete(s.entries, id)
		}
	}
}

// Len returns the current entry count, including not-yet-swept expired ones.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
