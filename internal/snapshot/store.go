package snapshot

import (
	"sync"

	"github.com/kjstillabower/dwd-warning-service/internal/models"
)

// Store holds the latest host snapshot. Every Apply produces a new immutable
// Snapshot; entities whose state and timestamps are unchanged keep the pointer
// they had in the previous snapshot, changed ones get a fresh *models.Entity.
// Snapshots returned by the Store must not be modified.
type Store struct {
	mu      sync.RWMutex
	current *models.Snapshot
	seq     uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the latest snapshot, or nil before the first Apply.
func (s *Store) Current() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply merges a full state listing into a new snapshot and makes it current.
// It returns the previous and the new snapshot.
func (s *Store) Apply(entities []models.Entity) (prev, next *models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.current
	s.seq++
	next = &models.Snapshot{States: make(map[string]*models.Entity, len(entities)), Seq: s.seq}
	for i := range entities {
		e := entities[i]
		if e.EntityID == "" {
			continue
		}
		if old := prev.Get(e.EntityID); old != nil && sameRecord(old, &e) {
			next.States[e.EntityID] = old
			continue
		}
		fresh := e
		next.States[e.EntityID] = &fresh
	}
	s.current = next
	return prev, next
}

// sameRecord mirrors Home Assistant semantics: last_updated moves whenever the
// state or any attribute changes.
func sameRecord(a, b *models.Entity) bool {
	if a.LastUpdated == "" || b.LastUpdated == "" {
		return false
	}
	return a.State == b.State &&
		a.LastUpdated == b.LastUpdated &&
		a.LastChanged == b.LastChanged &&
		(a.Attributes == nil) == (b.Attributes == nil)
}
