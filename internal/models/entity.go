package models

// Entity is one Home Assistant state record as returned by GET /api/states.
type Entity struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged string                 `json:"last_changed"` // "2026-02-07T12:00:00.287133+00:00"
	LastUpdated string                 `json:"last_updated"`
}

// Snapshot is the full host state at one instant, keyed by entity id.
// Entries are shared between snapshots by pointer as long as they did not change,
// so two snapshots can be compared per entity with ==.
type Snapshot struct {
	States map[string]*Entity
	// Seq increases with every snapshot a store produces.
	Seq uint64
}

// Get returns the entry for id, or nil when the snapshot (or entry) is absent.
func (s *Snapshot) Get(id string) *Entity {
	if s == nil {
		return nil
	}
	return s.States[id]
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.States)
}
