package dwd

import "github.com/kjstillabower/dwd-warning-service/internal/models"

// ShouldRecompute reports whether a card needs to be decoded again.
//
// Entries are compared by pointer, not by content: the caller must hand in
// snapshots where a changed entity is always a new *models.Entity and an
// unchanged one keeps its pointer (see the snapshot package).
func ShouldRecompute(oldSnap, newSnap *models.Snapshot, cfg *CardConfig, configChanged bool) bool {
	if configChanged {
		return true
	}
	if oldSnap == nil || newSnap == nil || cfg == nil {
		return true
	}
	for _, id := range trackedIDs(cfg) {
		if id != "" && oldSnap.Get(id) != newSnap.Get(id) {
			return true
		}
	}
	return false
}

func trackedIDs(cfg *CardConfig) [2]string {
	return [2]string{cfg.PrimarySourceID, cfg.SecondaryID()}
}
