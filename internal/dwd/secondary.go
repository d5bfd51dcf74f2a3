package dwd

import "strings"

const (
	currentLevelToken = "_aktuelle_warnstufe"
	advanceLevelToken = "_vorwarnstufe"
)

// ResolveSecondary returns configuredID when set. Otherwise it derives the
// pre-warning entity from primaryID by replacing the first "_aktuelle_warnstufe"
// with "_vorwarnstufe". An id without that token is returned unchanged, so the
// secondary source then points at the primary one.
func ResolveSecondary(primaryID, configuredID string) string {
	if configuredID != "" {
		return configuredID
	}
	return strings.Replace(primaryID, currentLevelToken, advanceLevelToken, 1)
}
