package dwd

// DefaultIcon is shown for warning types without a dedicated icon.
const DefaultIcon = "mdi:alert-circle-outline"

// IconResolver maps a warning type code (string or integer) to an icon id.
// Implementations must never fail; unknown codes map to a fallback.
type IconResolver func(code interface{}) string

// FallbackIcons resolves every code to DefaultIcon.
func FallbackIcons(interface{}) string {
	return DefaultIcon
}
