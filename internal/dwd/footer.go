package dwd

import "github.com/kjstillabower/dwd-warning-service/internal/models"

const (
	attrAttribution = "attribution"
	attrRegionName  = "region_name"
)

// Footer holds the text shown under a card's warnings.
type Footer struct {
	Attribution *string
	RegionName  *string
}

// ReadFooter reads the footer text of a card from its primary entity.
// The region is only reported while the primary source has warnings; the
// attribution is omitted when the card disables it.
func ReadFooter(snap *models.Snapshot, cfg *CardConfig) Footer {
	var f Footer
	if cfg == nil {
		return f
	}
	entity := snap.Get(cfg.PrimarySourceID)
	if entity == nil || entity.Attributes == nil {
		return f
	}
	if cfg.AttributionShown() {
		f.Attribution = optionalString(entity.Attributes[attrAttribution])
	}
	if coerceCount(entity.Attributes[attrWarningCount]) > 0 {
		f.RegionName = optionalString(entity.Attributes[attrRegionName])
	}
	return f
}
