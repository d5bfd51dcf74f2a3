package dwd

import (
	"math"

	"github.com/kjstillabower/dwd-warning-service/internal/models"
)

// FallbackSize is reported when there is no configuration or no data to size.
const FallbackSize = 1

// One grid unit is roughly 50px of card height.
const (
	gridUnitHeight = 50.0
	baseHeight     = 10 // padding and border
	warningHeight  = 45
	footerHeight   = 19
	headerHeight   = 30

	emptySize  = 2
	minRows    = 2
	wideCols   = 12
	narrowCols = 6
)

// SizeOptions are the display flags that affect the card height.
type SizeOptions struct {
	ShowHeader    bool
	ShowFooter    bool
	HideWhenEmpty bool
}

// EstimateSize maps the warning counts to grid units, rounding up.
func EstimateSize(primaryCount, secondaryCount int, opts SizeOptions) int {
	if primaryCount == 0 && secondaryCount == 0 {
		if opts.HideWhenEmpty {
			return 0
		}
		return emptySize
	}

	header := 0
	if opts.ShowHeader {
		header = headerHeight
	}
	footer := 0
	if opts.ShowFooter {
		footer = footerHeight
	}

	total := baseHeight + warningHeight*primaryCount + footer + header
	if secondaryCount > 0 {
		total += header + warningHeight*secondaryCount
	}
	return int(math.Ceil(float64(total) / gridUnitHeight))
}

// CardSize sizes a card against a snapshot. It returns FallbackSize when the
// card has no config, there is no snapshot yet, or the primary entity is missing.
func CardSize(snap *models.Snapshot, cfg *CardConfig) int {
	if cfg == nil || snap == nil {
		return FallbackSize
	}
	if snap.Get(cfg.PrimarySourceID) == nil {
		return FallbackSize
	}
	return EstimateSize(
		Count(snap, cfg.PrimarySourceID),
		Count(snap, cfg.SecondaryID()),
		cfg.SizeOptions(),
	)
}

// Layout returns the grid hints for a card of the given size.
func Layout(cfg *CardConfig, size int) models.LayoutOptions {
	cols := wideCols
	if cfg != nil && cfg.CompactHeadline {
		cols = narrowCols
	}
	rows := size
	if rows < minRows {
		rows = minRows
	}
	return models.LayoutOptions{
		GridRows:       rows,
		GridMinRows:    minRows,
		GridColumns:    cols,
		GridMinColumns: cols,
	}
}
