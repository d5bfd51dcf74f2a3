package dwd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfigRejected is returned when a card cannot be set up.
var ErrConfigRejected = errors.New("card configuration rejected")

// CardConfig is the configuration of one warning card.
type CardConfig struct {
	Name              string `yaml:"name"`
	PrimarySourceID   string `yaml:"primary_source_id"`
	SecondarySourceID string `yaml:"secondary_source_id"`
	ShowHeader        bool   `yaml:"show_header"`
	ShowFooter        bool   `yaml:"show_footer"`
	HideWhenEmpty     bool   `yaml:"hide_when_empty"`
	CompactHeadline   bool   `yaml:"compact_headline"`

	// ShowAttribution defaults to true when unset.
	ShowAttribution *bool `yaml:"show_dwd_attribution"`
}

// Validate rejects a card without a primary source id.
func (c *CardConfig) Validate() error {
	if c == nil || strings.TrimSpace(c.PrimarySourceID) == "" {
		return fmt.Errorf("%w: please define a DWD warning entity (primary_source_id)", ErrConfigRejected)
	}
	return nil
}

// SecondaryID returns the configured or derived pre-warning entity id.
func (c *CardConfig) SecondaryID() string {
	return ResolveSecondary(c.PrimarySourceID, c.SecondarySourceID)
}

// AttributionShown reports whether the source attribution is part of the view.
func (c *CardConfig) AttributionShown() bool {
	return c.ShowAttribution == nil || *c.ShowAttribution
}

// SizeOptions returns the display flags relevant to EstimateSize.
func (c *CardConfig) SizeOptions() SizeOptions {
	return SizeOptions{
		ShowHeader:    c.ShowHeader,
		ShowFooter:    c.ShowFooter,
		HideWhenEmpty: c.HideWhenEmpty,
	}
}
