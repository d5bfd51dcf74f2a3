package dwd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateSize(t *testing.T) {
	full := SizeOptions{ShowHeader: true, ShowFooter: true}

	tests := []struct {
		name      string
		primary   int
		secondary int
		opts      SizeOptions
		want      int
	}{
		{"empty shown", 0, 0, SizeOptions{ShowHeader: true, ShowFooter: true}, 2},
		{"empty hidden", 0, 0, SizeOptions{HideWhenEmpty: true}, 0},
		{"one warning with header and footer", 1, 0, full, 3},             // 10+45+19+30 = 104
		{"five warnings with header and footer", 5, 0, full, 6},           // 10+225+19+30 = 284
		{"one warning bare", 1, 0, SizeOptions{}, 2},                      // 55
		{"header without footer", 2, 0, SizeOptions{ShowHeader: true}, 3}, // 130
		{"exact multiple", 2, 0, SizeOptions{}, 2},                        // 100
		{"secondary adds header again", 1, 1, full, 4},                    // 104+30+45 = 179
		{"secondary only", 0, 2, full, 4},                                 // 10+19+30+30+90 = 179
		{"hide ignored when warnings exist", 1, 0, SizeOptions{HideWhenEmpty: true}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateSize(tt.primary, tt.secondary, tt.opts))
		})
	}
}

func TestCardSize(t *testing.T) {
	cfg := &CardConfig{
		PrimarySourceID:   "sensor.dwd_current",
		SecondarySourceID: "sensor.dwd_prewarning",
		ShowHeader:        true,
		ShowFooter:        true,
	}
	snap := snapshotOf(
		entity("sensor.dwd_current", map[string]interface{}{"warning_count": 5}),
		entity("sensor.dwd_prewarning", map[string]interface{}{"warning_count": 0}),
	)

	assert.Equal(t, 6, CardSize(snap, cfg))
	assert.Equal(t, FallbackSize, CardSize(nil, cfg))
	assert.Equal(t, FallbackSize, CardSize(snap, nil))
	assert.Equal(t, FallbackSize, CardSize(snapshotOf(), cfg))
}

func TestLayout(t *testing.T) {
	wide := Layout(&CardConfig{}, 6)
	assert.Equal(t, 6, wide.GridRows)
	assert.Equal(t, 2, wide.GridMinRows)
	assert.Equal(t, 12, wide.GridColumns)

	compact := Layout(&CardConfig{CompactHeadline: true}, 0)
	assert.Equal(t, 2, compact.GridRows)
	assert.Equal(t, 6, compact.GridColumns)
	assert.Equal(t, 6, compact.GridMinColumns)
}
