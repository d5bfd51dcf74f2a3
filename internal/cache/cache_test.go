package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/dwd-warning-service/internal/models"
)

func listing() []models.Entity {
	return []models.Entity{{EntityID: "sensor.dwd_berlin_aktuelle_warnstufe", State: "0", LastUpdated: "t1"}}
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, StatesKey, listing(), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, StatesKey)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if len(got) != 1 || got[0].EntityID != "sensor.dwd_berlin_aktuelle_warnstufe" {
		t.Errorf("Get() = %+v, want cached listing", got)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache()

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that Get returns ok=false once the TTL
// has elapsed on the cache clock and removes the entry.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewInMemoryCacheWithClock(clock)

	if err := c.Set(ctx, StatesKey, listing(), 30*time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(29 * time.Second)
	if _, ok, _ := c.Get(ctx, StatesKey); !ok {
		t.Fatal("Get() ok = false before TTL elapsed")
	}

	clock.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, StatesKey); ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if _, exists := c.data[StatesKey]; exists {
		t.Error("Expired entry should be deleted from cache")
	}
}

// TestExpirationSeconds verifies memcached TTL conversion bounds.
func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{30 * time.Second, 30},
		{1500 * time.Millisecond, 2},
		{time.Millisecond, 1},
		{0, 60},
		{-time.Second, 60},
		{60 * 24 * time.Hour, 30 * 24 * 60 * 60},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

// TestParseAddrs verifies comma-separated memcached address parsing.
func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
	if got := parseAddrs(""); len(got) != 0 {
		t.Errorf("parseAddrs(\"\") = %v, want empty", got)
	}
}

// TestListingEncoding verifies the memcached payload format, including version
// mismatches being read as misses and oversized listings being rejected.
func TestListingEncoding(t *testing.T) {
	raw, err := encodeListing(listing())
	if err != nil {
		t.Fatalf("encodeListing() error = %v", err)
	}
	got, ok, err := decodeListing(raw)
	if err != nil || !ok {
		t.Fatalf("decodeListing() = ok %v, err %v", ok, err)
	}
	if len(got) != 1 || got[0].LastUpdated != "t1" {
		t.Errorf("decodeListing() = %+v, want original listing", got)
	}

	if _, ok, err := decodeListing([]byte(`{"v":99,"entities":[]}`)); ok || err != nil {
		t.Errorf("decodeListing(other version) = ok %v, err %v, want miss", ok, err)
	}
	if _, _, err := decodeListing([]byte(`not json`)); err == nil {
		t.Error("decodeListing(garbage) error = nil, want error")
	}

	big := []models.Entity{{EntityID: "sensor.big", Attributes: map[string]interface{}{
		"blob": strings.Repeat("x", maxItemSize),
	}}}
	if _, err := encodeListing(big); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("encodeListing(big) error = %v, want ErrValueTooLarge", err)
	}
}
