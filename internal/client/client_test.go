package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/dwd-warning-service/internal/circuitbreaker"
)

const statesJSON = `[
  {
    "entity_id": "sensor.dwd_berlin_aktuelle_warnstufe",
    "state": "2",
    "attributes": {
      "warning_count": 1,
      "last_update": "2026-02-07T12:00:00+00:00",
      "warning_1_headline": "Amtliche WARNUNG vor GLÄTTE",
      "warning_1_type": 84,
      "warning_1_level": 2
    },
    "last_changed": "2026-02-07T12:00:00.000000+00:00",
    "last_updated": "2026-02-07T12:00:00.000000+00:00"
  },
  {
    "entity_id": "sun.sun",
    "state": "above_horizon",
    "attributes": {},
    "last_changed": "2026-02-07T07:00:00.000000+00:00",
    "last_updated": "2026-02-07T11:59:00.000000+00:00"
  }
]`

func newTestClient(t *testing.T, url string, attempts int) *HomeAssistantClient {
	t.Helper()
	c, err := NewHomeAssistantClientWithRetry("test-token", url, 2*time.Second, attempts, time.Millisecond, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewHomeAssistantClientWithRetry() error = %v", err)
	}
	return c
}

func TestNewHomeAssistantClient_RequiresToken(t *testing.T) {
	c, err := NewHomeAssistantClient("", "http://ha.local:8123", 2*time.Second)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("NewHomeAssistantClient() error = %v, want ErrUnauthorized", err)
	}
	if c != nil {
		t.Error("NewHomeAssistantClient() expected nil client on error")
	}
}

func TestHomeAssistantClient_GetStates_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Path != "/api/states" {
			t.Errorf("path = %q, want /api/states", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statesJSON))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/", 3)
	states, err := c.GetStates(context.Background())
	if err != nil {
		t.Fatalf("GetStates() error = %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("len(states) = %d, want 2", len(states))
	}
	dwd := states[0]
	if dwd.EntityID != "sensor.dwd_berlin_aktuelle_warnstufe" {
		t.Errorf("EntityID = %q", dwd.EntityID)
	}
	if dwd.LastUpdated != "2026-02-07T12:00:00.000000+00:00" {
		t.Errorf("LastUpdated = %q", dwd.LastUpdated)
	}
	if got := dwd.Attributes["warning_1_headline"]; got != "Amtliche WARNUNG vor GLÄTTE" {
		t.Errorf("warning_1_headline = %v", got)
	}
}

func TestHomeAssistantClient_GetStates_ErrorHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		wantCalls int32
	}{
		{"401 unauthorized", http.StatusUnauthorized, ErrUnauthorized, 1},
		{"403 forbidden", http.StatusForbidden, ErrUnauthorized, 1},
		{"429 rate limited", http.StatusTooManyRequests, ErrRateLimited, 3},
		{"500 server error", http.StatusInternalServerError, ErrUpstreamFailure, 3},
		{"503 unavailable", http.StatusServiceUnavailable, ErrUpstreamFailure, 3},
		{"404 other client error", http.StatusNotFound, ErrUpstreamFailure, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, 3)
			_, err := c.GetStates(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetStates() error = %v, want %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

// TestHomeAssistantClient_GetStates_CircuitBreaker verifies that an open breaker
// fails fast without reaching Home Assistant, and that Ping is not guarded.
func TestHomeAssistantClient_GetStates_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute})
	c.SetCircuitBreaker(cb)

	for i := 0; i < 2; i++ {
		if _, err := c.GetStates(context.Background()); !errors.Is(err, ErrUpstreamFailure) {
			t.Fatalf("GetStates() #%d error = %v, want ErrUpstreamFailure", i, err)
		}
	}
	if !cb.Open() {
		t.Fatal("breaker should be open after 2 failures")
	}

	_, err := c.GetStates(context.Background())
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("GetStates() error = %v, want circuitbreaker.ErrOpen", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (open breaker must not call upstream)", got)
	}

	_ = c.Ping(context.Background())
	if got := calls.Load(); got != 3 {
		t.Errorf("calls after Ping = %d, want 3", got)
	}
}

func TestHomeAssistantClient_GetStates_RetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(statesJSON))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	states, err := c.GetStates(context.Background())
	if err != nil {
		t.Fatalf("GetStates() error = %v", err)
	}
	if len(states) != 2 {
		t.Errorf("len(states) = %d, want 2", len(states))
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestHomeAssistantClient_GetStates_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 3)
	_, err := c.GetStates(context.Background())
	if err == nil {
		t.Fatal("GetStates() expected parse error")
	}
	if CategorizeError(err) != ErrorCategoryParsing {
		t.Errorf("CategorizeError() = %v, want parsing", CategorizeError(err))
	}
}

func TestHomeAssistantClient_GetStates_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c, err := NewHomeAssistantClientWithRetry("test-token", server.URL, 2*time.Second, 5, time.Second, time.Second)
	if err != nil {
		t.Fatalf("NewHomeAssistantClientWithRetry() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.GetStates(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetStates() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestHomeAssistantClient_CorrelationID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 1)
	ctx := context.WithValue(context.Background(), "correlation_id", "corr-123")
	if _, err := c.GetStates(ctx); err != nil {
		t.Fatalf("GetStates() error = %v", err)
	}
	if got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
}

func TestHomeAssistantClient_Ping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"ok", http.StatusOK, nil},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"down", http.StatusBadGateway, ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/" {
					t.Errorf("path = %q, want /api/", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := newTestClient(t, server.URL, 1).Ping(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Errorf("Ping() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Ping() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHomeAssistantClient_calculateBackoff(t *testing.T) {
	c := &HomeAssistantClient{retryBaseDelay: 100 * time.Millisecond, retryMaxDelay: 300 * time.Millisecond}

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{1, 100 * time.Millisecond, 110 * time.Millisecond},
		{2, 200 * time.Millisecond, 220 * time.Millisecond},
		{3, 300 * time.Millisecond, 330 * time.Millisecond},
		{6, 300 * time.Millisecond, 330 * time.Millisecond},
	}
	for _, tt := range tests {
		got := c.calculateBackoff(tt.attempt)
		if got < tt.min || got > tt.max {
			t.Errorf("calculateBackoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.min, tt.max)
		}
	}
}
