package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/dwd-warning-service/internal/models"
)

// inFlightFetch is one upstream state fetch that several callers may wait for.
type inFlightFetch struct {
	done   chan struct{}
	result []models.Entity
	err    error
}

// requestCoalescer collapses concurrent fetches for the same key into one upstream call.
// The result slice is shared between all waiters and must be treated as read-only.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

// newRequestCoalescer creates a requestCoalescer; timeout bounds how long a caller waits.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight fetch for key, or starts fn when there is none.
// fn runs in its own goroutine so a caller that gives up does not cancel it for
// the others. shared reports whether the caller joined a fetch started by someone else.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() ([]models.Entity, error)) (result []models.Entity, shared bool, err error) {
	rc.mu.Lock()
	f, exists := rc.inFlight[key]
	if !exists {
		f = &inFlightFetch{done: make(chan struct{})}
		rc.inFlight[key] = f
		go rc.run(key, f, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-f.done:
		return f.result, exists, f.err
	case <-waitCtx.Done():
		return nil, exists, waitCtx.Err()
	}
}

func (rc *requestCoalescer) run(key string, f *inFlightFetch, fn func() ([]models.Entity, error)) {
	f.result, f.err = fn()

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(f.done)
}

// pending returns the number of keys with a fetch in flight.
func (rc *requestCoalescer) pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}
