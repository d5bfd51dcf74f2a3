// Package traffic keeps sliding windows of Home Assistant fetch outcomes and
// rate-limit denials. Health uses the error rate to report "degraded".
package traffic

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const maxAge = 5 * time.Minute

var defaultTracker = NewTracker(clockwork.NewRealClock())

// RecordSuccess records a successful upstream fetch.
func RecordSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordError records a failed upstream fetch (error status, timeout, bad payload).
func RecordError() {
	defaultTracker.RecordError()
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// outcome is the kind of a recorded event.
type outcome uint8

const (
	outcomeSuccess outcome = iota
	outcomeError
	outcomeDenied
)

type event struct {
	at   time.Time
	kind outcome
}

// Tracker keeps a time-ordered log of outcomes no older than maxAge.
type Tracker struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	events []event
}

// NewTracker returns a Tracker reading time from clock.
func NewTracker(clock clockwork.Clock) *Tracker {
	return &Tracker{clock: clock}
}

// RecordSuccess records a successful fetch.
func (t *Tracker) RecordSuccess() {
	t.record(outcomeSuccess)
}

// RecordError records a failed fetch.
func (t *Tracker) RecordError() {
	t.record(outcomeError)
}

// RecordDenied records a rate-limit denial.
func (t *Tracker) RecordDenied() {
	t.record(outcomeDenied)
}

func (t *Tracker) record(kind outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.pruneLocked(now)
	t.events = append(t.events, event{at: now, kind: kind})
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := t.countLocked(window)
	return counts[outcomeDenied]
}

// ErrorRate returns (errorCount, totalCount) within the window.
// Denials are excluded from the error rate.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := t.countLocked(window)
	return counts[outcomeError], counts[outcomeError] + counts[outcomeSuccess]
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// countLocked tallies events not older than window, walking back from the newest.
func (t *Tracker) countLocked(window time.Duration) [3]int {
	var counts [3]int
	cutoff := t.clock.Now().Add(-window)
	for i := len(t.events) - 1; i >= 0 && !t.events[i].at.Before(cutoff); i-- {
		counts[t.events[i].kind]++
	}
	return counts
}

// pruneLocked drops events older than maxAge. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	i := sort.Search(len(t.events), func(i int) bool { return !t.events[i].at.Before(cutoff) })
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
