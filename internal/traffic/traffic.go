package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

// DefaultRetention bounds how long outcomes are kept.
const DefaultRetention = 5 * time.Minute

// Tracker keeps sliding windows of provider lookup outcomes. Health uses
// the error rate to report degraded when the provider keeps failing.
type Tracker struct {
	mu           sync.Mutex
	clock        clockwork.Clock
	retention    time.Duration
	successTimes []time.Time
	errorTimes   []time.Time
}

// NewTracker returns a Tracker. A nil clock means the real clock; a
// non-positive retention means DefaultRetention.
func NewTracker(clock clockwork.Clock, retention time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{clock: clock, retention: retention}
}

// Observe records the outcome of one lookup. NOT_FOUND means the provider
// answered, so it counts as a success. VALIDATION never reached the provider
// and is ignored.
func (t *Tracker) Observe(err error) {
	switch models.KindOf(err) {
	case "", models.KindNotFound:
		t.RecordSuccess()
	case models.KindValidation:
	default:
		t.RecordError()
	}
}

// RecordSuccess records a successful provider outcome.
func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

// RecordError records a failed provider outcome.
func (t *Tracker) RecordError() {
	t.recordOutcome(&t.errorTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// ErrorRate returns (errorCount, totalCount) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	errCount := countInWindow(t.errorTimes, cutoff)
	return errCount, errCount + countInWindow(t.successTimes, cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Caller holds mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
}
