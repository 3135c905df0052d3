// Package clock supplies run timestamps and run identifiers.
//
// Branch runs stamp dataset rows and versioned file names from a Clock, so
// tests substitute a Fixed clock to get deterministic names like
// "20240115-002.txt".
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time of a run.
type Clock interface {
	Now() time.Time
}

// Wall is the real clock, reporting time in Location (local time when nil).
type Wall struct {
	Location *time.Location
}

// Now returns the current wall-clock time.
func (w Wall) Now() time.Time {
	if w.Location == nil {
		return time.Now()
	}
	return time.Now().In(w.Location)
}

// Fixed returns a predetermined time, advancing by Step after every call.
//
// Thread-safety: Fixed is safe for concurrent use via internal mutex.
type Fixed struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

// NewFixed creates a clock that starts at t and advances by step per call.
// A zero step freezes the clock.
func NewFixed(t time.Time, step time.Duration) *Fixed {
	return &Fixed{t: t, step: step}
}

// Now returns the current fixed time and advances the clock.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.t
	f.t = f.t.Add(f.step)
	return now
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}
