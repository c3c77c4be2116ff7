// Package clock provides the time sources used for record timestamps.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock in UTC.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a clock that only moves when told to.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
	step    time.Duration
}

// NewFake creates a fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewStepping creates a fake clock that advances by step after every read,
// so consecutive writes get strictly increasing timestamps.
func NewStepping(start time.Time, step time.Duration) *Fake {
	return &Fake{current: start, step: step}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	if f.step == 0 {
		f.mu.RLock()
		defer f.mu.RUnlock()
		return f.current
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.current
	f.current = f.current.Add(f.step)
	return now
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the fake time by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}
