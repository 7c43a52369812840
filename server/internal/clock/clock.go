// Package clock abstracts wall time so phase timing can be driven by tests.
package clock

import (
	"sync"
	"time"
)

// Clock tells time and waits fixed durations.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the system clock.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually driven clock. Sleep returns immediately after moving
// the clock forward; OnSleep, when set, runs before the clock moves so tests
// can inject events that happen during a wait.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	OnSleep func(d time.Duration)
}

// NewFake returns a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	if f.OnSleep != nil {
		f.OnSleep(d)
	}
	f.Advance(d)
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
