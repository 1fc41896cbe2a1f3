// Package clock abstracts the wall clock so that time-dependent rules
// (future-slice policy, overdue detection, duplicate windows) can be
// exercised against an arbitrary "now" in tests.
package clock

import "time"

// Clock is a source of the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New returns a Clock backed by the system wall clock.
func New() Clock { return systemClock{} }
