package timeutil

import "time"

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// Clock is a source of time. Components take one so tests can pin it.
type Clock func() time.Time

// OrNow returns c, or Now when c is nil.
func (c Clock) OrNow() Clock {
	if c == nil {
		return Now
	}
	return c
}

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}
