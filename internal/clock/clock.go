// Package clock lets the engine and workflow code read "now" through an injectable source.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns a Clock backed by time.Now, always in UTC.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time {
	return f()
}
