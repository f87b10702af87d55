package game

import "time"

// Clock schedules deferred work for a round. The returned stop function
// cancels the callback and reports whether it was still pending.
type Clock interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// RealClock schedules with time.AfterFunc.
var RealClock Clock = realClock{}

// Pacing holds the round's cosmetic delays and the countdown interval.
type Pacing struct {
	MatchReveal    time.Duration
	Highlight      time.Duration
	MismatchReveal time.Duration
	Tick           time.Duration
}

// DefaultPacing is the pacing used when a round is created without one.
var DefaultPacing = Pacing{
	MatchReveal:    300 * time.Millisecond,
	Highlight:      700 * time.Millisecond,
	MismatchReveal: 600 * time.Millisecond,
	Tick:           time.Second,
}
