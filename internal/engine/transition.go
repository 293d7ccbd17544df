// Package engine derives the dashboard's per-tick prayer state: which prayer
// is current and next, the countdown, and when the iqama window closes.
package engine

import "github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"

// ImminentSeconds is the threshold for the imminent alert.
const ImminentSeconds = 60

// Indices names the prayer in progress and the one coming up. Sunrise is
// never either.
type Indices struct {
	Current prayer.Slot
	Next    prayer.Slot
}

// ComputeIndices returns the first prayer whose time is strictly after now
// as Next. Past Isha, Next wraps to Fajr and Current is Isha.
func ComputeIndices(s *prayer.Schedule, now prayer.Moment) Indices {
	for _, p := range prayer.Prayers {
		if s.Time(p).Moment() > now {
			return Indices{Current: prayer.PreviousPrayer(p), Next: p}
		}
	}
	return Indices{Current: prayer.Isha, Next: prayer.Fajr}
}

// Countdown returns whole seconds from now until next, adding a day when the
// target has already passed today. The result is in [0, SecondsPerDay).
func Countdown(s *prayer.Schedule, next prayer.Slot, now prayer.Moment) int {
	return now.SecondsUntil(s.Time(next))
}

// Imminent reports whether a countdown is inside the final minute.
func Imminent(secs int) bool {
	return secs > 0 && secs <= ImminentSeconds
}

// Status is the transition engine's output for one tick.
type Status struct {
	Indices
	Seconds  int
	Imminent bool
	// Transition is set when Next changed since the previous tick. It is
	// never set on the first tick after Reset.
	Transition bool
	// Rerender is set whenever the highlighted prayers changed, including
	// the first tick after Reset.
	Rerender bool
}

// Transition remembers the previous tick's Next to detect changes.
type Transition struct {
	lastNext prayer.Slot
	known    bool
}

// Reset forgets the previous Next, as after a schedule replacement.
func (t *Transition) Reset() {
	t.known = false
}

// Step evaluates the schedule at now.
func (t *Transition) Step(s *prayer.Schedule, now prayer.Moment) Status {
	idx := ComputeIndices(s, now)
	secs := Countdown(s, idx.Next, now)

	st := Status{
		Indices:  idx,
		Seconds:  secs,
		Imminent: Imminent(secs),
	}

	switch {
	case !t.known:
		st.Rerender = true
	case t.lastNext != idx.Next:
		st.Rerender = true
		st.Transition = true
	}

	t.lastNext = idx.Next
	t.known = true
	return st
}
