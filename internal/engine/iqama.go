package engine

import "github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"

// lateDueSeconds bounds how long after the iqama time a missed zero tick is
// still reported as due. Past it the cue is dropped.
const lateDueSeconds = 60

// IqamaStatus is the iqama engine's output for one tick.
type IqamaStatus struct {
	Visible  bool
	Seconds  int
	Imminent bool
	// Due is set on exactly one tick per prayer cycle.
	Due bool
}

// ComputeIqama evaluates the iqama window for current. The window is active
// while 0 <= (now - prayer) mod day < offset minutes, so it spans midnight
// when Isha is late.
func ComputeIqama(s *prayer.Schedule, current prayer.Slot, now prayer.Moment, offsetMinutes int) IqamaStatus {
	if current == prayer.Sunrise || offsetMinutes <= 0 {
		return IqamaStatus{}
	}

	at := s.Time(current)
	window := offsetMinutes * 60
	elapsed := now.SecondsSince(at)
	if elapsed >= window {
		return IqamaStatus{}
	}

	remaining := now.SecondsUntil(at.Add(offsetMinutes))
	if remaining < 0 {
		remaining = 0
	}
	return IqamaStatus{
		Visible:  true,
		Seconds:  remaining,
		Imminent: remaining <= ImminentSeconds,
	}
}

// Iqama tracks whether the cue for the current cycle already fired.
type Iqama struct {
	played bool
	armed  bool
}

// Reset starts a new cycle. Call it whenever the next prayer changes.
func (q *Iqama) Reset() {
	q.played = false
	q.armed = false
}

// Played reports whether the current cycle's cue already fired.
func (q *Iqama) Played() bool { return q.played }

// Step evaluates the window at now and marks Due once per cycle: on the tick
// whose remaining seconds reach zero, or on the first tick after the window
// closed when the zero second was skipped.
func (q *Iqama) Step(s *prayer.Schedule, current prayer.Slot, now prayer.Moment, offsetMinutes int) IqamaStatus {
	st := ComputeIqama(s, current, now, offsetMinutes)

	if q.played {
		st.Visible = false
		return st
	}

	if st.Visible && st.Seconds > 0 {
		q.armed = true
		return st
	}

	if st.Visible || q.armed {
		q.armed = false
		if !st.Visible && !q.closedRecently(s, current, now, offsetMinutes) {
			return st
		}
		q.played = true
		st.Visible = false
		st.Due = true
	}
	return st
}

func (q *Iqama) closedRecently(s *prayer.Schedule, current prayer.Slot, now prayer.Moment, offsetMinutes int) bool {
	if offsetMinutes <= 0 || current == prayer.Sunrise {
		return false
	}
	iqamaAt := s.Time(current).Add(offsetMinutes)
	return now.SecondsSince(iqamaAt) < lateDueSeconds
}
