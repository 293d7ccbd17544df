package clock

import (
	"fmt"
	"time"
)

// Fields is a wall-clock instant decomposed in the dashboard's timezone.
type Fields struct {
	Year    int
	Month   time.Month
	Day     int
	Weekday time.Weekday
	Hour    int
	Minute  int
	Second  int
}

// SecondOfDay returns the number of seconds elapsed since local midnight.
func (f Fields) SecondOfDay() int {
	return f.Hour*3600 + f.Minute*60 + f.Second
}

// TimeSource reads a Clock in a fixed location.
type TimeSource struct {
	clock Clock
	loc   *time.Location
}

// NewTimeSource returns a TimeSource for the named IANA zone. An empty name
// uses the local zone of the host.
func NewTimeSource(c Clock, zone string) (*TimeSource, error) {
	loc := time.Local
	if zone != "" {
		var err error
		loc, err = time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", zone, err)
		}
	}
	return &TimeSource{clock: c, loc: loc}, nil
}

// Location returns the zone the source reports in.
func (s *TimeSource) Location() *time.Location { return s.loc }

// Clock returns the underlying clock.
func (s *TimeSource) Clock() Clock { return s.clock }

// Time returns now in the source's zone.
func (s *TimeSource) Time() time.Time {
	return s.clock.Now().In(s.loc)
}

// Now returns now decomposed into calendar fields.
func (s *TimeSource) Now() Fields {
	return Decompose(s.Time())
}

// UntilNextMidnight returns the delay until the next local midnight plus
// offset. The target is recomputed from the wall clock, so a day that is
// 23 or 25 hours long is handled.
func (s *TimeSource) UntilNextMidnight(offset time.Duration) time.Duration {
	now := s.Time()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, s.loc).Add(offset)
	return next.Sub(now)
}

// Decompose splits t into Fields using t's own location.
func Decompose(t time.Time) Fields {
	return Fields{
		Year:    t.Year(),
		Month:   t.Month(),
		Day:     t.Day(),
		Weekday: t.Weekday(),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
	}
}
