package dashboard

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Theme selects the page palette.
type Theme string

const (
	ThemeDay   Theme = "day"
	ThemeNight Theme = "night"
)

// sunTimes caches one day's sunrise and sunset for a location.
type sunTimes struct {
	lat, lon float64
	day      string
	rise     time.Time
	set      time.Time
}

func newSunTimes(lat, lon float64) *sunTimes {
	return &sunTimes{lat: lat, lon: lon}
}

// ThemeAt returns night before sunrise and from sunset on. Without a
// location, or where the sun does not rise or set that day, it returns day.
func (s *sunTimes) ThemeAt(now time.Time) Theme {
	if s.lat == 0 && s.lon == 0 {
		return ThemeDay
	}

	day := now.Format("2006-01-02")
	if day != s.day {
		s.rise, s.set = sunrise.SunriseSunset(s.lat, s.lon, now.Year(), now.Month(), now.Day())
		s.day = day
	}

	if s.rise.IsZero() || s.set.IsZero() {
		return ThemeDay
	}
	if now.Before(s.rise) || !now.Before(s.set) {
		return ThemeNight
	}
	return ThemeDay
}
