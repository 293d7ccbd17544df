package prayer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/calendar"
)

const (
	// MinutesPerDay is the modulus for TimeOfDay arithmetic.
	MinutesPerDay = 1440
	// SecondsPerDay is the modulus for Moment arithmetic.
	SecondsPerDay = 86400
)

// TimeOfDay is minutes since local midnight, always in [0, MinutesPerDay).
type TimeOfDay int

// NewTimeOfDay normalises minutes into [0, MinutesPerDay).
func NewTimeOfDay(minutes int) TimeOfDay {
	return TimeOfDay(((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay)
}

// At builds a TimeOfDay from an hour and minute.
func At(hour, minute int) TimeOfDay {
	return NewTimeOfDay(hour*60 + minute)
}

// Add shifts t by minutes, wrapping around midnight.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return NewTimeOfDay(int(t) + minutes)
}

// Hour returns the hour, 0-23.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute within the hour, 0-59.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Moment returns the start of the minute as a Moment.
func (t TimeOfDay) Moment() Moment { return Moment(int(t) * 60) }

// String returns "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Format renders t in 24h or 12h form.
func (t TimeOfDay) Format(twelveHour bool) string {
	return calendar.FormatClock(t.Hour(), t.Minute(), -1, twelveHour)
}

// Moment is seconds since local midnight, in [0, SecondsPerDay).
type Moment int

// MomentOf builds a Moment from wall-clock fields.
func MomentOf(hour, minute, second int) Moment {
	s := hour*3600 + minute*60 + second
	return Moment(((s % SecondsPerDay) + SecondsPerDay) % SecondsPerDay)
}

// SecondsUntil returns the forward distance from m to t in whole seconds,
// in [0, SecondsPerDay).
func (m Moment) SecondsUntil(t TimeOfDay) int {
	d := int(t.Moment()) - int(m)
	if d < 0 {
		d += SecondsPerDay
	}
	return d
}

// SecondsSince returns the forward distance from t to m in whole seconds,
// in [0, SecondsPerDay).
func (m Moment) SecondsSince(t TimeOfDay) int {
	d := int(m) - int(t.Moment())
	if d < 0 {
		d += SecondsPerDay
	}
	return d
}

// The provider may append a zone label such as " (EET)".
var parenSuffix = regexp.MustCompile(`\s*\(.*\)`)

// ParseClock parses "HH:MM", tolerating a parenthesised suffix.
func ParseClock(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(parenSuffix.ReplaceAllString(raw, ""))

	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", raw)
	}

	hour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}

	return At(hour, minute), nil
}

// AdjustTime parses raw, shifts it by minutes and returns "HH:MM".
func AdjustTime(raw string, minutes int) (string, error) {
	t, err := ParseClock(raw)
	if err != nil {
		return "", err
	}
	return t.Add(minutes).String(), nil
}
