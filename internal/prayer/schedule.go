package prayer

import (
	"errors"
	"fmt"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/api"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/calendar"
)

// ErrDataUnavailable is returned when a provider payload is missing or
// malformed.
var ErrDataUnavailable = errors.New("prayer data unavailable")

// DefaultImsakOffset is minutes relative to Fajr.
const DefaultImsakOffset = -10

// Hijri is the Hijri date reported alongside a day's timings.
type Hijri struct {
	Day     string `json:"day"`
	MonthAr string `json:"month_ar"`
	Year    string `json:"year"`
	English string `json:"english,omitempty"`
}

// Arabic returns "<day> <arabic month> <year>" or the fallback marker.
func (h Hijri) Arabic() string {
	return calendar.Hijri(h.Day, h.MonthAr, h.Year)
}

// Schedule is one day's adjusted prayer times. A Schedule is never mutated
// after construction; callers replace it wholesale.
type Schedule struct {
	times     [SlotCount]TimeOfDay
	Imsak     TimeOfDay
	Hijri     Hijri
	Gregorian string
}

// NewSchedule builds a Schedule from already adjusted times.
func NewSchedule(times [SlotCount]TimeOfDay, imsakOffset int) *Schedule {
	return &Schedule{
		times: times,
		Imsak: times[Fajr].Add(imsakOffset),
	}
}

// Time returns the time of the given slot.
func (s *Schedule) Time(slot Slot) TimeOfDay {
	return s.times[slot]
}

// Build converts a provider response into a Schedule, applying per-prayer
// adjustments in minutes. Slots missing from adjustments are unadjusted.
func Build(resp *api.Response, adjustments map[Slot]int, imsakOffset int) (*Schedule, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", ErrDataUnavailable)
	}
	if resp.Code != 200 {
		return nil, fmt.Errorf("%w: provider code %d (%s)", ErrDataUnavailable, resp.Code, resp.Status)
	}

	raw := timingsBySlot(resp.Data.Timings)

	var times [SlotCount]TimeOfDay
	for _, slot := range AllSlots {
		t, err := ParseClock(raw[slot])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, slot, err)
		}
		times[slot] = t.Add(adjustments[slot])
	}

	s := NewSchedule(times, imsakOffset)
	h := resp.Data.Date.Hijri
	s.Hijri = Hijri{Day: h.Day, MonthAr: h.Month.Ar, Year: h.Year, English: h.English()}
	s.Gregorian = resp.Data.Date.Readable
	return s, nil
}

func timingsBySlot(t api.Timings) [SlotCount]string {
	return [SlotCount]string{
		Fajr:    t.Fajr,
		Sunrise: t.Sunrise,
		Dhuhr:   t.Dhuhr,
		Asr:     t.Asr,
		Maghrib: t.Maghrib,
		Isha:    t.Isha,
	}
}
