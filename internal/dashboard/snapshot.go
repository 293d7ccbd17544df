package dashboard

import (
	"github.com/smokyabdulrahman/mosque-dashboard/internal/sound"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/weather"
)

// Snapshot is everything the page renders for one tick.
type Snapshot struct {
	TS        int64  `json:"ts"`
	Clock     string `json:"clock"`
	Day       string `json:"day"`
	Gregorian string `json:"gregorian"`
	Hijri     string `json:"hijri"`
	Theme     Theme  `json:"theme"`

	Mosque  Mosque  `json:"mosque"`
	Opacity float64 `json:"opacity"`

	Prayers          []PrayerRow `json:"prayers,omitempty"`
	Imsak            string      `json:"imsak,omitempty"`
	Current          string      `json:"current,omitempty"`
	Next             string      `json:"next,omitempty"`
	NextArabic       string      `json:"next_ar,omitempty"`
	Countdown        string      `json:"countdown,omitempty"`
	CountdownSeconds int         `json:"countdown_seconds"`
	Imminent         bool        `json:"imminent"`
	Iqama            *IqamaView  `json:"iqama,omitempty"`

	Weather *weather.Reading `json:"weather,omitempty"`

	PrayerError  string `json:"prayer_error,omitempty"`
	WeatherError string `json:"weather_error,omitempty"`

	Audio sound.State `json:"audio"`

	// Rerender asks the page to rebuild the prayer list instead of patching
	// the countdown.
	Rerender bool `json:"rerender"`
}

// Mosque is the branding block.
type Mosque struct {
	Name    string `json:"name"`
	Icon    string `json:"icon,omitempty"`
	Message string `json:"message,omitempty"`
}

// PrayerRow is one line of the schedule.
type PrayerRow struct {
	Name    string `json:"name"`
	Arabic  string `json:"arabic"`
	Icon    string `json:"icon"`
	Time    string `json:"time"`
	Iqama   string `json:"iqama,omitempty"`
	Current bool   `json:"current"`
	Next    bool   `json:"next"`
}

// IqamaView is the iqama countdown bar.
type IqamaView struct {
	Prayer    string `json:"prayer"`
	Arabic    string `json:"arabic"`
	Countdown string `json:"countdown"`
	Seconds   int    `json:"seconds"`
	Imminent  bool   `json:"imminent"`
}
