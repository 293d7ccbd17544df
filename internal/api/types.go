package api

// Response is the envelope of a /timings reply.
type Response struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   Data   `json:"data"`
}

// Data holds one day's timings and the dates they belong to.
type Data struct {
	Timings Timings  `json:"timings"`
	Date    DateInfo `json:"date"`
	Meta    Meta     `json:"meta"`
}

// Timings holds the six displayed times as "HH:MM" strings. The provider
// may append a zone suffix like " (BST)"; prayer.ParseClock strips it.
// Imsak is not read from the provider: the dashboard derives it from Fajr.
type Timings struct {
	Fajr    string `json:"Fajr"`
	Sunrise string `json:"Sunrise"`
	Dhuhr   string `json:"Dhuhr"`
	Asr     string `json:"Asr"`
	Maghrib string `json:"Maghrib"`
	Isha    string `json:"Isha"`
}

// DateInfo is the provider's view of the requested day.
type DateInfo struct {
	Readable string    `json:"readable"` // e.g. "28 Feb 2026"
	Hijri    HijriDate `json:"hijri"`
}

// HijriDate is the Hijri date as the provider reports it.
type HijriDate struct {
	Date        string           `json:"date"` // e.g. "10-08-1447"
	Day         string           `json:"day"`
	Month       HijriMonth       `json:"month"`
	Year        string           `json:"year"`
	Designation HijriDesignation `json:"designation"`
}

// HijriMonth carries the month number and both month names.
type HijriMonth struct {
	Number int    `json:"number"`
	En     string `json:"en"` // e.g. "Shaʿbān"
	Ar     string `json:"ar"`
}

// HijriDesignation is the era label, normally "AH".
type HijriDesignation struct {
	Abbreviated string `json:"abbreviated"`
}

// English returns "<day> <month> <year> AH", or "" when any part is
// missing. The Arabic rendering lives in the calendar package.
func (h HijriDate) English() string {
	if h.Day == "" || h.Month.En == "" || h.Year == "" {
		return ""
	}
	era := h.Designation.Abbreviated
	if era == "" {
		era = "AH"
	}
	return h.Day + " " + h.Month.En + " " + h.Year + " " + era
}

// Meta echoes the parameters the provider used.
type Meta struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Timezone  string     `json:"timezone"`
	Method    MethodInfo `json:"method"`
}

// MethodInfo identifies the calculation method.
type MethodInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
