// Package calendar renders the date and clock strings shown on the dashboard.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMonthStyle is used when the configured style is empty or unknown.
const DefaultMonthStyle = "egyptian"

// HijriFallback is shown when the provider returned no Hijri date.
const HijriFallback = "---"

var monthNames = map[string][12]string{
	"levant": {
		"كانون الثاني", "شباط", "آذار", "نيسان", "أيار", "حزيران",
		"تموز", "آب", "أيلول", "تشرين الأول", "تشرين الثاني", "كانون الأول",
	},
	"egyptian": {
		"يناير", "فبراير", "مارس", "أبريل", "مايو", "يونيو",
		"يوليو", "أغسطس", "سبتمبر", "أكتوبر", "نوفمبر", "ديسمبر",
	},
	"maghreb": {
		"جانفي", "فيفري", "مارس", "أفريل", "ماي", "جوان",
		"جويلية", "أوت", "سبتمبر", "أكتوبر", "نوفمبر", "ديسمبر",
	},
	"iraqi": {
		"كانون الثاني", "شباط", "آذار", "نيسان", "مايس", "حزيران",
		"تموز", "آب", "أيلول", "تشرين الأول", "تشرين الثاني", "كانون الأول",
	},
	"english": {
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	},
	"french": {
		"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
		"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
	},
}

// Sunday first, matching time.Weekday.
var arabicDays = [7]string{
	"الأحد", "الإثنين", "الثلاثاء", "الأربعاء", "الخميس", "الجمعة", "السبت",
}

// MonthStyles lists the accepted month naming styles.
var MonthStyles = []string{"levant", "egyptian", "maghreb", "iraqi", "english", "french"}

// ValidMonthStyle reports whether style is a known naming style.
func ValidMonthStyle(style string) bool {
	_, ok := monthNames[style]
	return ok
}

// MonthName returns the name of month m in the given style.
func MonthName(style string, m time.Month) string {
	names, ok := monthNames[style]
	if !ok {
		names = monthNames[DefaultMonthStyle]
	}
	if m < time.January || m > time.December {
		return ""
	}
	return names[m-1]
}

// DayName returns the Arabic name of the weekday.
func DayName(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return arabicDays[d]
}

// Gregorian formats a date as "<day> <month name> <year>".
func Gregorian(style string, year int, month time.Month, day int) string {
	return fmt.Sprintf("%d %s %d", day, MonthName(style, month), year)
}

// Hijri joins the provider's Hijri day, Arabic month name and year. Any
// missing part yields HijriFallback.
func Hijri(day, monthAr, year string) string {
	day, monthAr, year = strings.TrimSpace(day), strings.TrimSpace(monthAr), strings.TrimSpace(year)
	if day == "" || monthAr == "" || year == "" {
		return HijriFallback
	}
	return day + " " + monthAr + " " + year
}

// FormatClock renders a wall-clock time in 24h ("HH:MM") or 12h
// ("hh:MM AM") form. A negative second omits the seconds field.
func FormatClock(hour, minute, second int, twelveHour bool) string {
	h := hour
	suffix := ""
	if twelveHour {
		suffix = " AM"
		if hour >= 12 {
			suffix = " PM"
		}
		h = hour % 12
		if h == 0 {
			h = 12
		}
	}
	s := fmt.Sprintf("%02d:%02d", h, minute)
	if second >= 0 {
		s += fmt.Sprintf(":%02d", second)
	}
	return s + suffix
}
