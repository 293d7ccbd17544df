package calendar

import (
	"testing"
	"time"
)

func TestMonthName(t *testing.T) {
	tests := []struct {
		style string
		month time.Month
		want  string
	}{
		{"egyptian", time.January, "يناير"},
		{"levant", time.May, "أيار"},
		{"iraqi", time.May, "مايس"},
		{"maghreb", time.August, "أوت"},
		{"english", time.December, "December"},
		{"french", time.February, "Février"},
		{"", time.March, "مارس"},
		{"klingon", time.April, "أبريل"},
	}

	for _, tt := range tests {
		t.Run(tt.style+"/"+tt.month.String(), func(t *testing.T) {
			if got := MonthName(tt.style, tt.month); got != tt.want {
				t.Errorf("MonthName(%q, %v) = %q, want %q", tt.style, tt.month, got, tt.want)
			}
		})
	}
}

func TestValidMonthStyle(t *testing.T) {
	for _, s := range MonthStyles {
		if !ValidMonthStyle(s) {
			t.Errorf("ValidMonthStyle(%q) = false, want true", s)
		}
	}
	if ValidMonthStyle("roman") {
		t.Error("ValidMonthStyle(\"roman\") = true, want false")
	}
}

func TestDayName(t *testing.T) {
	if got := DayName(time.Sunday); got != "الأحد" {
		t.Errorf("DayName(Sunday) = %q", got)
	}
	if got := DayName(time.Friday); got != "الجمعة" {
		t.Errorf("DayName(Friday) = %q", got)
	}
}

func TestGregorian(t *testing.T) {
	got := Gregorian("english", 2026, time.March, 7)
	if got != "7 March 2026" {
		t.Errorf("Gregorian = %q, want %q", got, "7 March 2026")
	}
}

func TestHijri(t *testing.T) {
	if got := Hijri("10", "شَعْبان", "1447"); got != "10 شَعْبان 1447" {
		t.Errorf("Hijri = %q", got)
	}
	if got := Hijri("10", "", "1447"); got != HijriFallback {
		t.Errorf("Hijri with missing month = %q, want %q", got, HijriFallback)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		name    string
		h, m, s int
		twelve  bool
		want    string
	}{
		{"24h with seconds", 15, 4, 9, false, "15:04:09"},
		{"24h without seconds", 5, 7, -1, false, "05:07"},
		{"12h afternoon", 15, 4, 9, true, "03:04:09 PM"},
		{"12h midnight", 0, 30, -1, true, "12:30 AM"},
		{"12h noon", 12, 0, -1, true, "12:00 PM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatClock(tt.h, tt.m, tt.s, tt.twelve); got != tt.want {
				t.Errorf("FormatClock(%d, %d, %d, %v) = %q, want %q", tt.h, tt.m, tt.s, tt.twelve, got, tt.want)
			}
		})
	}
}
