package prayer

import (
	"fmt"
	"strings"
)

// Slot identifies one of the six daily times tracked by the dashboard.
type Slot int

// Slots in chronological order. Sunrise is informational only.
const (
	Fajr Slot = iota
	Sunrise
	Dhuhr
	Asr
	Maghrib
	Isha
)

// SlotCount is the number of tracked slots.
const SlotCount = 6

// AllSlots lists every slot in display order.
var AllSlots = [SlotCount]Slot{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// Prayers lists the five real prayers in order, skipping Sunrise.
var Prayers = []Slot{Fajr, Dhuhr, Asr, Maghrib, Isha}

var slotNames = [SlotCount]string{"Fajr", "Sunrise", "Dhuhr", "Asr", "Maghrib", "Isha"}

var arabicNames = [SlotCount]string{"الفجر", "الشروق", "الظهر", "العصر", "المغرب", "العشاء"}

var icons = [SlotCount]string{"🌅", "☀️", "🌞", "🌤️", "🌅", "🌙"}

// ShortNames maps slots to single-character abbreviations.
var ShortNames = map[Slot]string{
	Fajr:    "F",
	Sunrise: "S",
	Dhuhr:   "D",
	Asr:     "A",
	Maghrib: "M",
	Isha:    "I",
}

func (s Slot) valid() bool { return s >= Fajr && s <= Isha }

// String returns the English name, e.g. "Asr".
func (s Slot) String() string {
	if !s.valid() {
		return fmt.Sprintf("Slot(%d)", int(s))
	}
	return slotNames[s]
}

// Arabic returns the Arabic display name.
func (s Slot) Arabic() string {
	if !s.valid() {
		return ""
	}
	return arabicNames[s]
}

// Icon returns the emoji shown next to the slot.
func (s Slot) Icon() string {
	if !s.valid() {
		return ""
	}
	return icons[s]
}

// IsPrayer reports whether s is one of the five prayers.
func (s Slot) IsPrayer() bool {
	return s.valid() && s != Sunrise
}

// ParseSlot resolves an English slot name, case-insensitively.
func ParseSlot(name string) (Slot, error) {
	for i, n := range slotNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Slot(i), nil
		}
	}
	return 0, fmt.Errorf("unknown prayer name: %s", name)
}

// PreviousPrayer returns the real prayer preceding p in the daily order,
// wrapping from Fajr to Isha.
func PreviousPrayer(p Slot) Slot {
	for i, s := range Prayers {
		if s == p && i > 0 {
			return Prayers[i-1]
		}
	}
	return Isha
}
