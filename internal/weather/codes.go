package weather

// Condition is the Arabic description and icon for a WMO weather code.
type Condition struct {
	Description string
	Icon        string
}

// Unknown is returned for codes missing from the table.
var Unknown = Condition{Description: "غير محدد", Icon: "🌡️"}

var wmoCodes = map[int]Condition{
	0:  {"صافي", "☀️"},
	1:  {"صافي تقريباً", "🌤️"},
	2:  {"غائم جزئياً", "⛅"},
	3:  {"غائم", "☁️"},
	45: {"ضباب", "🌫️"},
	48: {"ضباب متجمد", "🌫️"},
	51: {"رذاذ خفيف", "🌦️"},
	53: {"رذاذ معتدل", "🌦️"},
	55: {"رذاذ كثيف", "🌧️"},
	61: {"مطر خفيف", "🌦️"},
	63: {"مطر معتدل", "🌧️"},
	65: {"مطر غزير", "🌧️"},
	66: {"مطر متجمد خفيف", "🌧️"},
	67: {"مطر متجمد كثيف", "🌧️"},
	71: {"ثلج خفيف", "🌨️"},
	73: {"ثلج معتدل", "🌨️"},
	75: {"ثلج كثيف", "❄️"},
	77: {"حبيبات ثلجية", "❄️"},
	80: {"زخات مطر خفيفة", "🌦️"},
	81: {"زخات مطر معتدلة", "🌧️"},
	82: {"زخات مطر عنيفة", "🌧️"},
	85: {"زخات ثلج خفيفة", "🌨️"},
	86: {"زخات ثلج كثيفة", "❄️"},
	95: {"عاصفة رعدية", "⛈️"},
	96: {"عاصفة رعدية مع بَرَد خفيف", "⛈️"},
	99: {"عاصفة رعدية مع بَرَد كثيف", "⛈️"},
}

// Lookup maps a WMO code to its condition.
func Lookup(code int) Condition {
	if c, ok := wmoCodes[code]; ok {
		return c
	}
	return Unknown
}
