package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"
)

// ValidKeys lists all config keys that can be set via `config set`.
// Per-prayer maps use "prayer.adjustments.<Prayer>" and "prayer.iqama.<Prayer>".
var ValidKeys = []string{
	"mosque.name", "mosque.icon", "mosque.message",
	"location.latitude", "location.longitude", "location.timezone",
	"prayer.method", "prayer.school", "prayer.imsak_offset",
	"prayer.adjustments.<Prayer>", "prayer.iqama.<Prayer>",
	"display.time_format", "display.month_style", "display.background_opacity",
	"audio.backend", "audio.dir", "audio.adhan", "audio.adhan_fajr", "audio.iqama", "audio.approval_store",
	"server.listen",
	"mqtt.enabled", "mqtt.broker", "mqtt.client_id", "mqtt.username", "mqtt.topic_prefix",
	"redis.addr", "redis.username", "redis.db",
	"cache_dir", "log_level",
}

// Set sets a config key to the given value.
// It validates the key name and parses the value into the correct type.
func (c *Config) Set(key, value string) error {
	if slot, ok := strings.CutPrefix(key, "prayer.adjustments."); ok {
		return setPerPrayer(&c.Prayer.Adjustments, "prayer.adjustments", slot, value)
	}
	if slot, ok := strings.CutPrefix(key, "prayer.iqama."); ok {
		return setPerPrayer(&c.Prayer.Iqama, "prayer.iqama", slot, value)
	}

	switch key {
	case "mosque.name":
		c.Mosque.Name = value
	case "mosque.icon":
		c.Mosque.Icon = value
	case "mosque.message":
		c.Mosque.Message = value
	case "location.latitude":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q: must be a number", value)
		}
		if v < -90 || v > 90 {
			return fmt.Errorf("invalid latitude %q: must be between -90 and 90", value)
		}
		c.Location.Latitude = v
	case "location.longitude":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q: must be a number", value)
		}
		if v < -180 || v > 180 {
			return fmt.Errorf("invalid longitude %q: must be between -180 and 180", value)
		}
		c.Location.Longitude = v
	case "location.timezone":
		c.Location.Timezone = value
	case "prayer.method":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid method %q: must be an integer", value)
		}
		if v < -1 || v > 23 {
			return fmt.Errorf("invalid method %q: must be between 0 and 23, or -1", value)
		}
		c.Prayer.Method = v
	case "prayer.school":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid school %q: must be an integer", value)
		}
		if v < -1 || v > 1 {
			return fmt.Errorf("invalid school %q: must be 0 (Shafi) or 1 (Hanafi)", value)
		}
		c.Prayer.School = v
	case "prayer.imsak_offset":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid imsak_offset %q: must be an integer", value)
		}
		c.Prayer.ImsakOffset = v
	case "display.time_format":
		if value != "12h" && value != "24h" {
			return fmt.Errorf("invalid time_format %q: must be \"12h\" or \"24h\"", value)
		}
		c.Display.TimeFormat = value
	case "display.month_style":
		c.Display.MonthStyle = value
	case "display.background_opacity":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 || v > 1 {
			return fmt.Errorf("invalid background_opacity %q: must be between 0 and 1", value)
		}
		c.Display.BackgroundOpacity = v
	case "audio.backend":
		c.Audio.Backend = value
	case "audio.dir":
		c.Audio.Dir = value
	case "audio.adhan":
		c.Audio.Adhan = splitList(value)
	case "audio.adhan_fajr":
		c.Audio.AdhanFajr = splitList(value)
	case "audio.iqama":
		c.Audio.Iqama = splitList(value)
	case "audio.approval_store":
		c.Audio.ApprovalStore = value
	case "server.listen":
		c.Server.Listen = value
	case "mqtt.enabled":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid mqtt.enabled %q: must be true or false", value)
		}
		c.MQTT.Enabled = v
	case "mqtt.broker":
		c.MQTT.Broker = value
	case "mqtt.client_id":
		c.MQTT.ClientID = value
	case "mqtt.username":
		c.MQTT.Username = value
	case "mqtt.topic_prefix":
		c.MQTT.TopicPrefix = value
	case "redis.addr":
		c.Redis.Addr = value
	case "redis.username":
		c.Redis.Username = value
	case "redis.db":
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid redis.db %q: must be a non-negative integer", value)
		}
		c.Redis.DB = v
	case "cache_dir":
		c.CacheDir = value
	case "log_level":
		c.LogLevel = value
	default:
		return fmt.Errorf("unknown config key %q; valid keys: %s", key, strings.Join(ValidKeys, ", "))
	}

	// Names and cross-field rules are checked by Validate.
	return c.Validate()
}

// Get returns the string value of a config key.
func (c *Config) Get(key string) (string, error) {
	if name, ok := strings.CutPrefix(key, "prayer.adjustments."); ok {
		return getPerPrayer(c.Prayer.Adjustments, name)
	}
	if name, ok := strings.CutPrefix(key, "prayer.iqama."); ok {
		return getPerPrayer(c.Prayer.Iqama, name)
	}

	switch key {
	case "mosque.name":
		return c.Mosque.Name, nil
	case "mosque.icon":
		return c.Mosque.Icon, nil
	case "mosque.message":
		return c.Mosque.Message, nil
	case "location.latitude":
		if c.Location.Latitude == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.Location.Latitude, 'f', -1, 64), nil
	case "location.longitude":
		if c.Location.Longitude == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.Location.Longitude, 'f', -1, 64), nil
	case "location.timezone":
		return c.Location.Timezone, nil
	case "prayer.method":
		if c.Prayer.Method < 0 {
			return "", nil
		}
		return strconv.Itoa(c.Prayer.Method), nil
	case "prayer.school":
		if c.Prayer.School < 0 {
			return "", nil
		}
		return strconv.Itoa(c.Prayer.School), nil
	case "prayer.imsak_offset":
		return strconv.Itoa(c.Prayer.ImsakOffset), nil
	case "prayer.adjustments":
		return formatPerPrayer(c.Prayer.Adjustments), nil
	case "prayer.iqama":
		return formatPerPrayer(c.Prayer.Iqama), nil
	case "display.time_format":
		return c.Display.TimeFormat, nil
	case "display.month_style":
		return c.Display.MonthStyle, nil
	case "display.background_opacity":
		return strconv.FormatFloat(c.Display.BackgroundOpacity, 'f', -1, 64), nil
	case "audio.backend":
		return c.Audio.Backend, nil
	case "audio.dir":
		return c.Audio.Dir, nil
	case "audio.adhan":
		return strings.Join(c.Audio.Adhan, ","), nil
	case "audio.adhan_fajr":
		return strings.Join(c.Audio.AdhanFajr, ","), nil
	case "audio.iqama":
		return strings.Join(c.Audio.Iqama, ","), nil
	case "audio.approval_store":
		return c.Audio.ApprovalStore, nil
	case "server.listen":
		return c.Server.Listen, nil
	case "mqtt.enabled":
		return strconv.FormatBool(c.MQTT.Enabled), nil
	case "mqtt.broker":
		return c.MQTT.Broker, nil
	case "mqtt.client_id":
		return c.MQTT.ClientID, nil
	case "mqtt.username":
		return c.MQTT.Username, nil
	case "mqtt.topic_prefix":
		return c.MQTT.TopicPrefix, nil
	case "redis.addr":
		return c.Redis.Addr, nil
	case "redis.username":
		return c.Redis.Username, nil
	case "redis.db":
		return strconv.Itoa(c.Redis.DB), nil
	case "cache_dir":
		return c.CacheDir, nil
	case "log_level":
		return c.LogLevel, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// ShowKeys lists the keys `config` prints, in order.
var ShowKeys = []string{
	"mosque.name", "mosque.icon", "mosque.message",
	"location.latitude", "location.longitude", "location.timezone",
	"prayer.method", "prayer.school", "prayer.imsak_offset", "prayer.adjustments", "prayer.iqama",
	"display.time_format", "display.month_style", "display.background_opacity",
	"audio.backend", "audio.dir", "audio.adhan", "audio.adhan_fajr", "audio.iqama", "audio.approval_store",
	"server.listen",
	"mqtt.enabled", "mqtt.broker", "mqtt.topic_prefix",
	"redis.addr",
	"cache_dir", "log_level",
}

func setPerPrayer(m *map[string]int, field, name, value string) error {
	slot, err := prayer.ParseSlot(name)
	if err != nil {
		return fmt.Errorf("invalid %s key: %w", field, err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s.%s %q: must be an integer number of minutes", field, slot, value)
	}
	if *m == nil {
		*m = map[string]int{}
	}
	// Normalise the key so "fajr" and "Fajr" are the same entry.
	for k := range *m {
		if strings.EqualFold(k, slot.String()) {
			delete(*m, k)
		}
	}
	if v == 0 {
		return nil
	}
	(*m)[slot.String()] = v
	return nil
}

func getPerPrayer(m map[string]int, name string) (string, error) {
	slot, err := prayer.ParseSlot(name)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(bySlot(m)[slot]), nil
}

func formatPerPrayer(m map[string]int) string {
	byS := bySlot(m)
	var parts []string
	for _, slot := range prayer.AllSlots {
		if v, ok := byS[slot]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", slot, v))
		}
	}
	return strings.Join(parts, ",")
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
