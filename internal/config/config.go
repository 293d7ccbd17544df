// Package config provides persistent configuration for the mosque dashboard.
//
// Configuration is stored as YAML at ~/.config/mosque-dashboard/config.yaml
// (XDG-compliant). The merge priority is: CLI flags > environment > config
// file > defaults. Secrets are only ever read from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/calendar"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"
)

const (
	configDirName  = "mosque-dashboard"
	configFileName = "config.yaml"

	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "MOSQUE_CONFIG"
	// EnvMQTTPassword holds the MQTT broker password.
	EnvMQTTPassword = "MOSQUE_MQTT_PASSWORD"
	// EnvRedisPassword holds the redis password.
	EnvRedisPassword = "MOSQUE_REDIS_PASSWORD"
	// EnvLogLevel overrides log_level.
	EnvLogLevel = "MOSQUE_LOG_LEVEL"
)

// ErrConfigMissing means the dashboard cannot start: the file is absent or a
// required field is unset.
var ErrConfigMissing = errors.New("configuration missing")

// Audio backends.
const (
	BackendBrowser = "browser"
	BackendSpeaker = "speaker"
	BackendNone    = "none"
)

// Approval stores.
const (
	ApprovalFile  = "file"
	ApprovalRedis = "redis"
)

// Config holds all user-configurable settings.
type Config struct {
	Mosque   Mosque   `yaml:"mosque"`
	Location Location `yaml:"location"`
	Prayer   Prayer   `yaml:"prayer"`
	Display  Display  `yaml:"display"`
	Audio    Audio    `yaml:"audio"`
	Server   Server   `yaml:"server"`
	MQTT     MQTT     `yaml:"mqtt"`
	Redis    Redis    `yaml:"redis"`
	CacheDir string   `yaml:"cache_dir,omitempty"`
	LogLevel string   `yaml:"log_level"`

	// path is where the config was loaded from, empty when defaulted.
	path string
}

// Mosque is the branding shown on the page.
type Mosque struct {
	Name    string `yaml:"name"`
	Icon    string `yaml:"icon,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Location is where prayer times and weather are computed for. Zero
// coordinates mean "not set".
type Location struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Timezone  string  `yaml:"timezone"`
}

// Prayer configures the provider request and the per-prayer offsets.
// Adjustments and Iqama are keyed by English prayer name.
type Prayer struct {
	Method      int            `yaml:"method"` // -1 lets the API choose
	School      int            `yaml:"school"` // -1 lets the API choose
	ImsakOffset int            `yaml:"imsak_offset"`
	Adjustments map[string]int `yaml:"adjustments,omitempty"`
	Iqama       map[string]int `yaml:"iqama,omitempty"`
}

// Display holds presentation preferences.
type Display struct {
	TimeFormat        string  `yaml:"time_format"` // "12h" or "24h"
	MonthStyle        string  `yaml:"month_style"`
	BackgroundOpacity float64 `yaml:"background_opacity"`
}

// Audio selects the playback backend and the candidate files.
type Audio struct {
	Backend       string   `yaml:"backend"`
	Dir           string   `yaml:"dir"`
	Adhan         []string `yaml:"adhan,omitempty"`
	AdhanFajr     []string `yaml:"adhan_fajr,omitempty"`
	Iqama         []string `yaml:"iqama,omitempty"`
	ApprovalStore string   `yaml:"approval_store"`
}

// Server configures the HTTP listener.
type Server struct {
	Listen string `yaml:"listen"`
}

// MQTT configures optional event publication.
type MQTT struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"`
	Password    string `yaml:"-"`
}

// Redis configures the optional shared approval store.
type Redis struct {
	Addr     string `yaml:"addr,omitempty"`
	Username string `yaml:"username,omitempty"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`
}

// Defaults returns a Config with all default values applied.
func Defaults() Config {
	return Config{
		Mosque: Mosque{Name: "المسجد"},
		Prayer: Prayer{
			Method:      -1,
			School:      -1,
			ImsakOffset: prayer.DefaultImsakOffset,
		},
		Display: Display{
			TimeFormat:        "24h",
			MonthStyle:        calendar.DefaultMonthStyle,
			BackgroundOpacity: 0.1,
		},
		Audio: Audio{
			Backend:       BackendBrowser,
			Dir:           "audio",
			ApprovalStore: ApprovalFile,
		},
		Server: Server{Listen: ":8080"},
		MQTT: MQTT{
			Broker:      "tcp://localhost:1883",
			ClientID:    "mosque-dashboard",
			TopicPrefix: "mosque",
		},
		LogLevel: "info",
	}
}

// Dir returns the config directory path.
// It respects $XDG_CONFIG_HOME if set, otherwise uses ~/.config/.
func Dir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, configDirName), nil
}

// Path returns the full path to the config file. An explicit path wins,
// then $MOSQUE_CONFIG, then the XDG location.
func Path(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadFrom reads the config from a specific file path.
// If the file does not exist, it returns Defaults (not an error); callers
// that need a location call RequireLocation.
// Unknown fields are rejected to catch typos.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	// Only whitespace and comments may follow the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config file %s: unexpected trailing document", path)
	}

	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Source returns the file the config was loaded from, or "" for defaults.
func (c *Config) Source() string { return c.path }

// ApplyEnv copies secrets and overrides from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// SaveTo writes the config to a specific file path, creating the directory
// if needed.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory %s: %w", dir, err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	c.path = path
	return nil
}

// Validate checks value ranges and names. It does not require a location.
func (c *Config) Validate() error {
	var errs []error

	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		errs = append(errs, fmt.Errorf("location.latitude %v: must be between -90 and 90", c.Location.Latitude))
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		errs = append(errs, fmt.Errorf("location.longitude %v: must be between -180 and 180", c.Location.Longitude))
	}
	if c.Prayer.Method < -1 || c.Prayer.Method > 23 {
		errs = append(errs, fmt.Errorf("prayer.method %d: must be between 0 and 23, or -1", c.Prayer.Method))
	}
	if c.Prayer.School < -1 || c.Prayer.School > 1 {
		errs = append(errs, fmt.Errorf("prayer.school %d: must be 0 (Shafi), 1 (Hanafi) or -1", c.Prayer.School))
	}
	for name := range c.Prayer.Adjustments {
		if _, err := prayer.ParseSlot(name); err != nil {
			errs = append(errs, fmt.Errorf("prayer.adjustments: %w", err))
		}
	}
	for name := range c.Prayer.Iqama {
		if _, err := prayer.ParseSlot(name); err != nil {
			errs = append(errs, fmt.Errorf("prayer.iqama: %w", err))
		}
	}
	if c.Display.TimeFormat != "12h" && c.Display.TimeFormat != "24h" {
		errs = append(errs, fmt.Errorf("display.time_format %q: must be \"12h\" or \"24h\"", c.Display.TimeFormat))
	}
	if !calendar.ValidMonthStyle(c.Display.MonthStyle) {
		errs = append(errs, fmt.Errorf("display.month_style %q: must be one of %s",
			c.Display.MonthStyle, strings.Join(calendar.MonthStyles, ", ")))
	}
	if c.Display.BackgroundOpacity < 0 || c.Display.BackgroundOpacity > 1 {
		errs = append(errs, fmt.Errorf("display.background_opacity %v: must be between 0 and 1", c.Display.BackgroundOpacity))
	}
	switch c.Audio.Backend {
	case BackendBrowser, BackendSpeaker, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("audio.backend %q: must be browser, speaker or none", c.Audio.Backend))
	}
	switch c.Audio.ApprovalStore {
	case ApprovalFile, ApprovalRedis:
	default:
		errs = append(errs, fmt.Errorf("audio.approval_store %q: must be file or redis", c.Audio.ApprovalStore))
	}
	if c.Audio.ApprovalStore == ApprovalRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when audio.approval_store is redis"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}

	return errors.Join(errs...)
}

// RequireLocation returns ErrConfigMissing unless coordinates and timezone
// are set.
func (c *Config) RequireLocation() error {
	var missing []string
	if c.Location.Latitude == 0 {
		missing = append(missing, "location.latitude")
	}
	if c.Location.Longitude == 0 {
		missing = append(missing, "location.longitude")
	}
	if c.Location.Timezone == "" {
		missing = append(missing, "location.timezone")
	}
	if len(missing) == 0 {
		return nil
	}
	where := c.path
	if where == "" {
		where = "no config file"
	}
	return fmt.Errorf("%w: %s not set (%s); run `mosque-dashboard locate` or `mosque-dashboard config set`",
		ErrConfigMissing, strings.Join(missing, ", "), where)
}

// TwelveHour reports whether times render in 12h form.
func (c *Config) TwelveHour() bool {
	return c.Display.TimeFormat == "12h"
}

// Adjustments returns the per-prayer minute adjustments keyed by slot.
func (c *Config) Adjustments() map[prayer.Slot]int {
	return bySlot(c.Prayer.Adjustments)
}

// IqamaOffset returns the configured iqama offset for slot in minutes, or 0.
func (c *Config) IqamaOffset(slot prayer.Slot) int {
	return bySlot(c.Prayer.Iqama)[slot]
}

// AdhanSounds returns the candidate list for the prayer that just began.
// Fajr uses its own list only; an empty Fajr list stays silent.
func (c *Config) AdhanSounds(current prayer.Slot) []string {
	if current == prayer.Fajr {
		return c.Audio.AdhanFajr
	}
	return c.Audio.Adhan
}

func bySlot(m map[string]int) map[prayer.Slot]int {
	out := make(map[prayer.Slot]int, len(m))
	for name, v := range m {
		if slot, err := prayer.ParseSlot(name); err == nil {
			out[slot] = v
		}
	}
	return out
}
