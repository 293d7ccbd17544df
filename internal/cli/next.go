package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/api"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/clock"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/config"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/engine"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/store"
)

var flagFormat string

func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next prayer with countdown",
		Long:  "Display the next upcoming prayer time with a countdown.\nSuitable for status bars such as tmux.",
		RunE:  runNext,
	}

	cmd.Flags().StringVar(&flagFormat, "format", prayer.FormatFull, "Display format: time-remaining, next-prayer-time, name-and-time, name-and-remaining, short-name-and-time, short-name-and-remaining, countdown, full, or a custom Go template")

	return cmd
}

func runNext(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireLocation(); err != nil {
		return err
	}

	ts, err := clock.NewTimeSource(newClock(), cfg.Location.Timezone)
	if err != nil {
		return err
	}
	cache := openCache(cmd, cfg)

	now := ts.Time()
	schedule, err := loadSchedule(cmd.Context(), cfg, now, cache)
	if err != nil {
		return err
	}

	f := ts.Now()
	moment := prayer.MomentOf(f.Hour, f.Minute, f.Second)
	next := engine.ComputeIndices(schedule, moment).Next
	at := schedule.Time(next)

	// Past Isha the next Fajr is tomorrow's. If tomorrow cannot be fetched,
	// today's Fajr is close enough for a countdown.
	if next == prayer.Fajr && at.Moment() <= moment {
		if tomorrow, err := loadSchedule(cmd.Context(), cfg, now.AddDate(0, 0, 1), cache); err == nil {
			at = tomorrow.Time(prayer.Fajr)
		}
	}

	output := prayer.FormatOutput(next, at, moment.SecondsUntil(at), flagFormat, cfg.TwelveHour())
	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}

// openCache opens the file store, or returns nil after a warning when the
// cache directory is unusable.
func openCache(cmd *cobra.Command, cfg *config.Config) *store.FileStore {
	c, err := store.New(cfg.CacheDir)
	if err != nil {
		warnf(cmd, "cache disabled: %v", err)
		return nil
	}
	return c
}

// timingsKey identifies a day's timings for the configured location.
func timingsKey(cfg *config.Config, date time.Time) store.TimingsKey {
	return store.TimingsKey{
		Date:      date,
		Latitude:  cfg.Location.Latitude,
		Longitude: cfg.Location.Longitude,
		Method:    cfg.Prayer.Method,
		School:    cfg.Prayer.School,
		Timezone:  cfg.Location.Timezone,
	}
}

// loadSchedule returns the adjusted schedule for date, using the cache when
// available. Only responses that build into a schedule are cached.
func loadSchedule(ctx context.Context, cfg *config.Config, date time.Time, c *store.FileStore) (*prayer.Schedule, error) {
	key := timingsKey(cfg, date)

	if c != nil {
		if resp := c.LoadTimings(key); resp != nil {
			if s, err := prayer.Build(resp, cfg.Adjustments(), cfg.Prayer.ImsakOffset); err == nil {
				return s, nil
			}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := newPrayerClient().FetchTimings(ctx, api.TimingsRequest{
		Date:      date,
		Latitude:  cfg.Location.Latitude,
		Longitude: cfg.Location.Longitude,
		Method:    cfg.Prayer.Method,
		School:    cfg.Prayer.School,
		Timezone:  cfg.Location.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", prayer.ErrDataUnavailable, err)
	}

	s, err := prayer.Build(resp, cfg.Adjustments(), cfg.Prayer.ImsakOffset)
	if err != nil {
		return nil, err
	}

	if c != nil {
		_ = c.SaveTimings(key, resp) // best-effort
	}
	return s, nil
}
