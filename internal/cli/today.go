package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/calendar"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/clock"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/config"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/display"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/engine"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"
)

func newTodayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's prayer schedule",
		Long:  "Display today's prayer times with Imsak, iqama times and the current and next prayer.\nThis is the default when no subcommand is given.",
		RunE:  runToday,
	}
}

func runToday(cmd *cobra.Command, args []string) error {
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

	schedule, err := loadSchedule(cmd.Context(), cfg, ts.Time(), cache)
	if err != nil {
		return err
	}

	day := newDayView(cfg, ts.Now(), schedule)
	if FlagJSON {
		return printTodayJSON(cmd.OutOrStdout(), day)
	}
	printTodayRich(cmd.OutOrStdout(), day)
	return nil
}

// dayView is today's schedule resolved against the current time.
type dayView struct {
	cfg      *config.Config
	schedule *prayer.Schedule
	fields   clock.Fields
	indices  engine.Indices
	seconds  int
}

func newDayView(cfg *config.Config, f clock.Fields, s *prayer.Schedule) dayView {
	now := prayer.MomentOf(f.Hour, f.Minute, f.Second)
	idx := engine.ComputeIndices(s, now)
	return dayView{
		cfg:      cfg,
		schedule: s,
		fields:   f,
		indices:  idx,
		seconds:  engine.Countdown(s, idx.Next, now),
	}
}

func (d dayView) format(t prayer.TimeOfDay) string {
	return t.Format(d.cfg.TwelveHour())
}

// iqama returns the formatted iqama time of slot, or "" when none is
// configured.
func (d dayView) iqama(slot prayer.Slot) string {
	offset := d.cfg.IqamaOffset(slot)
	if !slot.IsPrayer() || offset <= 0 {
		return ""
	}
	return d.format(d.schedule.Time(slot).Add(offset))
}

func (d dayView) gregorian() string {
	return calendar.Gregorian(d.cfg.Display.MonthStyle, d.fields.Year, d.fields.Month, d.fields.Day)
}

// printTodayRich renders the colored terminal output for today's prayer schedule.
func printTodayRich(w io.Writer, d dayView) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", display.Bold(d.cfg.Mosque.Name))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  %s %s\n", calendar.DayName(d.fields.Weekday), d.gregorian())
	if en := d.schedule.Hijri.English; en != "" {
		fmt.Fprintf(w, "  %s  %s\n", d.schedule.Hijri.Arabic(), display.Cyan(en))
	} else {
		fmt.Fprintf(w, "  %s\n", d.schedule.Hijri.Arabic())
	}
	fmt.Fprintf(w, "  %s\n", display.Gray(fmt.Sprintf("%.4f, %.4f  %s",
		d.cfg.Location.Latitude, d.cfg.Location.Longitude, d.cfg.Location.Timezone)))
	fmt.Fprintln(w)

	tbl := display.NewTable([]string{"Prayer", "", "Time", "Iqama"})
	tbl.AddRow([]string{"Imsak", "الإمساك", d.format(d.schedule.Imsak), ""})
	for _, slot := range prayer.AllSlots {
		tbl.AddRow([]string{slot.String(), slot.Arabic(), d.format(d.schedule.Time(slot)), d.iqama(slot)})
		switch slot {
		case d.indices.Next:
			tbl.SetHighlightRow(tbl.Len() - 1)
		case d.indices.Current:
			tbl.SetMarkRow(tbl.Len() - 1)
		}
	}
	fmt.Fprint(w, tbl.Render())

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", display.Accent(fmt.Sprintf("%s in %s", d.indices.Next, prayer.FormatRemaining(d.seconds))))
	fmt.Fprintln(w)
}

// todayJSON is the JSON output structure for the today command.
type todayJSON struct {
	Mosque   string            `json:"mosque"`
	Location todayJSONLocation `json:"location"`
	Date     todayJSONDate     `json:"date"`
	Imsak    string            `json:"imsak"`
	Timings  map[string]string `json:"timings"`
	Iqama    map[string]string `json:"iqama,omitempty"`
	Current  string            `json:"current"`
	Next     todayJSONNext     `json:"next"`
}

type todayJSONLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

type todayJSONDate struct {
	Gregorian string `json:"gregorian"`
	Hijri     string `json:"hijri"`
	HijriEn   string `json:"hijri_en,omitempty"`
}

type todayJSONNext struct {
	Prayer    string `json:"prayer"`
	Time      string `json:"time"`
	Remaining string `json:"remaining"`
	Countdown string `json:"countdown"`
}

// printTodayJSON renders structured JSON output.
func printTodayJSON(w io.Writer, d dayView) error {
	out := todayJSON{
		Mosque: d.cfg.Mosque.Name,
		Location: todayJSONLocation{
			Latitude:  d.cfg.Location.Latitude,
			Longitude: d.cfg.Location.Longitude,
			Timezone:  d.cfg.Location.Timezone,
		},
		Date: todayJSONDate{
			Gregorian: d.gregorian(),
			Hijri:     d.schedule.Hijri.Arabic(),
			HijriEn:   d.schedule.Hijri.English,
		},
		Imsak:   d.format(d.schedule.Imsak),
		Timings: make(map[string]string),
		Current: strings.ToLower(d.indices.Current.String()),
		Next: todayJSONNext{
			Prayer:    strings.ToLower(d.indices.Next.String()),
			Time:      d.format(d.schedule.Time(d.indices.Next)),
			Remaining: prayer.FormatRemaining(d.seconds),
			Countdown: prayer.FormatCountdown(d.seconds),
		},
	}

	for _, slot := range prayer.AllSlots {
		name := strings.ToLower(slot.String())
		out.Timings[name] = d.format(d.schedule.Time(slot))
		if iq := d.iqama(slot); iq != "" {
			if out.Iqama == nil {
				out.Iqama = make(map[string]string)
			}
			out.Iqama[name] = iq
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
