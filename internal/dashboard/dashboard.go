// Package dashboard owns the running display: the current schedule, the
// transition and iqama engines, provider refresh and the per-second tick
// that turns all of it into a Snapshot.
//
// Every field below the options is owned by the loop goroutine started by
// Run. Other goroutines hand work to it through post.
package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/api"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/calendar"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/clock"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/config"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/engine"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/notify"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/sound"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/store"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/weather"
)

const (
	// RetryInterval is the delay before a failed provider is asked again.
	RetryInterval = 30 * time.Second
	// WeatherInterval is how often the weather is refreshed.
	WeatherInterval = 30 * time.Minute
	// MidnightOffset delays the daily refresh past local midnight.
	MidnightOffset = 5 * time.Second

	fetchTimeout = 15 * time.Second
	postBuffer   = 16
)

// PrayerFetcher fetches one day's timings.
type PrayerFetcher interface {
	FetchTimings(ctx context.Context, req api.TimingsRequest) (*api.Response, error)
}

// WeatherFetcher fetches the current weather.
type WeatherFetcher interface {
	Current(ctx context.Context, lat, lon float64, timezone string) (*weather.Reading, error)
}

// TimingsCache keeps the last good provider response per day.
type TimingsCache interface {
	LoadTimings(k store.TimingsKey) *api.Response
	SaveTimings(k store.TimingsKey, resp *api.Response) error
}

// Sound is the subset of the sound policy the dashboard drives.
type Sound interface {
	Play(kind sound.Kind, candidates []string)
	Busy() bool
	State() sound.State
	Interact(ctx context.Context) bool
}

// Publisher receives every snapshot.
type Publisher interface {
	Publish(s Snapshot)
}

// Options wires a Dashboard. Config, Time, Prayers and Sound are required.
type Options struct {
	Config    *config.Config
	Time      *clock.TimeSource
	Prayers   PrayerFetcher
	Weather   WeatherFetcher
	Cache     TimingsCache
	Sound     Sound
	Notifier  notify.Notifier
	Publisher Publisher
	Logger    *zap.Logger
}

// Dashboard is the process-wide display state.
type Dashboard struct {
	cfg       *config.Config
	ts        *clock.TimeSource
	clk       clock.Clock
	prayers   PrayerFetcher
	weather   WeatherFetcher
	cache     TimingsCache
	sound     Sound
	notifier  notify.Notifier
	publisher Publisher
	log       *zap.Logger

	ctx    context.Context
	posted chan func()
	done   chan struct{}
	post   func(func())
	async  func(func())

	schedule    *prayer.Schedule
	transition  engine.Transition
	iqama       engine.Iqama
	reading     *weather.Reading
	prayerPoll  *poller
	weatherPoll *poller
	sun         *sunTimes

	weatherTimer  clock.Timer
	midnightTimer clock.Timer

	mu   sync.RWMutex
	snap Snapshot
}

// New builds a Dashboard. Nothing runs until Run is called.
func New(opts Options) *Dashboard {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	d := &Dashboard{
		cfg:       opts.Config,
		ts:        opts.Time,
		clk:       opts.Time.Clock(),
		prayers:   opts.Prayers,
		weather:   opts.Weather,
		cache:     opts.Cache,
		sound:     opts.Sound,
		notifier:  notifier,
		publisher: opts.Publisher,
		log:       logger.Named("dashboard"),
		ctx:       context.Background(),
		posted:    make(chan func(), postBuffer),
		done:      make(chan struct{}),
		sun:       newSunTimes(opts.Config.Location.Latitude, opts.Config.Location.Longitude),
	}
	d.post = d.enqueue
	d.async = func(f func()) { go f() }
	d.prayerPoll = newPoller("prayer", d.clk, RetryInterval, func(f func()) { d.post(f) })
	d.weatherPoll = newPoller("weather", d.clk, RetryInterval, func(f func()) { d.post(f) })
	return d
}

// Run drives the dashboard until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	defer close(d.done)
	d.ctx = ctx

	d.start()
	defer d.stop()

	ticker := d.clk.NewTicker(time.Second)
	defer ticker.Stop()

	d.safeTick()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dashboard stopped")
			return nil
		case <-ticker.C():
			d.safeTick()
		case f := <-d.posted:
			d.safeRun(f)
		}
	}
}

// Snapshot returns the most recent snapshot.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

// Refresh asks both providers for fresh data.
func (d *Dashboard) Refresh() {
	d.post(d.refreshAll)
}

// Interact forwards a user gesture to the sound policy.
func (d *Dashboard) Interact(ctx context.Context) bool {
	return d.sound.Interact(ctx)
}

func (d *Dashboard) enqueue(f func()) {
	select {
	case d.posted <- f:
	case <-d.done:
	}
}

func (d *Dashboard) start() {
	d.log.Info("dashboard starting",
		zap.Float64("latitude", d.cfg.Location.Latitude),
		zap.Float64("longitude", d.cfg.Location.Longitude),
		zap.String("timezone", d.ts.Location().String()))

	d.refreshAll()
	d.scheduleWeather()
	d.scheduleMidnight()
}

func (d *Dashboard) stop() {
	for _, t := range []clock.Timer{d.weatherTimer, d.midnightTimer} {
		if t != nil {
			t.Stop()
		}
	}
	d.prayerPoll.stopTimer()
	d.weatherPoll.stopTimer()
}

func (d *Dashboard) safeRun(f func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dashboard task panicked", zap.Any("panic", r))
		}
	}()
	f()
}

func (d *Dashboard) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dashboard tick panicked", zap.Any("panic", r))
		}
	}()
	d.tick()
}

// tick advances the engines by one second and publishes the result.
func (d *Dashboard) tick() {
	wall := d.ts.Time()
	f := clock.Decompose(wall)
	now := prayer.Moment(f.SecondOfDay())

	snap := Snapshot{
		TS:        wall.Unix(),
		Clock:     calendar.FormatClock(f.Hour, f.Minute, f.Second, d.cfg.TwelveHour()),
		Day:       calendar.DayName(f.Weekday),
		Gregorian: calendar.Gregorian(d.cfg.Display.MonthStyle, f.Year, f.Month, f.Day),
		Hijri:     calendar.HijriFallback,
		Theme:     d.sun.ThemeAt(wall),
		Mosque: Mosque{
			Name:    d.cfg.Mosque.Name,
			Icon:    d.cfg.Mosque.Icon,
			Message: d.cfg.Mosque.Message,
		},
		Opacity: d.cfg.Display.BackgroundOpacity,
		Weather: d.reading,
	}
	if err := d.prayerPoll.err; err != nil {
		snap.PrayerError = err.Error()
	}
	if err := d.weatherPoll.err; err != nil {
		snap.WeatherError = err.Error()
	}

	if s := d.schedule; s != nil {
		st := d.transition.Step(s, now)
		if st.Transition {
			d.onTransition(s, st, wall)
		}

		iq := d.iqama.Step(s, st.Current, now, d.cfg.IqamaOffset(st.Current))
		if iq.Due {
			d.onIqamaDue(st.Current, wall)
		}
		d.fillSchedule(&snap, s, st, iq)
	}

	snap.Audio = d.sound.State()

	d.mu.Lock()
	d.snap = snap
	d.mu.Unlock()

	if d.publisher != nil {
		d.publisher.Publish(snap)
	}
}

func (d *Dashboard) onTransition(s *prayer.Schedule, st engine.Status, wall time.Time) {
	d.iqama.Reset()
	d.log.Info("prayer time",
		zap.String("prayer", st.Current.String()),
		zap.String("next", st.Next.String()))

	d.notifier.Adhan(st.Current, s.Time(st.Current), wall)
	d.sound.Play(sound.KindAdhan, d.cfg.AdhanSounds(st.Current))
}

func (d *Dashboard) onIqamaDue(current prayer.Slot, wall time.Time) {
	d.log.Info("iqama time", zap.String("prayer", current.String()))
	d.notifier.Iqama(current, wall)

	if d.sound.Busy() {
		d.log.Debug("audio in flight, iqama cue skipped")
		return
	}
	d.sound.Play(sound.KindIqama, d.cfg.Audio.Iqama)
}

func (d *Dashboard) fillSchedule(snap *Snapshot, s *prayer.Schedule, st engine.Status, iq engine.IqamaStatus) {
	twelve := d.cfg.TwelveHour()

	snap.Hijri = s.Hijri.Arabic()
	snap.Imsak = s.Imsak.Format(twelve)
	snap.Current = st.Current.String()
	snap.Next = st.Next.String()
	snap.NextArabic = st.Next.Arabic()
	snap.Countdown = prayer.FormatCountdown(st.Seconds)
	snap.CountdownSeconds = st.Seconds
	snap.Imminent = st.Imminent
	snap.Rerender = st.Rerender

	snap.Prayers = make([]PrayerRow, 0, prayer.SlotCount)
	for _, slot := range prayer.AllSlots {
		row := PrayerRow{
			Name:    slot.String(),
			Arabic:  slot.Arabic(),
			Icon:    slot.Icon(),
			Time:    s.Time(slot).Format(twelve),
			Current: slot == st.Current,
			Next:    slot == st.Next,
		}
		if off := d.cfg.IqamaOffset(slot); off > 0 && slot.IsPrayer() {
			row.Iqama = s.Time(slot).Add(off).Format(twelve)
		}
		snap.Prayers = append(snap.Prayers, row)
	}

	if iq.Visible {
		snap.Iqama = &IqamaView{
			Prayer:    st.Current.String(),
			Arabic:    st.Current.Arabic(),
			Countdown: prayer.FormatCountdown(iq.Seconds),
			Seconds:   iq.Seconds,
			Imminent:  iq.Imminent,
		}
	}
}

// setSchedule replaces the schedule. The next tick re-renders and never
// counts as a transition.
func (d *Dashboard) setSchedule(s *prayer.Schedule) {
	d.schedule = s
	d.transition.Reset()
	d.notifier.Schedule(s, d.ts.Time())
}

func (d *Dashboard) refreshAll() {
	d.refreshPrayers()
	d.refreshWeather()
}

func (d *Dashboard) timingsKey() store.TimingsKey {
	f := d.ts.Now()
	return store.TimingsKey{
		Date:      time.Date(f.Year, f.Month, f.Day, 0, 0, 0, 0, d.ts.Location()),
		Latitude:  d.cfg.Location.Latitude,
		Longitude: d.cfg.Location.Longitude,
		Method:    d.cfg.Prayer.Method,
		School:    d.cfg.Prayer.School,
		Timezone:  d.cfg.Location.Timezone,
	}
}

func (d *Dashboard) refreshPrayers() {
	if !d.prayerPoll.begin() {
		return
	}

	key := d.timingsKey()
	req := api.TimingsRequest{
		Date:      key.Date,
		Latitude:  key.Latitude,
		Longitude: key.Longitude,
		Method:    key.Method,
		School:    key.School,
		Timezone:  key.Timezone,
	}
	ctx := d.ctx

	d.async(func() {
		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		resp, err := d.prayers.FetchTimings(fctx, req)
		d.post(func() { d.applyPrayers(key, resp, err) })
	})
}

func (d *Dashboard) applyPrayers(key store.TimingsKey, resp *api.Response, err error) {
	var s *prayer.Schedule
	if err == nil {
		s, err = prayer.Build(resp, d.cfg.Adjustments(), d.cfg.Prayer.ImsakOffset)
	}
	if err != nil {
		d.log.Warn("prayer times unavailable, retrying",
			zap.Duration("in", RetryInterval), zap.Error(err))
		d.prayerPoll.fail(err, d.refreshPrayers)
		if d.schedule == nil {
			d.loadCachedSchedule(key)
		}
		return
	}

	d.prayerPoll.succeed()
	if d.cache != nil {
		if err := d.cache.SaveTimings(key, resp); err != nil {
			d.log.Debug("failed to cache timings", zap.Error(err))
		}
	}
	d.log.Info("prayer times loaded", zap.String("date", s.Gregorian))
	d.setSchedule(s)
}

// loadCachedSchedule fills an empty display from today's cached response
// while the provider is failing.
func (d *Dashboard) loadCachedSchedule(key store.TimingsKey) {
	if d.cache == nil {
		return
	}
	resp := d.cache.LoadTimings(key)
	if resp == nil {
		return
	}
	s, err := prayer.Build(resp, d.cfg.Adjustments(), d.cfg.Prayer.ImsakOffset)
	if err != nil {
		return
	}
	d.log.Info("using cached prayer times", zap.String("date", s.Gregorian))
	d.setSchedule(s)
}

func (d *Dashboard) refreshWeather() {
	if d.weather == nil || !d.weatherPoll.begin() {
		return
	}

	lat, lon, tz := d.cfg.Location.Latitude, d.cfg.Location.Longitude, d.cfg.Location.Timezone
	ctx := d.ctx

	d.async(func() {
		fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
		defer cancel()
		r, err := d.weather.Current(fctx, lat, lon, tz)
		d.post(func() { d.applyWeather(r, err) })
	})
}

func (d *Dashboard) applyWeather(r *weather.Reading, err error) {
	if err != nil {
		d.log.Warn("weather unavailable, retrying",
			zap.Duration("in", RetryInterval), zap.Error(err))
		d.weatherPoll.fail(err, d.refreshWeather)
		return
	}
	d.weatherPoll.succeed()
	d.reading = r
	d.log.Debug("weather updated", zap.Int("temperature", r.TemperatureC), zap.Int("code", r.Code))
}

func (d *Dashboard) scheduleWeather() {
	d.weatherTimer = d.clk.AfterFunc(WeatherInterval, func() {
		d.post(func() {
			d.refreshWeather()
			d.scheduleWeather()
		})
	})
}

// scheduleMidnight arms the daily refresh. The delay is recomputed from the
// wall clock each time.
func (d *Dashboard) scheduleMidnight() {
	delay := d.ts.UntilNextMidnight(MidnightOffset)
	d.log.Debug("next daily refresh", zap.Duration("in", delay))

	d.midnightTimer = d.clk.AfterFunc(delay, func() {
		d.post(func() {
			d.log.Info("daily refresh")
			d.refreshAll()
			d.scheduleMidnight()
		})
	})
}
