package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/api"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/clock"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/config"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/prayer"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/sound"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/store"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/weather"
)

// --- fakes ---

type fakePrayers struct {
	mu    sync.Mutex
	calls int
	last  api.TimingsRequest
	err   error
}

func (f *fakePrayers) FetchTimings(_ context.Context, req api.TimingsRequest) (*api.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return sampleResponse(), nil
}

func (f *fakePrayers) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakePrayers) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeWeather struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeWeather) Current(context.Context, float64, float64, string) (*weather.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c := weather.Lookup(0)
	return &weather.Reading{TemperatureC: 24, Code: 0, Description: c.Description, Icon: c.Icon}, nil
}

type playRequest struct {
	kind       sound.Kind
	candidates []string
}

type fakeSound struct {
	mu    sync.Mutex
	plays []playRequest
	busy  bool
}

func (s *fakeSound) Play(kind sound.Kind, candidates []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays = append(s.plays, playRequest{kind, candidates})
}

func (s *fakeSound) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *fakeSound) State() sound.State            { return sound.State{Unlocked: true} }
func (s *fakeSound) Interact(context.Context) bool { return true }

type fakeNotifier struct {
	adhans    []prayer.Slot
	iqamas    []prayer.Slot
	schedules int
}

func (n *fakeNotifier) Adhan(slot prayer.Slot, _ prayer.TimeOfDay, _ time.Time) {
	n.adhans = append(n.adhans, slot)
}
func (n *fakeNotifier) Iqama(slot prayer.Slot, _ time.Time)  { n.iqamas = append(n.iqamas, slot) }
func (n *fakeNotifier) Schedule(*prayer.Schedule, time.Time) { n.schedules++ }
func (n *fakeNotifier) Close()                               {}

type memCache struct {
	entries map[string]*api.Response
}

func (c *memCache) LoadTimings(k store.TimingsKey) *api.Response {
	return c.entries[k.Date.Format("2006-01-02")]
}

func (c *memCache) SaveTimings(k store.TimingsKey, resp *api.Response) error {
	c.entries[k.Date.Format("2006-01-02")] = resp
	return nil
}

type capturePublisher struct {
	snaps []Snapshot
}

func (p *capturePublisher) Publish(s Snapshot) { p.snaps = append(p.snaps, s) }

func sampleResponse() *api.Response {
	resp := &api.Response{Code: 200, Status: "OK"}
	resp.Data.Timings = api.Timings{
		Fajr:    "05:10 (UTC)",
		Sunrise: "06:30 (UTC)",
		Dhuhr:   "12:15 (UTC)",
		Asr:     "15:40 (UTC)",
		Maghrib: "18:50 (UTC)",
		Isha:    "20:10 (UTC)",
	}
	resp.Data.Date.Readable = "01 Mar 2026"
	resp.Data.Date.Hijri = api.HijriDate{
		Day:   "11",
		Month: api.HijriMonth{Number: 9, En: "Ramaḍān", Ar: "رَمَضان"},
		Year:  "1447",
	}
	return resp
}

type harness struct {
	d        *Dashboard
	clk      *clock.MockClock
	prayers  *fakePrayers
	weather  *fakeWeather
	sound    *fakeSound
	notifier *fakeNotifier
	pub      *capturePublisher
	cache    *memCache
}

func at(hour, minute, second int) time.Time {
	return time.Date(2026, 3, 1, hour, minute, second, 0, time.UTC)
}

// newHarness builds a Dashboard whose loop work runs synchronously on the
// test goroutine.
func newHarness(t *testing.T, start time.Time) *harness {
	t.Helper()

	cfg := config.Defaults()
	cfg.Location = config.Location{Latitude: 30.0444, Longitude: 31.2357, Timezone: "UTC"}
	cfg.Audio.Adhan = []string{"adhan1.mp3", "adhan2.mp3"}
	cfg.Audio.AdhanFajr = []string{"fajr.mp3"}
	cfg.Audio.Iqama = []string{"iqama.wav"}
	cfg.Prayer.Iqama = map[string]int{"Maghrib": 10}

	clk := clock.NewMockClock(start)
	ts, err := clock.NewTimeSource(clk, "UTC")
	require.NoError(t, err)

	h := &harness{
		clk:      clk,
		prayers:  &fakePrayers{},
		weather:  &fakeWeather{},
		sound:    &fakeSound{},
		notifier: &fakeNotifier{},
		pub:      &capturePublisher{},
		cache:    &memCache{entries: map[string]*api.Response{}},
	}
	h.d = New(Options{
		Config:    &cfg,
		Time:      ts,
		Prayers:   h.prayers,
		Weather:   h.weather,
		Cache:     h.cache,
		Sound:     h.sound,
		Notifier:  h.notifier,
		Publisher: h.pub,
		Logger:    zap.NewNop(),
	})
	h.d.post = func(f func()) { f() }
	h.d.async = func(f func()) { f() }
	return h
}

// step advances the clock one second and ticks.
func (h *harness) step() Snapshot {
	h.clk.Advance(time.Second)
	h.d.tick()
	return h.d.Snapshot()
}

// --- startup ---

func TestStart_LoadsScheduleAndWeather(t *testing.T) {
	h := newHarness(t, at(17, 0, 0))
	h.d.start()
	h.d.tick()

	snap := h.d.Snapshot()
	assert.Equal(t, "Asr", snap.Current)
	assert.Equal(t, "Maghrib", snap.Next)
	assert.Equal(t, 6600, snap.CountdownSeconds)
	assert.Equal(t, "01:50:00", snap.Countdown)
	assert.Equal(t, "17:00:00", snap.Clock)
	assert.Equal(t, "11 رَمَضان 1447", snap.Hijri)
	assert.Contains(t, snap.Gregorian, "2026")
	assert.Equal(t, "05:00", snap.Imsak)
	assert.True(t, snap.Rerender)
	assert.Empty(t, snap.PrayerError)

	require.Len(t, snap.Prayers, prayer.SlotCount)
	maghrib := snap.Prayers[prayer.Maghrib]
	assert.True(t, maghrib.Next)
	assert.Equal(t, "18:50", maghrib.Time)
	assert.Equal(t, "19:00", maghrib.Iqama)
	assert.Empty(t, snap.Prayers[prayer.Sunrise].Iqama)
	assert.True(t, snap.Prayers[prayer.Asr].Current)

	require.NotNil(t, snap.Weather)
	assert.Equal(t, 24, snap.Weather.TemperatureC)

	assert.Equal(t, 1, h.notifier.schedules)
	assert.Empty(t, h.sound.plays, "no sound on the first tick")
	assert.Len(t, h.pub.snaps, 1)

	req := h.prayers.last
	assert.Equal(t, "01-03-2026", req.Date.Format("02-01-2006"))
	assert.Equal(t, "UTC", req.Timezone)
}

func TestTick_BeforeScheduleShowsClockOnly(t *testing.T) {
	h := newHarness(t, at(9, 5, 7))
	h.d.tick()

	snap := h.d.Snapshot()
	assert.Equal(t, "09:05:07", snap.Clock)
	assert.Equal(t, "---", snap.Hijri)
	assert.Nil(t, snap.Prayers)
	assert.Equal(t, "المسجد", snap.Mosque.Name)
}

// --- transitions ---

func TestTransition_PlaysAdhanOnce(t *testing.T) {
	h := newHarness(t, at(18, 49, 58))
	h.d.start()
	h.d.tick()

	snap := h.step()
	assert.Equal(t, 1, snap.CountdownSeconds)
	assert.True(t, snap.Imminent)
	assert.Empty(t, h.sound.plays)

	snap = h.step()
	assert.Equal(t, "Maghrib", snap.Current)
	assert.Equal(t, "Isha", snap.Next)
	assert.True(t, snap.Rerender)

	require.Len(t, h.sound.plays, 1)
	assert.Equal(t, sound.KindAdhan, h.sound.plays[0].kind)
	assert.Equal(t, []string{"adhan1.mp3", "adhan2.mp3"}, h.sound.plays[0].candidates)
	assert.Equal(t, []prayer.Slot{prayer.Maghrib}, h.notifier.adhans)

	snap = h.step()
	assert.False(t, snap.Rerender)
	assert.Len(t, h.sound.plays, 1)
}

func TestTransition_FajrUsesFajrList(t *testing.T) {
	h := newHarness(t, at(5, 9, 59))
	h.d.start()
	h.d.tick()
	h.step()

	require.Len(t, h.sound.plays, 1)
	assert.Equal(t, []string{"fajr.mp3"}, h.sound.plays[0].candidates)
}

func TestTransition_ScheduleReplacementIsSilent(t *testing.T) {
	h := newHarness(t, at(18, 49, 59))
	h.d.start()
	h.d.tick()

	h.clk.Advance(2 * time.Second)
	h.d.Refresh()
	h.d.tick()

	snap := h.d.Snapshot()
	assert.Equal(t, "Maghrib", snap.Current)
	assert.True(t, snap.Rerender)
	assert.Empty(t, h.sound.plays)
	assert.Equal(t, 2, h.notifier.schedules)
}

// --- iqama ---

func TestIqama_CountdownAndDue(t *testing.T) {
	h := newHarness(t, at(18, 59, 58))
	h.d.start()
	h.d.tick()

	snap := h.d.Snapshot()
	require.NotNil(t, snap.Iqama)
	assert.Equal(t, "Maghrib", snap.Iqama.Prayer)
	assert.Equal(t, 2, snap.Iqama.Seconds)
	assert.True(t, snap.Iqama.Imminent)

	snap = h.step()
	require.NotNil(t, snap.Iqama)
	assert.Equal(t, "00:00:01", snap.Iqama.Countdown)

	snap = h.step()
	assert.Nil(t, snap.Iqama)
	require.Len(t, h.sound.plays, 1)
	assert.Equal(t, sound.KindIqama, h.sound.plays[0].kind)
	assert.Equal(t, []prayer.Slot{prayer.Maghrib}, h.notifier.iqamas)

	h.step()
	assert.Len(t, h.sound.plays, 1)
}

func TestIqama_SkippedWhileAudioBusy(t *testing.T) {
	h := newHarness(t, at(18, 59, 59))
	h.d.start()
	h.d.tick()

	h.sound.busy = true
	snap := h.step()

	assert.Nil(t, snap.Iqama)
	assert.Empty(t, h.sound.plays)
	assert.Equal(t, []prayer.Slot{prayer.Maghrib}, h.notifier.iqamas)
}

func TestIqama_HiddenWithoutOffset(t *testing.T) {
	h := newHarness(t, at(20, 12, 0))
	h.d.start()
	h.d.tick()

	snap := h.d.Snapshot()
	assert.Equal(t, "Isha", snap.Current)
	assert.Nil(t, snap.Iqama)
}

// --- provider retry ---

func TestPrayerFailure_RetriesEvery30Seconds(t *testing.T) {
	h := newHarness(t, at(17, 0, 0))
	h.prayers.setErr(errors.New("connection refused"))

	h.d.start()
	h.d.tick()

	snap := h.d.Snapshot()
	assert.Contains(t, snap.PrayerError, "connection refused")
	assert.Nil(t, snap.Prayers)
	assert.Equal(t, PollRetrying, h.d.prayerPoll.state)
	assert.Equal(t, 1, h.prayers.Calls())

	// A manual refresh while retrying does not arm a second timer.
	h.d.Refresh()
	assert.Equal(t, 2, h.prayers.Calls())

	h.clk.Advance(29 * time.Second)
	assert.Equal(t, 2, h.prayers.Calls())
	h.clk.Advance(time.Second)
	assert.Equal(t, 3, h.prayers.Calls())

	h.prayers.setErr(nil)
	h.clk.Advance(RetryInterval)
	assert.Equal(t, 4, h.prayers.Calls())
	assert.Equal(t, PollSucceeded, h.d.prayerPoll.state)
	assert.False(t, h.d.prayerPoll.retrying())

	h.clk.Advance(2 * RetryInterval)
	assert.Equal(t, 4, h.prayers.Calls())

	h.d.tick()
	snap = h.d.Snapshot()
	assert.Empty(t, snap.PrayerError)
	assert.Len(t, snap.Prayers, prayer.SlotCount)
}

func TestPrayerFailure_FallsBackToCache(t *testing.T) {
	h := newHarness(t, at(17, 0, 0))
	h.cache.entries["2026-03-01"] = sampleResponse()
	h.prayers.setErr(errors.New("timeout"))

	h.d.start()
	h.d.tick()

	snap := h.d.Snapshot()
	assert.NotEmpty(t, snap.PrayerError)
	assert.Equal(t, "Maghrib", snap.Next)
	assert.True(t, h.d.prayerPoll.retrying())
}

func TestPrayerSuccess_WritesCache(t *testing.T) {
	h := newHarness(t, at(17, 0, 0))
	h.d.start()

	assert.NotNil(t, h.cache.entries["2026-03-01"])
}

func TestMalformedPayloadIsUnavailable(t *testing.T) {
	h := newHarness(t, at(17, 0, 0))
	resp := sampleResponse()
	resp.Data.Timings.Asr = "late"

	h.d.applyPrayers(h.d.timingsKey(), resp, nil)

	assert.ErrorIs(t, h.d.prayerPoll.err, prayer.ErrDataUnavailable)
	assert.Nil(t, h.d.schedule)
}

func TestRefresh_SkipsWhileInFlight(t *testing.T) {
	h := newHarness(t, at(17, 0, 0))
	var queued []func()
	h.d.async = func(f func()) { queued = append(queued, f) }

	h.d.refreshPrayers()
	h.d.refreshPrayers()
	require.Len(t, queued, 1)

	queued[0]()
	h.d.refreshPrayers()
	assert.Len(t, queued, 2)
}

func TestWeatherFailure_KeepsPrayerDisplay(t *testing.T) {
	h := newHarness(t, at(17, 0, 0))
	h.weather.err = weather.ErrDataUnavailable

	h.d.start()
	h.d.tick()

	snap := h.d.Snapshot()
	assert.NotEmpty(t, snap.WeatherError)
	assert.Nil(t, snap.Weather)
	assert.Len(t, snap.Prayers, prayer.SlotCount)
	assert.True(t, h.d.weatherPoll.retrying())
}

// --- timers ---

func TestWeather_RefreshesEvery30Minutes(t *testing.T) {
	h := newHarness(t, at(10, 0, 0))
	h.d.start()
	assert.Equal(t, 1, h.weather.calls)

	h.clk.Advance(WeatherInterval)
	assert.Equal(t, 2, h.weather.calls)

	h.clk.Advance(WeatherInterval)
	assert.Equal(t, 3, h.weather.calls)
}

func TestMidnightRefresh_ReschedulesDaily(t *testing.T) {
	h := newHarness(t, at(23, 59, 0))
	h.d.start()
	assert.Equal(t, 1, h.prayers.Calls())

	h.clk.Advance(64 * time.Second)
	assert.Equal(t, 1, h.prayers.Calls())

	h.clk.Advance(time.Second)
	assert.Equal(t, 2, h.prayers.Calls())
	assert.Equal(t, "02-03-2026", h.prayers.last.Date.Format("02-01-2006"))

	h.clk.Advance(24 * time.Hour)
	assert.Equal(t, 3, h.prayers.Calls())
	assert.Equal(t, "03-03-2026", h.prayers.last.Date.Format("02-01-2006"))
}

func TestStop_CancelsTimers(t *testing.T) {
	h := newHarness(t, at(10, 0, 0))
	h.prayers.setErr(errors.New("down"))
	h.d.start()
	require.Equal(t, 3, h.clk.Pending())

	h.d.stop()
	assert.Equal(t, 0, h.clk.Pending())
}

// --- robustness ---

type panicPublisher struct{}

func (panicPublisher) Publish(Snapshot) { panic("boom") }

func TestTick_PanicIsRecovered(t *testing.T) {
	h := newHarness(t, at(10, 0, 0))
	h.d.publisher = panicPublisher{}

	assert.NotPanics(t, h.d.safeTick)
}

func TestRun_StopsOnCancel(t *testing.T) {
	clk := clock.NewMockClock(at(17, 0, 0))
	ts, err := clock.NewTimeSource(clk, "UTC")
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Location = config.Location{Latitude: 30.0444, Longitude: 31.2357, Timezone: "UTC"}

	d := New(Options{
		Config:  &cfg,
		Time:    ts,
		Prayers: &fakePrayers{},
		Sound:   &fakeSound{},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		return d.Snapshot().Next == "Maghrib"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// --- theme ---

func TestTheme(t *testing.T) {
	cairo := newSunTimes(30.0444, 31.2357)
	assert.Equal(t, ThemeDay, cairo.ThemeAt(time.Date(2026, 6, 21, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, ThemeNight, cairo.ThemeAt(time.Date(2026, 6, 21, 21, 0, 0, 0, time.UTC)))
	assert.Equal(t, ThemeNight, cairo.ThemeAt(time.Date(2026, 6, 21, 1, 0, 0, 0, time.UTC)))

	unset := newSunTimes(0, 0)
	assert.Equal(t, ThemeDay, unset.ThemeAt(time.Date(2026, 6, 21, 23, 0, 0, 0, time.UTC)))
}

func TestPollStateString(t *testing.T) {
	assert.Equal(t, "idle", PollIdle.String())
	assert.Equal(t, "retrying", PollRetrying.String())
	assert.Equal(t, "succeeded", PollSucceeded.String())
}
