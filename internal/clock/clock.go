// Package clock abstracts wall-clock time so the dashboard's timers can be
// driven deterministically in tests. RealClock is used in production and
// MockClock in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the dashboard depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer

	// NewTicker returns a ticker that delivers the time every d.
	NewTicker(d time.Duration) Ticker
}

// Timer is a pending AfterFunc call that can be cancelled.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock with the standard time package.
type RealClock struct{}

// NewRealClock creates a RealClock.
func NewRealClock() *RealClock {
	return &RealClock{}
}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// MockClock is a manually advanced Clock for tests. Timers and tickers fire
// synchronously from Advance, in deadline order.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
	tickers []*mockTicker
}

type mockTimer struct {
	deadline time.Time
	f        func()
	stopped  bool
}

type mockTicker struct {
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

// NewMockClock creates a MockClock starting at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{current: start}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run when the mock time reaches now+d.
func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{deadline: c.current.Add(d), f: f}
	c.timers = append(c.timers, t)
	return &mockTimerHandle{clock: c, timer: t}
}

// NewTicker returns a ticker whose channel receives the mock time on every
// period crossed by Advance. Ticks are dropped if the channel is full.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTicker{ch: make(chan time.Time, 1), period: d, next: c.current.Add(d)}
	c.tickers = append(c.tickers, t)
	return &mockTickerHandle{clock: c, ticker: t}
}

// Pending reports how many timers have not yet fired or been stopped.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every timer whose deadline is
// reached. Callbacks run outside the lock so they may schedule new timers.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *mockTimer
		for _, t := range c.timers {
			if t.stopped || t.deadline.After(target) {
				continue
			}
			if due == nil || t.deadline.Before(due.deadline) {
				due = t
			}
		}
		if due == nil {
			c.current = target
			c.fireTickers(target)
			c.compact()
			c.mu.Unlock()
			return
		}
		due.stopped = true
		if due.deadline.After(c.current) {
			c.current = due.deadline
		}
		f := due.f
		c.mu.Unlock()
		f()
	}
}

// Set jumps the clock to t. Moving backwards never fires timers.
func (c *MockClock) Set(t time.Time) {
	now := c.Now()
	if t.After(now) {
		c.Advance(t.Sub(now))
		return
	}
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// fireTickers must be called with c.mu held.
func (c *MockClock) fireTickers(now time.Time) {
	for _, tk := range c.tickers {
		if tk.stopped {
			continue
		}
		for !tk.next.After(now) {
			select {
			case tk.ch <- tk.next:
			default:
			}
			tk.next = tk.next.Add(tk.period)
		}
	}
}

// compact must be called with c.mu held.
func (c *MockClock) compact() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
}

type mockTimerHandle struct {
	clock *MockClock
	timer *mockTimer
}

func (h *mockTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	wasActive := !h.timer.stopped
	h.timer.stopped = true
	return wasActive
}

type mockTickerHandle struct {
	clock  *MockClock
	ticker *mockTicker
}

func (h *mockTickerHandle) C() <-chan time.Time { return h.ticker.ch }

func (h *mockTickerHandle) Stop() {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	h.ticker.stopped = true
}
