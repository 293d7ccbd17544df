package dashboard

import (
	"time"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/clock"
)

// PollState is where a provider's refresh cycle stands.
type PollState int

const (
	PollIdle PollState = iota
	PollRetrying
	PollSucceeded
)

func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollRetrying:
		return "retrying"
	case PollSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// poller tracks one provider. It is only touched from the loop goroutine.
// At most one request is in flight and at most one retry timer is armed.
type poller struct {
	name     string
	clock    clock.Clock
	interval time.Duration
	post     func(func())

	state    PollState
	inflight bool
	err      error
	timer    clock.Timer
}

func newPoller(name string, c clock.Clock, interval time.Duration, post func(func())) *poller {
	return &poller{name: name, clock: c, interval: interval, post: post}
}

// begin reports whether a new request may start.
func (p *poller) begin() bool {
	if p.inflight {
		return false
	}
	p.inflight = true
	return true
}

func (p *poller) succeed() {
	p.inflight = false
	p.state = PollSucceeded
	p.err = nil
	p.stopTimer()
}

// fail records err and arms the retry timer unless one is already armed.
// retry runs on the loop goroutine.
func (p *poller) fail(err error, retry func()) {
	p.inflight = false
	p.state = PollRetrying
	p.err = err
	if p.retrying() {
		return
	}

	var t clock.Timer
	t = p.clock.AfterFunc(p.interval, func() {
		p.post(func() {
			if p.timer != t {
				return
			}
			p.timer = nil
			retry()
		})
	})
	p.timer = t
}

func (p *poller) stopTimer() {
	if p.retrying() {
		p.timer.Stop()
		p.timer = nil
	}
}

// retrying reports whether a retry timer is armed.
func (p *poller) retrying() bool { return p.timer != nil }
