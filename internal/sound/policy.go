// Package sound decides what audio plays and when. A Policy shuffles the
// candidate list, falls back through it on failure, keeps at most one
// playback in flight, and holds requests until audio has been unlocked.
package sound

import (
	"context"
	"math/rand"
	"sync"

	"go.uber.org/zap"
)

// Player renders a single audio resource.
type Player interface {
	// Play blocks until the resource finished, failed, or ctx was cancelled.
	Play(ctx context.Context, resource string) error

	// Probe checks silently whether playback is currently permitted.
	Probe(ctx context.Context) error
}

// ApprovalStore persists whether the operator approved audio for an origin.
type ApprovalStore interface {
	Approved(ctx context.Context, origin string) (bool, error)
	SetApproved(ctx context.Context, origin string, approved bool) error
}

// Kind labels why audio was requested.
type Kind string

const (
	KindAdhan Kind = "adhan"
	KindIqama Kind = "iqama"
)

// State is a point-in-time view of the policy for display.
type State struct {
	Unlocked bool   `json:"unlocked"`
	Prompt   bool   `json:"prompt"`
	Pending  bool   `json:"pending"`
	Kind     Kind   `json:"kind,omitempty"`
	Playing  string `json:"playing,omitempty"`
}

type request struct {
	kind       Kind
	candidates []string
}

// Policy is safe for concurrent use.
type Policy struct {
	player Player
	store  ApprovalStore
	origin string
	log    *zap.Logger
	intN   func(n int) int

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	unlocked bool
	prompt   bool
	pending  *request
	cancel   context.CancelFunc
	gen      uint64
	busy     bool
	kind     Kind
	playing  string
}

// Option configures a Policy.
type Option func(*Policy)

// WithApprovalStore persists unlock approval under origin.
func WithApprovalStore(store ApprovalStore, origin string) Option {
	return func(p *Policy) {
		p.store = store
		p.origin = origin
	}
}

// WithRandom replaces the source used by the shuffle. intN must return a
// value in [0, n).
func WithRandom(intN func(n int) int) Option {
	return func(p *Policy) { p.intN = intN }
}

// NewPolicy creates a locked Policy.
func NewPolicy(player Player, logger *zap.Logger, opts ...Option) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, stop := context.WithCancel(context.Background())
	p := &Policy{
		player: player,
		log:    logger,
		intN:   rand.Intn,
		base:   base,
		stop:   stop,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the one-time unlock check. With a recorded approval a silent
// probe is attempted; otherwise, or if the probe fails, the prompt is shown.
func (p *Policy) Start(ctx context.Context) {
	if p.approved(ctx) {
		err := p.player.Probe(ctx)
		if err == nil {
			p.log.Info("audio unlocked from previous approval")
			p.unlock()
			return
		}
		p.log.Info("silent audio probe failed, prompting", zap.Error(err))
	}

	p.mu.Lock()
	if !p.unlocked {
		p.prompt = true
	}
	p.mu.Unlock()
}

// Reprobe repeats the silent probe while audio is still locked and an
// approval is recorded. Players whose output appears after Start, such as
// a kiosk page connecting, call it then. It reports whether it unlocked.
func (p *Policy) Reprobe(ctx context.Context) bool {
	p.mu.Lock()
	unlocked := p.unlocked
	p.mu.Unlock()
	if unlocked || !p.approved(ctx) {
		return false
	}

	if err := p.player.Probe(ctx); err != nil {
		p.log.Debug("silent audio probe failed", zap.Error(err))
		return false
	}
	if !p.unlock() {
		return false
	}
	p.log.Info("audio unlocked from previous approval")
	return true
}

func (p *Policy) approved(ctx context.Context) bool {
	if p.store == nil {
		return false
	}
	ok, err := p.store.Approved(ctx, p.origin)
	if err != nil {
		p.log.Warn("failed to read audio approval", zap.Error(err))
	}
	return ok
}

// Interact records a user gesture. The first call unlocks audio for the
// session, records approval and flushes the pending request. It reports
// whether this call performed the unlock.
func (p *Policy) Interact(ctx context.Context) bool {
	if !p.unlock() {
		return false
	}
	p.log.Info("audio unlocked by interaction")
	if p.store != nil {
		if err := p.store.SetApproved(ctx, p.origin, true); err != nil {
			p.log.Warn("failed to record audio approval", zap.Error(err))
		}
	}
	return true
}

func (p *Policy) unlock() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlocked {
		return false
	}
	p.unlocked = true
	p.prompt = false
	if req := p.pending; req != nil {
		p.pending = nil
		p.startLocked(req.kind, req.candidates)
	}
	return true
}

// Play requests one of candidates. It never blocks on playback and never
// reports failure. While locked the request replaces any pending one. A new
// request supersedes the one in flight; callers that must not interrupt
// check Busy first.
func (p *Policy) Play(kind Kind, candidates []string) {
	if len(candidates) == 0 {
		return
	}
	list := append([]string(nil), candidates...)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.unlocked {
		p.pending = &request{kind: kind, candidates: list}
		p.log.Debug("audio locked, request held", zap.String("kind", string(kind)))
		return
	}
	p.startLocked(kind, list)
}

// startLocked must be called with p.mu held.
func (p *Policy) startLocked(kind Kind, candidates []string) {
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(p.base)
	p.cancel = cancel
	p.busy = true
	p.kind = kind
	p.playing = ""

	order := Shuffle(candidates, p.intN)
	p.wg.Add(1)
	go p.run(ctx, gen, kind, order)
}

func (p *Policy) run(ctx context.Context, gen uint64, kind Kind, order []string) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("audio playback panicked", zap.Any("panic", r))
		}
		p.finish(gen)
	}()

	for _, res := range order {
		if ctx.Err() != nil {
			return
		}
		p.setPlaying(gen, res)
		err := p.player.Play(ctx, res)
		if err == nil {
			p.log.Info("audio played", zap.String("kind", string(kind)), zap.String("resource", res))
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.log.Debug("audio resource failed, trying next", zap.String("resource", res), zap.Error(err))
	}
	p.log.Debug("no playable audio resource", zap.String("kind", string(kind)))
}

func (p *Policy) setPlaying(gen uint64, res string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.playing = res
	}
}

func (p *Policy) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.busy = false
	p.kind = ""
	p.playing = ""
}

// Busy reports whether a playback is in flight.
func (p *Policy) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// State returns the current unlock and playback state.
func (p *Policy) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Unlocked: p.unlocked,
		Prompt:   p.prompt,
		Pending:  p.pending != nil,
		Kind:     p.kind,
		Playing:  p.playing,
	}
}

// Wait blocks until every playback started so far has ended.
func (p *Policy) Wait() {
	p.wg.Wait()
}

// Close cancels any playback and waits for it to end.
func (p *Policy) Close() {
	p.stop()
	p.wg.Wait()
}

// Shuffle returns a Fisher–Yates shuffled copy of list. intN must return a
// value in [0, n).
func Shuffle(list []string, intN func(n int) int) []string {
	out := append([]string(nil), list...)
	for i := len(out) - 1; i > 0; i-- {
		j := intN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
