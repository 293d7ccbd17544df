package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoClients is returned when no page is connected to play audio.
var ErrNoClients = errors.New("no dashboard page connected")

// ErrPlayTimeout is returned when no page reported a result in time.
var ErrPlayTimeout = errors.New("audio result timed out")

const (
	defaultPlayTimeout  = 15 * time.Minute
	defaultProbeTimeout = 5 * time.Second
)

// PlayCommand asks the page to play a URL.
type PlayCommand struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// PlayResult is the page's report for one command.
type PlayResult struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Broadcaster is the part of the hub the player needs.
type Broadcaster interface {
	Broadcast(typ string, data any)
	Count() int
}

// BrowserPlayer plays audio in the connected kiosk pages. Each request is
// a websocket round trip: the page reports success once playback ended, or
// failure if the browser refused or could not load the file. The first
// result for an id wins; a failure stops the request on every page.
type BrowserPlayer struct {
	hub          Broadcaster
	prefix       string
	playTimeout  time.Duration
	probeTimeout time.Duration
	log          *zap.Logger

	mu      sync.Mutex
	waiting map[string]chan PlayResult
}

// NewBrowserPlayer resolves relative resources under prefix (e.g. "/audio/").
func NewBrowserPlayer(hub Broadcaster, prefix string, logger *zap.Logger) *BrowserPlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserPlayer{
		hub:          hub,
		prefix:       prefix,
		playTimeout:  defaultPlayTimeout,
		probeTimeout: defaultProbeTimeout,
		log:          logger.Named("browser-audio"),
		waiting:      make(map[string]chan PlayResult),
	}
}

// Play asks the pages to play resource and waits for the outcome.
func (p *BrowserPlayer) Play(ctx context.Context, resource string) error {
	return p.roundTrip(ctx, MsgPlay, p.URL(resource), p.playTimeout)
}

// Probe asks the pages to play a silent clip, which fails when the browser
// still blocks autoplay.
func (p *BrowserPlayer) Probe(ctx context.Context) error {
	return p.roundTrip(ctx, MsgProbe, "", p.probeTimeout)
}

// URL returns the address the page fetches resource from. Absolute URLs
// and rooted paths are used as given.
func (p *BrowserPlayer) URL(resource string) string {
	if strings.HasPrefix(resource, "/") || strings.Contains(resource, "://") {
		return resource
	}
	u := url.URL{Path: path.Join(p.prefix, resource)}
	return u.EscapedPath()
}

func (p *BrowserPlayer) roundTrip(ctx context.Context, typ, target string, timeout time.Duration) error {
	if p.hub.Count() == 0 {
		return ErrNoClients
	}

	id := uuid.NewString()
	ch := make(chan PlayResult, 1)
	p.mu.Lock()
	p.waiting[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.waiting, id)
		p.mu.Unlock()
	}()

	p.hub.Broadcast(typ, PlayCommand{ID: id, URL: target})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if !res.OK {
			// Other pages may still be playing this id.
			p.hub.Broadcast(MsgStop, PlayCommand{ID: id})
			return fmt.Errorf("page could not %s %s: %s", typ, target, res.Reason)
		}
		return nil
	case <-ctx.Done():
		p.hub.Broadcast(MsgStop, PlayCommand{ID: id})
		return ctx.Err()
	case <-timer.C:
		p.hub.Broadcast(MsgStop, PlayCommand{ID: id})
		return fmt.Errorf("%s %s: %w", typ, target, ErrPlayTimeout)
	}
}

// HandleResult delivers a page report to the waiting request, if any.
func (p *BrowserPlayer) HandleResult(res PlayResult) {
	p.mu.Lock()
	ch, ok := p.waiting[res.ID]
	p.mu.Unlock()
	if !ok {
		p.log.Debug("audio result for unknown request", zap.String("id", res.ID))
		return
	}
	select {
	case ch <- res:
	default:
	}
}

// handleMessage adapts HandleResult to the hub.
func (p *BrowserPlayer) handleMessage(_ *Client, data json.RawMessage) {
	var res PlayResult
	if err := json.Unmarshal(data, &res); err != nil {
		p.log.Debug("bad play_result payload", zap.Error(err))
		return
	}
	p.HandleResult(res)
}
