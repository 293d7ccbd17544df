package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/dashboard"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/sound"
)

// --- fakes ---

type fakeDashboard struct {
	mu        sync.Mutex
	snap      dashboard.Snapshot
	refreshes int
	interacts int
}

func (d *fakeDashboard) Snapshot() dashboard.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

func (d *fakeDashboard) Refresh() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshes++
}

func (d *fakeDashboard) Interact(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interacts++
	return d.interacts == 1
}

func (d *fakeDashboard) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshes, d.interacts
}

func newTestServer(t *testing.T, audioDir string) (*Server, *Hub, *fakeDashboard) {
	t.Helper()
	hub := NewHub(zap.NewNop(), HubConfig{SendBuf: 4, BroadcastBuf: 8})
	dash := &fakeDashboard{snap: dashboard.Snapshot{Clock: "17:00:00", Next: "Maghrib"}}
	player := NewBrowserPlayer(hub, AudioPrefix, zap.NewNop())
	srv := New(dash, hub, player, Options{Listen: ":0", AudioDir: audioDir, Title: "مسجد النور", Opacity: 0.2}, zap.NewNop())
	return srv, hub, dash
}

func runHub(t *testing.T, hub *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func testClient(hub *Hub, name string, buf int) *Client {
	return &Client{hub: hub, send: make(chan []byte, buf), remoteAddr: name, log: zap.NewNop()}
}

// --- hub ---

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), HubConfig{SendBuf: 4, BroadcastBuf: 8})
	runHub(t, hub)

	c1 := testClient(hub, "c1", 4)
	c2 := testClient(hub, "c2", 4)
	hub.register <- c1
	hub.register <- c2
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(MsgSnapshot, map[string]string{"clock": "05:10:00"})

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			var env envelope
			require.NoError(t, json.Unmarshal(got, &env))
			assert.Equal(t, MsgSnapshot, env.Type)
			assert.NotNil(t, env.TS)
			assert.JSONEq(t, `{"clock":"05:10:00"}`, string(env.Data))
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := NewHub(zap.NewNop(), HubConfig{SendBuf: 1, BroadcastBuf: 8})
	runHub(t, hub)

	slow := testClient(hub, "slow", 1)
	hub.register <- slow
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastBytes([]byte(`{"type":"a"}`))
	hub.BroadcastBytes([]byte(`{"type":"b"}`))

	require.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)

	// The first frame was queued, then the channel was closed.
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHub_DispatchRoutesByType(t *testing.T) {
	hub := NewHub(zap.NewNop(), HubConfig{})
	var got json.RawMessage
	hub.Handle("echo", func(_ *Client, data json.RawMessage) { got = data })

	c := testClient(hub, "c", 1)
	hub.dispatch(c, []byte(`{"type":"echo","data":{"x":1}}`))
	assert.JSONEq(t, `{"x":1}`, string(got))

	assert.NotPanics(t, func() {
		hub.dispatch(c, []byte(`not json`))
		hub.dispatch(c, []byte(`{"type":"unknown"}`))
	})
}

func TestHub_OnRegisterCalledPerClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), HubConfig{})
	got := make(chan string, 2)
	hub.OnRegister(func(c *Client) { got <- c.remoteAddr })
	runHub(t, hub)

	hub.register <- testClient(hub, "c1", 1)
	hub.register <- testClient(hub, "c2", 1)

	var names []string
	for range 2 {
		select {
		case name := <-got:
			names = append(names, name)
		case <-time.After(time.Second):
			t.Fatal("OnRegister not called")
		}
	}
	assert.ElementsMatch(t, []string{"c1", "c2"}, names)
}

func TestHub_PublishSendsSnapshot(t *testing.T) {
	hub := NewHub(zap.NewNop(), HubConfig{})
	hub.Publish(dashboard.Snapshot{Clock: "12:00:00"})

	msg := <-hub.broadcast
	var env envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, MsgSnapshot, env.Type)
	assert.Contains(t, string(env.Data), `"clock":"12:00:00"`)
}

func TestClient_TrySendOnClosedChannel(t *testing.T) {
	c := testClient(NewHub(zap.NewNop(), HubConfig{}), "c", 1)
	close(c.send)
	assert.False(t, c.trySend([]byte("x")))
}

// --- browser player ---

type recordingHub struct {
	mu      sync.Mutex
	clients int
	sent    []outbound
	onSend  func(typ string, data any)
}

func (h *recordingHub) Broadcast(typ string, data any) {
	h.mu.Lock()
	h.sent = append(h.sent, outbound{Type: typ, Data: data})
	fn := h.onSend
	h.mu.Unlock()
	if fn != nil {
		fn(typ, data)
	}
}

func (h *recordingHub) Count() int { return h.clients }

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, m := range h.sent {
		out = append(out, m.Type)
	}
	return out
}

func TestBrowserPlayer_NoClients(t *testing.T) {
	p := NewBrowserPlayer(&recordingHub{}, AudioPrefix, zap.NewNop())
	assert.ErrorIs(t, p.Play(context.Background(), "adhan.mp3"), ErrNoClients)
	assert.ErrorIs(t, p.Probe(context.Background()), ErrNoClients)
}

func TestBrowserPlayer_Success(t *testing.T) {
	hub := &recordingHub{clients: 1}
	p := NewBrowserPlayer(hub, AudioPrefix, zap.NewNop())
	hub.onSend = func(typ string, data any) {
		if typ == MsgPlay {
			cmd := data.(PlayCommand)
			assert.Equal(t, "/audio/adhan%20makkah.mp3", cmd.URL)
			go p.HandleResult(PlayResult{ID: cmd.ID, OK: true})
		}
	}

	require.NoError(t, p.Play(context.Background(), "adhan makkah.mp3"))
	assert.Equal(t, []string{MsgPlay}, hub.types())
}

func TestBrowserPlayer_Failure(t *testing.T) {
	hub := &recordingHub{clients: 1}
	p := NewBrowserPlayer(hub, AudioPrefix, zap.NewNop())
	hub.onSend = func(typ string, data any) {
		cmd := data.(PlayCommand)
		go p.HandleResult(PlayResult{ID: cmd.ID, OK: false, Reason: "NotAllowedError"})
	}

	err := p.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotAllowedError")
}

func TestBrowserPlayer_FailedPageStopsTheOthers(t *testing.T) {
	hub := &recordingHub{clients: 2}
	p := NewBrowserPlayer(hub, AudioPrefix, zap.NewNop())

	// Page A rejects the first request; page B would still be playing it.
	rejected := false
	hub.onSend = func(typ string, data any) {
		if typ != MsgPlay {
			return
		}
		cmd := data.(PlayCommand)
		ok := rejected
		rejected = true
		go p.HandleResult(PlayResult{ID: cmd.ID, OK: ok, Reason: "NotAllowedError"})
	}

	require.Error(t, p.Play(context.Background(), "adhan1.mp3"))
	require.NoError(t, p.Play(context.Background(), "adhan2.mp3"))

	hub.mu.Lock()
	sent := append([]outbound(nil), hub.sent...)
	hub.mu.Unlock()
	require.Len(t, sent, 3)
	assert.Equal(t, MsgPlay, sent[0].Type)
	assert.Equal(t, MsgStop, sent[1].Type)
	assert.Equal(t, sent[0].Data.(PlayCommand).ID, sent[1].Data.(PlayCommand).ID)
	assert.Equal(t, MsgPlay, sent[2].Type)
}

func TestBrowserPlayer_CancelSendsStop(t *testing.T) {
	hub := &recordingHub{clients: 1}
	p := NewBrowserPlayer(hub, AudioPrefix, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	hub.onSend = func(typ string, _ any) {
		if typ == MsgPlay {
			cancel()
		}
	}

	err := p.Play(ctx, "adhan.mp3")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{MsgPlay, MsgStop}, hub.types())
}

func TestBrowserPlayer_Timeout(t *testing.T) {
	hub := &recordingHub{clients: 1}
	p := NewBrowserPlayer(hub, AudioPrefix, zap.NewNop())
	p.probeTimeout = 20 * time.Millisecond

	err := p.Probe(context.Background())
	assert.True(t, errors.Is(err, ErrPlayTimeout), "got %v", err)
}

func TestBrowserPlayer_UnknownResultIgnored(t *testing.T) {
	p := NewBrowserPlayer(&recordingHub{}, AudioPrefix, zap.NewNop())
	assert.NotPanics(t, func() { p.HandleResult(PlayResult{ID: "42", OK: true}) })
}

func TestBrowserPlayer_URL(t *testing.T) {
	p := NewBrowserPlayer(&recordingHub{}, AudioPrefix, zap.NewNop())
	assert.Equal(t, "/audio/fajr/a.mp3", p.URL("fajr/a.mp3"))
	assert.Equal(t, "/static/x.mp3", p.URL("/static/x.mp3"))
	assert.Equal(t, "https://cdn.example.com/a.mp3", p.URL("https://cdn.example.com/a.mp3"))
}

// --- HTTP handlers ---

func TestHandleIndex(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "مسجد النور")

	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleState(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var snap dashboard.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.Equal(t, "17:00:00", snap.Clock)
	assert.Equal(t, "Maghrib", snap.Next)
}

func TestHandleRefresh(t *testing.T) {
	srv, _, dash := newTestServer(t, "")

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/refresh", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	refreshes, _ := dash.counts()
	assert.Equal(t, 1, refreshes)
}

func TestHandleUnlock(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/audio/unlock", nil))
	assert.JSONEq(t, `{"unlocked":true}`, w.Body.String())

	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/audio/unlock", nil))
	assert.JSONEq(t, `{"unlocked":false}`, w.Body.String())
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, "")

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","clients":0}`, w.Body.String())
}

func TestAudioFilesServed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "iqama.wav"), []byte("RIFF"), 0o644))
	srv, _, _ := newTestServer(t, dir)

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audio/iqama.wav", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RIFF", w.Body.String())
}

// --- websocket end to end ---

func TestWebSocket_SnapshotOnConnectAndInteract(t *testing.T) {
	srv, hub, dash := newTestServer(t, "")
	runHub(t, hub)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, MsgSnapshot, env.Type)
	assert.Contains(t, string(env.Data), `"clock":"17:00:00"`)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": MsgInteract}))
	require.Eventually(t, func() bool {
		_, interacts := dash.counts()
		return interacts == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWebSocket_PlayRoundTrip(t *testing.T) {
	srv, hub, _ := newTestServer(t, "")
	runHub(t, hub)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	// The page: acknowledge every play command.
	go func() {
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Type != MsgPlay {
				continue
			}
			var cmd PlayCommand
			if json.Unmarshal(env.Data, &cmd) != nil {
				return
			}
			_ = conn.WriteJSON(map[string]any{
				"type": MsgPlayResult,
				"data": PlayResult{ID: cmd.ID, OK: true},
			})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, srv.player.Play(ctx, "adhan.mp3"))
}

type approvals struct {
	mu       sync.Mutex
	approved bool
}

func (a *approvals) Approved(context.Context, string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.approved, nil
}

func (a *approvals) SetApproved(_ context.Context, _ string, v bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.approved = v
	return nil
}

func TestWebSocket_ConnectingPageUnlocksApprovedAudio(t *testing.T) {
	srv, hub, _ := newTestServer(t, "")
	policy := sound.NewPolicy(srv.player, zap.NewNop(),
		sound.WithApprovalStore(&approvals{approved: true}, "browser:test"))
	t.Cleanup(policy.Close)
	hub.OnRegister(func(*Client) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		policy.Reprobe(ctx)
	})
	runHub(t, hub)

	// Boot: no page yet, so the probe fails and the prompt shows.
	policy.Start(context.Background())
	require.True(t, policy.State().Prompt)
	require.False(t, policy.State().Unlocked)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The page: autoplay is allowed, so every probe succeeds.
	go func() {
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			if env.Type != MsgProbe {
				continue
			}
			var cmd PlayCommand
			if json.Unmarshal(env.Data, &cmd) != nil {
				return
			}
			_ = conn.WriteJSON(map[string]any{
				"type": MsgPlayResult,
				"data": PlayResult{ID: cmd.ID, OK: true},
			})
		}
	}()

	require.Eventually(t, func() bool { return policy.State().Unlocked }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, policy.State().Prompt)
}
