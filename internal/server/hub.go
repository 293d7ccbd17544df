package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/dashboard"
)

// Message types on the /ws connection.
const (
	MsgSnapshot   = "snapshot"
	MsgPlay       = "play"
	MsgStop       = "stop"
	MsgProbe      = "probe"
	MsgInteract   = "interact"
	MsgPlayResult = "play_result"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	maxMessageSize = 4096
)

// envelope is the wire format of every websocket frame.
type envelope struct {
	Type string          `json:"type"`
	TS   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// outbound mirrors envelope with an unencoded payload.
type outbound struct {
	Type string     `json:"type"`
	TS   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func encode(typ string, data any) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(outbound{Type: typ, TS: &now, Data: data})
}

// HandlerFunc handles one inbound message type.
type HandlerFunc func(c *Client, data json.RawMessage)

// HubConfig sizes the hub queues. Zero values use defaults.
type HubConfig struct {
	SendBuf      int
	BroadcastBuf int
}

// Hub tracks connected kiosk pages and fans frames out to them. A client
// that cannot keep up is disconnected.
type Hub struct {
	log *zap.Logger

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	// handlers and onRegister are written before Run and read-only
	// afterwards.
	handlers   map[string]HandlerFunc
	onRegister func(*Client)

	sendBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *zap.Logger, cfg HubConfig) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		log:        logger.Named("ws"),
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		handlers:   make(map[string]HandlerFunc),
		sendBuf:    sendBuf,
	}
}

// Handle registers fn for inbound messages of type typ. It must be called
// before Run.
func (h *Hub) Handle(typ string, fn HandlerFunc) {
	h.handlers[typ] = fn
}

// OnRegister sets fn to run in its own goroutine after each client
// registers. It must be called before Run.
func (h *Hub) OnRegister(fn func(*Client)) {
	h.onRegister = fn
}

// Run processes hub events until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.log.Info("ws hub stopping")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("ws client registered", zap.String("remote_addr", c.remoteAddr), zap.Int("clients", n))
			if h.onRegister != nil {
				go h.onRegister(c)
			}

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	safeCloseChan(c.send)
	h.log.Info("ws client disconnected",
		zap.String("remote_addr", c.remoteAddr), zap.String("reason", reason), zap.Int("clients", n))
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // close of closed channel
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized frame. It never blocks; when
// the queue is full the frame is dropped.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("ws hub broadcast queue full, dropping message", zap.Int("bytes", len(msg)))
	}
}

// Broadcast wraps data in an envelope of type typ and enqueues it.
func (h *Hub) Broadcast(typ string, data any) {
	msg, err := encode(typ, data)
	if err != nil {
		h.log.Warn("ws broadcast marshal failed", zap.String("type", typ), zap.Error(err))
		return
	}
	h.BroadcastBytes(msg)
}

// Publish sends a dashboard snapshot to every page.
func (h *Hub) Publish(s dashboard.Snapshot) {
	h.Broadcast(MsgSnapshot, s)
}

func (h *Hub) dispatch(c *Client, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.log.Debug("ws message ignored", zap.String("remote_addr", c.remoteAddr), zap.Error(err))
		return
	}
	fn, ok := h.handlers[env.Type]
	if !ok {
		h.log.Debug("ws message type unknown", zap.String("type", env.Type))
		return
	}
	fn(c, env.Data)
}

// Client is one connected page.
type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	log        *zap.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, hub.sendBuf),
		remoteAddr: remoteAddr,
		log:        hub.log,
	}
}

// trySend enqueues msg for this client only. It reports false when the
// client is too slow.
func (c *Client) trySend(msg []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false // send on closed channel
		}
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// closeStatus extracts a websocket close code and text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.log.Info("ws "+pump+" exiting (close)",
			zap.String("remote_addr", c.remoteAddr), zap.Int("code", code), zap.String("reason", text))
		return
	}
	c.log.Info("ws "+pump+" exiting", zap.String("remote_addr", c.remoteAddr), zap.Error(err))
}

// writePump writes queued frames and keepalive pings. It exits on write
// error or when send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump dispatches inbound frames until the connection fails, then
// unregisters the client.
func (c *Client) readPump() {
	defer func() { c.hub.unregister <- c }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", err)
			return
		}
		c.hub.dispatch(c, msg)
	}
}
