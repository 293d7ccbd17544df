// Package server serves the kiosk page, its websocket feed and a small
// JSON API for the dashboard.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/dashboard"
)

//go:embed web/index.html
var webFS embed.FS

var page = template.Must(template.ParseFS(webFS, "web/index.html"))

// AudioPrefix is where the audio directory is served.
const AudioPrefix = "/audio/"

// Dashboard is what the HTTP surface needs from the running dashboard.
type Dashboard interface {
	Snapshot() dashboard.Snapshot
	Refresh()
	Interact(ctx context.Context) bool
}

// Options configures the HTTP server.
type Options struct {
	Listen   string
	AudioDir string
	Title    string
	Opacity  float64
}

// Server provides the page, /ws and the API endpoints.
type Server struct {
	dash   Dashboard
	hub    *Hub
	player *BrowserPlayer
	opts   Options
	logger *zap.Logger
	server *http.Server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The kiosk page is served from this process but may be opened through
	// a reverse proxy under another host name.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New wires the routes. player may be nil when audio plays elsewhere.
func New(dash Dashboard, hub *Hub, player *BrowserPlayer, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dash:   dash,
		hub:    hub,
		player: player,
		opts:   opts,
		logger: logger.Named("http"),
	}

	hub.Handle(MsgInteract, s.handleInteractMessage)
	if player != nil {
		hub.Handle(MsgPlayResult, player.handleMessage)
	}

	s.server = &http.Server{
		Addr:         opts.Listen,
		Handler:      s.logRequests(s.Routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Routes returns the request multiplexer.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/audio/unlock", s.handleUnlock)
	mux.HandleFunc("/health", s.handleHealth)
	if s.opts.AudioDir != "" {
		mux.Handle(AudioPrefix, http.StripPrefix(AudioPrefix, http.FileServer(http.Dir(s.opts.AudioDir))))
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	errc := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("took", time.Since(start)))
	})
}

type pageData struct {
	Title   string
	Opacity float64
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, pageData{Title: s.opts.Title, Opacity: s.opts.Opacity}); err != nil {
		s.logger.Error("Failed to render page", zap.Error(err))
	}
}

// handleWS upgrades and registers a client, then sends the latest snapshot.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr)
	s.hub.register <- client

	// The pumps outlive the request; the hub and connection errors end them.
	go client.writePump()
	go client.readPump()

	msg, err := encode(MsgSnapshot, s.dash.Snapshot())
	if err != nil {
		s.logger.Warn("ws snapshot marshal failed", zap.Error(err))
		return
	}
	if !client.trySend(msg) {
		s.hub.unregister <- client
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.dash.Snapshot(), s.logger)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.dash.Refresh()
	s.logger.Info("manual refresh requested", zap.String("remote_addr", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"}, s.logger)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	unlocked := s.dash.Interact(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"unlocked": unlocked}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.Count(),
	}, s.logger)
}

func (s *Server) handleInteractMessage(c *Client, _ json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.dash.Interact(ctx) {
		s.logger.Info("audio unlocked from page", zap.String("remote_addr", c.remoteAddr))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
