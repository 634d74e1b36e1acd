package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"reign-dash/internal/state"
	"reign-dash/internal/subscription"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for simplicity
	},
}

// Navigator receives the intents the page emits.
type Navigator interface {
	subscription.Navigator
	Navigate(fragment string)
	Reconnect(uri string)
}

// Options configures the web server.
type Options struct {
	Port    string
	Version string
	// Login is required only when both credentials are set.
	AdminUsername string
	AdminPassword string
}

// Server serves the dashboard page, its live model and the intent API.
type Server struct {
	appState      *state.AppState
	nav           Navigator
	port          string
	version       string
	adminUsername string
	adminPassword string
	sessions      *sessionStore
	clients       map[*websocket.Conn]bool
	clientsMu     sync.RWMutex
	broadcast     chan []byte
	httpServer    *http.Server
	stop          chan struct{}
	stopOnce      sync.Once
}

// New creates a new web server.
func New(appState *state.AppState, nav Navigator, opts Options) *Server {
	s := &Server{
		appState:      appState,
		nav:           nav,
		port:          opts.Port,
		version:       opts.Version,
		adminUsername: opts.AdminUsername,
		adminPassword: opts.AdminPassword,
		sessions:      newSessionStore(sessionTTL),
		clients:       make(map[*websocket.Conn]bool),
		broadcast:     make(chan []byte, 256),
		stop:          make(chan struct{}),
	}

	go s.handleBroadcasts()
	go s.monitorStateChanges()

	return s
}

// authEnabled reports whether a login is required.
func (s *Server) authEnabled() bool {
	return s.adminUsername != "" && s.adminPassword != ""
}

// protect applies requireAuth when a login is configured.
func (s *Server) protect(h http.HandlerFunc) http.HandlerFunc {
	if !s.authEnabled() {
		return h
	}
	return s.requireAuth(h)
}

// Handler returns the routes of the web UI.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.protect(s.handleWebSocket))

	mux.HandleFunc("/api/state", s.protect(s.handleState))
	mux.HandleFunc("/api/select", s.protect(s.handleSelect))
	mux.HandleFunc("/api/reconnect", s.protect(s.handleReconnect))

	mux.Handle("/metrics", promhttp.Handler())

	if s.authEnabled() {
		mux.HandleFunc("/login", s.handleLogin)
		mux.HandleFunc("/logout", s.handleLogout)
	}

	mux.HandleFunc("/", s.protect(s.handleUI))
	return mux
}

// Start starts the web server in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%s", s.port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Web UI listening", "address", addr, "auth", s.authEnabled(), "component", "Web")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Web server failed", "error", err, "component", "Web")
		}
	}()
}

// Shutdown stops accepting requests and closes the live clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
	s.clientsMu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleWebSocket upgrades HTTP connection to WebSocket and manages client lifecycle.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err, "component", "Web")
		return
	}
	defer conn.Close()

	// The initial model is written under the clients lock so it cannot
	// interleave with a broadcast.
	s.clientsMu.Lock()
	data, err := json.Marshal(s.appState.Snapshot())
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, data)
	}
	if err != nil {
		s.clientsMu.Unlock()
		slog.Debug("WebSocket initial write failed", "error", err, "component", "Web")
		return
	}
	s.clients[conn] = true
	s.clientsMu.Unlock()

	slog.Debug("WebSocket client connected", "remote", r.RemoteAddr, "component", "Web")

	// Wait for client disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()

	slog.Debug("WebSocket client disconnected", "remote", r.RemoteAddr, "component", "Web")
}

// handleBroadcasts sends model updates to all connected WebSocket clients.
func (s *Server) handleBroadcasts() {
	for {
		var message []byte
		select {
		case <-s.stop:
			return
		case message = <-s.broadcast:
		}

		s.clientsMu.Lock()
		for client := range s.clients {
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				client.Close()
				delete(s.clients, client)
			}
		}
		s.clientsMu.Unlock()
	}
}

// monitorStateChanges broadcasts the model immediately on any mutation, with a
// 1-second ticker as a fallback to catch any updates that may be missed.
func (s *Server) monitorStateChanges() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	changeCh := s.appState.ChangeCh()
	var last []byte

	maybeBroadcast := func() {
		data, err := json.Marshal(s.appState.Snapshot())
		if err != nil || bytes.Equal(data, last) {
			return
		}
		last = data
		select {
		case s.broadcast <- data:
		default:
		}
	}

	for {
		select {
		case <-s.stop:
			return
		case <-changeCh:
			maybeBroadcast()
		case <-ticker.C:
			maybeBroadcast()
		}
	}
}
