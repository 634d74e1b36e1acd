package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Selection kinds accepted by POST /api/select.
const (
	SelectCluster  = "cluster"
	SelectService  = "service"
	SelectCoord    = "coord"
	SelectFragment = "fragment"
)

// handleState returns the current dashboard model as JSON.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.appState.Snapshot())
}

// handleSelect forwards a navigation intent to the session.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		http.Error(w, "ID is required", http.StatusBadRequest)
		return
	}

	switch req.Kind {
	case SelectCluster:
		s.nav.SelectCluster(req.ID)
	case SelectService:
		s.nav.SelectService(req.ID)
	case SelectCoord:
		s.nav.SelectCoordEntity(req.ID)
	case SelectFragment:
		s.nav.Navigate(req.ID)
	default:
		http.Error(w, fmt.Sprintf("Unknown selection kind %q", req.Kind), http.StatusBadRequest)
		return
	}

	slog.Debug("Selection requested", "kind", req.Kind, "id", req.ID, "component", "Web")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "queued",
		"kind":   req.Kind,
		"id":     req.ID,
	})
}

// handleReconnect reopens the backend connection, optionally to a new URI.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		URI string `json:"uri"`
	}
	// An empty body reconnects to the current URI.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	uri := strings.TrimSpace(req.URI)
	if uri != "" && !strings.HasPrefix(uri, "ws://") && !strings.HasPrefix(uri, "wss://") {
		http.Error(w, "URI must use ws:// or wss://", http.StatusBadRequest)
		return
	}

	s.nav.Reconnect(uri)
	slog.Info("Reconnect requested", "uri", uri, "remote", r.RemoteAddr, "component", "Web")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "reconnecting", "uri": uri})
}

// handleUI serves the embedded UI.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	logout := ""
	if s.authEnabled() {
		logout = `<a class="logout" href="/logout">Sign out</a>`
	}
	header := strings.ReplaceAll(dashboardHeader, "<!--LOGOUT-->", logout)

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, renderPage("Reign Dash", s.version, header, dashboardBody))
}
