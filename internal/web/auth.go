package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	sessionCookieName = "reigndash_session"
	sessionTTL        = 24 * time.Hour
)

// sessionStore tracks signed-in browsers by token. Tokens expire sessionTTL
// after login.
type sessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires map[string]time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:     ttl,
		now:     time.Now,
		expires: make(map[string]time.Time),
	}
}

// create issues a new random token and drops expired ones.
func (st *sessionStore) create() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(b)

	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()
	for t, exp := range st.expires {
		if now.After(exp) {
			delete(st.expires, t)
		}
	}
	st.expires[token] = now.Add(st.ttl)
	return token, nil
}

func (st *sessionStore) valid(token string) bool {
	if token == "" {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	exp, ok := st.expires[token]
	if !ok {
		return false
	}
	if st.now().After(exp) {
		delete(st.expires, token)
		return false
	}
	return true
}

func (st *sessionStore) revoke(token string) {
	st.mu.Lock()
	delete(st.expires, token)
	st.mu.Unlock()
}

// signedIn reports whether r carries a live session cookie.
func (s *Server) signedIn(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	return err == nil && s.sessions.valid(cookie.Value)
}

func (s *Server) credentialsMatch(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUsername))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.adminPassword))
	return userOK&passOK == 1
}

// requireAuth sends browsers to /login. The API and the model feed answer 401
// since their callers cannot follow a redirect to a form.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.signedIn(r) {
			next(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}
}

func setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (s *Server) writeLoginPage(w http.ResponseWriter, status int, problem string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(status)
	fmt.Fprint(w, loginPage(s.version, problem))
}

// handleLogin shows the sign-in form on GET and checks credentials on POST.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.signedIn(r) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		s.writeLoginPage(w, http.StatusOK, "")

	case http.MethodPost:
		username := r.FormValue("username")
		if !s.credentialsMatch(username, r.FormValue("password")) {
			slog.Warn("Failed login attempt", "username", username, "remote", r.RemoteAddr, "component", "Auth")
			s.writeLoginPage(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		token, err := s.sessions.create()
		if err != nil {
			slog.Error("Session not created", "error", err, "component", "Auth")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		setSessionCookie(w, token, int(sessionTTL.Seconds()))
		slog.Info("User logged in", "username", username, "remote", r.RemoteAddr, "component", "Auth")
		http.Redirect(w, r, "/", http.StatusFound)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLogout ends the session and returns to the sign-in form.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.sessions.revoke(cookie.Value)
		slog.Info("User logged out", "remote", r.RemoteAddr, "component", "Auth")
	}
	setSessionCookie(w, "", -1)
	http.Redirect(w, r, "/login", http.StatusFound)
}
