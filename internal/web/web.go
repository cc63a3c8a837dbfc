package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"concertcal/internal/auth"
	"concertcal/internal/calendar"
	appLog "concertcal/internal/log"
	"concertcal/internal/screen"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Follower performs the follow actions against the backend.
type Follower interface {
	FollowArtist(ctx context.Context, artistIdx int, follow bool) error
	FollowConcert(ctx context.Context, concertIdx int, follow bool) error
}

// SnapshotFunc renders the calendar page to PNG.
type SnapshotFunc func(ctx context.Context) ([]byte, error)

// Options wires the server to the rest of the application. Screen is
// required; everything else is optional.
type Options struct {
	Screen *screen.Screen

	// Fetcher serves ICS exports of months other than the displayed one.
	Fetcher calendar.Fetcher

	Follower Follower
	Auth     auth.Basic

	// PreviewPath is served by /preview.png when the file exists;
	// otherwise Snapshot renders one on demand.
	PreviewPath string
	Snapshot    SnapshotFunc
}

// Server serves the calendar screen, its JSON API and the login page.
type Server struct {
	opts      Options
	tmpl      *template.Template
	router    *mux.Router
	renderKey string
}

// NewServer parses the embedded templates and registers all routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Screen == nil {
		return nil, errors.New("web: screen is required")
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		// Colors are generated by the calendar package, never user input.
		"css": func(s string) template.CSS { return template.CSS(s) },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:      opts,
		tmpl:      tmpl,
		router:    mux.NewRouter(),
		renderKey: uuid.NewString(),
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.opts.Auth.Enabled() {
		h = s.authMiddleware(h)
	}
	return logRequest(h)
}

// CalendarURL returns the /calendar URL on base that bypasses basic auth,
// for the headless snapshot browser.
func (s *Server) CalendarURL(base string) string {
	return base + "/calendar?" + url.Values{"render_key": {s.renderKey}}.Encode()
}

func (s *Server) registerRoutes() {
	r := s.router

	r.Path("/health").HandlerFunc(s.handleHealth).Methods(http.MethodGet)
	r.Path("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/calendar", http.StatusTemporaryRedirect)
	}).Methods(http.MethodGet)

	r.Path("/calendar").HandlerFunc(s.handleCalendarPage).Methods(http.MethodGet)
	r.Path("/calendar/prev").HandlerFunc(s.handleNavigatePage(s.opts.Screen.Prev)).Methods(http.MethodPost)
	r.Path("/calendar/next").HandlerFunc(s.handleNavigatePage(s.opts.Screen.Next)).Methods(http.MethodPost)
	r.Path("/calendar/goto").HandlerFunc(s.handleGoTo).Methods(http.MethodPost)

	r.Path("/login").HandlerFunc(s.handleLoginPage).Methods(http.MethodGet)
	r.Path("/login").HandlerFunc(s.handleLogin).Methods(http.MethodPost)
	r.Path("/logout").HandlerFunc(s.handleLogout).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Path("/calendar").HandlerFunc(s.handleCalendarJSON).Methods(http.MethodGet)
	api.Path("/calendar/prev").HandlerFunc(s.handleNavigateJSON(s.opts.Screen.Prev)).Methods(http.MethodPost)
	api.Path("/calendar/next").HandlerFunc(s.handleNavigateJSON(s.opts.Screen.Next)).Methods(http.MethodPost)
	api.Path("/calendar/{year:[0-9]{4}}/{month:[0-9]{1,2}}.ics").HandlerFunc(s.handleExport).Methods(http.MethodGet)
	api.Path("/artists/{id:[0-9]+}/follow").HandlerFunc(s.handleFollow(followArtist)).Methods(http.MethodPost)
	api.Path("/concerts/{id:[0-9]+}/save").HandlerFunc(s.handleFollow(followConcert)).Methods(http.MethodPost)

	r.Path("/preview.png").HandlerFunc(s.handlePreview).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last scheduled snapshot, or renders a fresh one
// once the displayed month has resolved.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.opts.PreviewPath != "" {
		if _, err := os.Stat(s.opts.PreviewPath); err == nil {
			http.ServeFile(w, r, s.opts.PreviewPath)
			return
		}
	}
	if s.opts.Snapshot == nil {
		writeError(w, http.StatusNotFound, "no preview available")
		return
	}

	// The snapshot browser waits for data-ready, which /login never sets.
	if err := s.opts.Screen.WaitReady(r.Context()); err != nil {
		if errors.Is(err, screen.ErrLoginRequired) {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "calendar not ready")
		return
	}

	png, err := s.opts.Snapshot(r.Context())
	if err != nil {
		appLog.Error("web: preview snapshot failed", err)
		writeError(w, http.StatusBadGateway, "failed to render preview")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// authMiddleware applies basic auth to everything except /health and the
// snapshot browser's render key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	protected := s.opts.Auth.Middleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodGet && r.URL.Path == "/calendar" {
			key := r.URL.Query().Get("render_key")
			if key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.renderKey)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		protected.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

// logRequest tags each request with an X-Request-Id and logs the outcome
// at a level matching the status class.
func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		sr := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		t0 := time.Now()
		next.ServeHTTP(sr, r)

		kv := []any{"request_id", id, "remote", r.RemoteAddr, "code", sr.code, "took", time.Since(t0)}
		msg := r.Method + " " + r.URL.Path
		switch {
		case sr.code < 400:
			appLog.Debug(msg, kv...)
		case sr.code < 500:
			appLog.Warn(msg, kv...)
		default:
			appLog.Error(msg, errors.New(http.StatusText(sr.code)), kv...)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
