package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"sync"
	"time"

	"barojab/internal/calgrid"
	"barojab/internal/config"
	"barojab/internal/gcal"
	"barojab/internal/ics"
	appLog "barojab/internal/log"
	"barojab/internal/session"
	"barojab/internal/statetoken"
)

const sessionCookie = "barojab_session"

// markerCacheTTL bounds how stale the per-month event markers may get
// between provider queries. The cron refresh warms the current month; this
// cache absorbs repeated renders in between.
const markerCacheTTL = 60 * time.Second

// Server is the page controller: it owns the HTTP surface, reads the
// per-session render state before each cycle, invokes the pure grid/token
// components, and persists the updated state.
type Server struct {
	cfg   *config.Config
	debug bool
	mux   *http.ServeMux
	tmpl  *template.Template

	guard      *statetoken.Guard // nil when login is not configured
	google     *gcal.Client      // nil when login is not configured
	icsMarkers *ics.MarkerSource
	sessions   *session.Store

	displayLoc *time.Location
	weekStart  time.Weekday

	// In-memory cache for marker sets, keyed per session and month, so a
	// navigation click does not re-query the provider on every render.
	markersMu    sync.RWMutex
	markersCache map[markerKey]*markerEntry
}

type markerKey struct {
	sessionID string // "" for the shared ICS source
	year      int
	month     int
}

type markerEntry struct {
	days      map[int]bool
	updatedAt time.Time
}

//go:embed templates/*.gohtml
var embeddedTemplates embed.FS

// NewServer constructs a new Server. Login handlers are only wired when the
// google_oauth section is fully configured.
func NewServer(cfg *config.Config, store *session.Store, debug bool) (*Server, error) {
	tmpl, err := template.ParseFS(embeddedTemplates, "templates/*.gohtml")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		debug:        debug,
		mux:          http.NewServeMux(),
		tmpl:         tmpl,
		sessions:     store,
		displayLoc:   resolveLocationOrLocal(cfg.Timezone),
		weekStart:    weekStartDay(cfg.WeekStart),
		markersCache: make(map[markerKey]*markerEntry),
	}

	if cfg.LoginEnabled() {
		guard, err := statetoken.New([]byte(cfg.GoogleOAuth.StateSecret))
		if err != nil {
			return nil, err
		}
		s.guard = guard
		s.google = gcal.NewClient(cfg.GoogleOAuth)
	} else {
		appLog.Info("google login disabled: google_oauth not fully configured")
	}

	cacheDir := "/var/lib/barojab/ics-cache"
	if debug {
		cacheDir = "./cache/ics-cache"
	}
	s.icsMarkers = ics.NewMarkerSource(cacheDir, cfg.ICS)

	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /login", s.handleLogin)
	s.mux.HandleFunc("GET /logout", s.handleLogout)
	s.mux.HandleFunc("GET /oauth2/callback", s.handleOAuthCallback)
	s.mux.HandleFunc("POST /nav", s.handleNav)
	s.mux.HandleFunc("POST /select", s.handleSelect)
	s.mux.HandleFunc("POST /event", s.handleDraftEvent)
	s.mux.HandleFunc("GET /api/month", s.handleAPIMonth)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// 빈 사용자명 또는 비밀번호가 설정된 경우에는 비활성화로 취급한다.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health 는 항상 무인증으로 노출한다.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="barojab", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG of the calendar page. The path
// matches the snapshot job in cmd/barojab.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	previewPath := s.cfg.Snapshot.OutputPath
	if s.debug {
		previewPath = "./cache/preview.png"
	}
	// http.ServeFile 가 파일 존재/권한 문제에 대해 적절한 상태코드를 반환해 준다.
	http.ServeFile(w, r, previewPath)
}

// monthResponse is the JSON shape for /api/month.
type monthResponse struct {
	Year       int            `json:"year"`
	Month      int            `json:"month"`
	WeekStart  string         `json:"week_start"`
	Weeks      []calgrid.Week `json:"weeks"`
	EventDays  []int          `json:"event_days"`
	RangeStart time.Time      `json:"range_start"`
	RangeEnd   time.Time      `json:"range_end"`
}

// handleAPIMonth returns the computed grid and event-day markers for a
// requested month as JSON.
//
// GET /api/month?year=2024&month=3
//
// Marker data follows the same source the page uses: the session's Google
// credentials when logged in, else the configured ICS feeds.
func (s *Server) handleAPIMonth(w http.ResponseWriter, r *http.Request) {
	id, st := s.ensureSession(w, r)

	q := r.URL.Query()
	year := parseIntDefault(q.Get("year"), st.CalYear)
	month := parseIntDefault(q.Get("month"), st.CalMonth)
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month out of range")
		return
	}

	days := s.monthMarkers(r.Context(), id, st, year, month)
	rangeStart, rangeEnd := calgrid.MonthBounds(year, month)

	writeJSON(w, http.StatusOK, monthResponse{
		Year:       year,
		Month:      month,
		WeekStart:  s.cfg.WeekStart,
		Weeks:      calgrid.ComputeGrid(year, month, s.weekStart),
		EventDays:  sortedDays(days),
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
	})
}

// monthMarkers returns the event-day set for one displayed month, consulting
// the TTL cache first. Provider errors degrade to an empty set: a render
// never fails because the marker query did.
func (s *Server) monthMarkers(ctx context.Context, sessionID string, st session.State, year, month int) map[int]bool {
	key := markerKey{year: year, month: month}
	useGoogle := st.LoggedIn && s.google != nil && st.Token != nil
	if useGoogle {
		key.sessionID = sessionID
	} else if !s.icsMarkers.HasSources() {
		return map[int]bool{}
	}

	s.markersMu.RLock()
	e := s.markersCache[key]
	s.markersMu.RUnlock()
	if e != nil && time.Since(e.updatedAt) < markerCacheTTL {
		return e.days
	}

	var (
		starts []string
		err    error
	)
	if useGoogle {
		starts, err = s.google.MonthEventStarts(ctx, st.Token, year, month)
	} else {
		starts, err = s.icsMarkers.MonthEventStarts(ctx, year, month)
	}
	if err != nil {
		appLog.Error("month marker query failed", err, "year", year, "month", month, "google", useGoogle)
		return map[int]bool{}
	}

	days := calgrid.DeriveDayMarkers(starts, year, month)

	s.markersMu.Lock()
	s.markersCache[key] = &markerEntry{days: days, updatedAt: time.Now()}
	s.markersMu.Unlock()

	return days
}

// RefreshMarkers re-queries the shared ICS source for the current month and
// primes the cache. Invoked by the cron refresh job.
func (s *Server) RefreshMarkers(ctx context.Context) {
	if !s.icsMarkers.HasSources() {
		return
	}

	now := time.Now().In(s.displayLoc)
	year, month := now.Year(), int(now.Month())

	starts, err := s.icsMarkers.MonthEventStarts(ctx, year, month)
	if err != nil {
		appLog.Error("marker refresh failed", err, "year", year, "month", month)
		return
	}
	days := calgrid.DeriveDayMarkers(starts, year, month)

	s.markersMu.Lock()
	s.markersCache[markerKey{year: year, month: month}] = &markerEntry{days: days, updatedAt: time.Now()}
	s.markersMu.Unlock()

	appLog.Info("marker refresh completed", "year", year, "month", month, "event_days", len(days))
}

// ensureSession resolves the session cookie, creating a fresh session (and
// setting the cookie) when none exists or the old one idled out.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (string, session.State) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if st, ok := s.sessions.Get(c.Value); ok {
			return c.Value, st
		}
	}

	id, st, err := s.sessions.New(s.displayLoc)
	if err != nil {
		// crypto/rand failure; serve a one-off default state without a cookie.
		appLog.Error("session create failed", err)
		now := time.Now().In(s.displayLoc)
		return "", session.State{
			CalYear:      now.Year(),
			CalMonth:     int(now.Month()),
			SelectedDate: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, st
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func weekStartDay(name string) time.Weekday {
	if name == "monday" {
		return time.Monday
	}
	return time.Sunday
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func sortedDays(days map[int]bool) []int {
	out := make([]int, 0, len(days))
	for d := 1; d <= 31; d++ {
		if days[d] {
			out = append(out, d)
		}
	}
	return out
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

// StartServer runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "debug", s.debug)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
