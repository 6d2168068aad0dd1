package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"eventfinder/internal/cache"
	"eventfinder/internal/config"
	"eventfinder/internal/engine"
	appLog "eventfinder/internal/log"
	"eventfinder/internal/metrics"
	"eventfinder/internal/model"
	"eventfinder/internal/prefs"
)

// EventSource is the read side of *cache.Cache.
type EventSource interface {
	Events(ctx context.Context) ([]model.Event, error)
	Snapshot() (cache.Snapshot, bool)
	Fresh() bool
}

// Deps are the collaborators a Server needs. Metrics and Now are optional.
type Deps struct {
	Events  EventSource
	Engine  *engine.Engine
	Prefs   *prefs.Store
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Server exposes the event list, the filter engine and the preferences
// store as a JSON API.
type Server struct {
	cfg     *config.Config
	events  EventSource
	engine  *engine.Engine
	prefs   *prefs.Store
	metrics *metrics.Metrics
	now     func() time.Time
	mux     *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, d Deps) *Server {
	s := &Server{
		cfg:     cfg,
		events:  d.Events,
		engine:  d.Engine,
		prefs:   d.Prefs,
		metrics: d.Metrics,
		now:     d.Now,
		mux:     http.NewServeMux(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.registerRoutes()
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.mux)
}

// StartServer serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully, giving in-flight requests up to ten seconds.
func StartServer(ctx context.Context, cfg *config.Config, d Deps) error {
	s := NewServer(cfg, d)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleEvent)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)
	s.mux.HandleFunc("GET /api/categories/{name}/events", s.handleCategoryEvents)
	s.mux.HandleFunc("GET /api/locations", s.handleLocations)
	s.mux.HandleFunc("GET /api/locations/{name}/events", s.handleLocationEvents)
	s.mux.HandleFunc("GET /api/featured", s.handleFeatured)

	s.mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	s.mux.HandleFunc("PATCH /api/preferences", s.handlePatchPreferences)
	s.mux.HandleFunc("GET /api/favorites", s.handleFavorites)
	s.mux.HandleFunc("GET /api/favorites.ics", s.handleFavoritesICS)
	s.mux.HandleFunc("PUT /api/favorites/{id}", s.handleAddFavorite)
	s.mux.HandleFunc("DELETE /api/favorites/{id}", s.handleRemoveFavorite)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/history", s.handleAddHistory)
	s.mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type statusResponse struct {
	Loaded     bool      `json:"loaded"`
	Fresh      bool      `json:"fresh"`
	Source     string    `json:"source,omitempty"`
	Fallback   bool      `json:"fallback"`
	FetchedAt  time.Time `json:"fetched_at,omitzero"`
	EventCount int       `json:"event_count"`
}

// handleStatus reports the cache entry without triggering a load.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.events.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		Loaded:     ok,
		Fresh:      s.events.Fresh(),
		Source:     snap.Source,
		Fallback:   snap.Fallback,
		FetchedAt:  snap.FetchedAt,
		EventCount: len(snap.Events),
	})
}

// currentEvents returns the cached list, loading it if stale. When the load
// fails but an older entry exists, that entry is served and marked stale;
// with nothing to serve it writes 503 and returns false.
func (s *Server) currentEvents(w http.ResponseWriter, r *http.Request) ([]model.Event, bool) {
	events, err := s.events.Events(r.Context())
	if err == nil {
		return events, true
	}
	if snap, ok := s.events.Snapshot(); ok {
		appLog.Warn("serving stale events", "err", err, "fetched_at", snap.FetchedAt)
		w.Header().Set("X-Data-Stale", "true")
		return snap.Events, true
	}
	writeError(w, http.StatusServiceUnavailable, "data unavailable")
	return nil, false
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestLog tags each request with an id (reusing X-Request-ID when the
// client sent one), logs it and feeds the HTTP metrics.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		took := time.Since(start)

		// The mux fills r.Pattern in place.
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Pattern, rec.status, took)
		}
		appLog.Debug("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", took,
		)
	})
}

func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
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
