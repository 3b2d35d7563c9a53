package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventfeed/internal/config"
	appLog "eventfeed/internal/log"
	"eventfeed/internal/refresh"
)

// FeedFiles locates the published feed documents.
type FeedFiles interface {
	JSONPath() string
	ICSPath() string
}

// Refresher is the part of refresh.Guard the API drives.
type Refresher interface {
	TriggerImmediate(ctx context.Context) bool
	Status() refresh.Status
}

// Server provides the feed documents, the refresh API and metrics.
type Server struct {
	cfg       *config.Config
	feed      FeedFiles
	refresher Refresher
	gatherer  prometheus.Gatherer

	// runCtx parents refreshes started over HTTP so they outlive the request.
	runCtx context.Context

	router chi.Router
}

// NewServer constructs a new Server. gatherer may be nil to use the default
// Prometheus registry.
func NewServer(runCtx context.Context, cfg *config.Config, feed FeedFiles, refresher Refresher, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:       cfg,
		feed:      feed,
		refresher: refresher,
		gatherer:  gatherer,
		runCtx:    runCtx,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the handler in an http.Server bound to cfg.Listen.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(s.basicAuthMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/events.json", s.handleFeedJSON)
	r.Get("/events.ics", s.handleFeedICS)
	r.Get("/api/status", s.handleStatus)
	r.Post("/api/refresh", s.handleRefresh)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	if s.cfg.StaticDir != "" {
		r.Handle("/*", s.staticFileServer(s.cfg.StaticDir))
	}
	return r
}

// requestLogger logs each request at debug level once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Treat a half-configured pair as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware guards everything except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventfeed", charset="UTF-8"`)
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

func (s *Server) handleFeedJSON(w http.ResponseWriter, r *http.Request) {
	s.serveFeedFile(w, r, s.feed.JSONPath(), "application/json; charset=utf-8")
}

func (s *Server) handleFeedICS(w http.ResponseWriter, r *http.Request) {
	s.serveFeedFile(w, r, s.feed.ICSPath(), "text/calendar; charset=utf-8")
}

// serveFeedFile serves a published document. Before the first publish there
// is nothing to serve.
func (s *Server) serveFeedFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "feed not published yet")
			return
		}
		appLog.Error("feed open failed", err, "path", path)
		writeError(w, http.StatusInternalServerError, "failed to read feed")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		appLog.Error("feed stat failed", err, "path", path)
		writeError(w, http.StatusInternalServerError, "failed to read feed")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	refresh.Status
	SourceURL string `json:"source_url"`
	Schema    string `json:"schema"`
	Freshness string `json:"freshness"`
	Stale     bool   `json:"stale"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.refresher.Status()
	resp := statusResponse{
		Status:    st,
		SourceURL: s.cfg.Source.URL,
		Schema:    s.cfg.Source.Schema,
		Freshness: s.cfg.Refresh.Freshness.String(),
		Stale:     time.Since(st.LastPublished) > s.cfg.Refresh.Freshness,
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh starts a refresh regardless of feed age. Requests made while
// one is running are rejected, not queued.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.WithoutCancel(r.Context())
	}
	if !s.refresher.TriggerImmediate(ctx) {
		writeError(w, http.StatusConflict, "refresh already in progress")
		return
	}
	appLog.Info("refresh triggered over HTTP", "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// staticFileServer serves files from dir for every path not claimed by the
// API.
func (s *Server) staticFileServer(dir string) http.Handler {
	fileServer := http.FileServer(http.Dir(dir))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown /api/* paths get a plain 404, never an HTML page.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
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
