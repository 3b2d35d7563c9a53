package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventfeed/internal/config"
	"eventfeed/internal/refresh"
)

type fakeFeed struct {
	dir string
}

func (f fakeFeed) JSONPath() string { return filepath.Join(f.dir, "events.json") }
func (f fakeFeed) ICSPath() string  { return filepath.Join(f.dir, "events.ics") }

type fakeRefresher struct {
	busy     bool
	triggers int
	status   refresh.Status
}

func (f *fakeRefresher) TriggerImmediate(context.Context) bool {
	if f.busy {
		return false
	}
	f.busy = true
	f.triggers++
	return true
}

func (f *fakeRefresher) Status() refresh.Status { return f.status }

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, fakeFeed, *fakeRefresher) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	feed := fakeFeed{dir: t.TempDir()}
	ref := &fakeRefresher{}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "test"}))
	return NewServer(context.Background(), cfg, feed, ref, reg), feed, ref
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestFeedDocuments(t *testing.T) {
	s, feed, _ := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/events.json")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, os.WriteFile(feed.JSONPath(), []byte(`[{"id":"a"}]`), 0o644))
	require.NoError(t, os.WriteFile(feed.ICSPath(), []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"), 0o644))

	rec = do(t, s.Handler(), http.MethodGet, "/events.json")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"id":"a"}]`, rec.Body.String())

	rec = do(t, s.Handler(), http.MethodGet, "/events.ics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")
}

func TestRefresh_AcceptedThenConflict(t *testing.T) {
	s, _, ref := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, s.Handler(), http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in progress")
	assert.Equal(t, 1, ref.triggers)

	rec = do(t, s.Handler(), http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatus(t *testing.T) {
	s, _, ref := newTestServer(t, nil)
	ref.status = refresh.Status{
		LastPublished: time.Now().Add(-time.Hour),
		LastCount:     12,
		LastError:     "render timeout",
	}

	rec := do(t, s.Handler(), http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 12, body["last_count"])
	assert.Equal(t, "render timeout", body["last_error"])
	assert.Equal(t, false, body["refreshing"])
	assert.Equal(t, false, body["stale"])
	assert.Equal(t, config.DefaultSourceURL, body["source_url"])
}

func TestMetrics(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_counter_total")
}

func TestBasicAuth(t *testing.T) {
	s, _, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "ops", Password: "secret"}
	})
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)

	rec := do(t, h, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("ops", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("ops", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth_HalfConfiguredIsDisabled(t *testing.T) {
	s, _, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "ops"}
	})
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), http.MethodGet, "/api/status").Code)
}

func TestStaticFiles(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>events</h1>"), 0o644))

	s, _, _ := newTestServer(t, func(c *config.Config) { c.StaticDir = static })
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "<h1>events</h1>"))

	rec = do(t, h, http.MethodGet, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<h1>")
}
