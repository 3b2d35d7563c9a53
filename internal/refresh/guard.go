package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	appLog "eventfeed/internal/log"
	"eventfeed/internal/metrics"
	"eventfeed/internal/model"
)

// ErrRefreshInFlight is returned by RefreshNow while another run is active.
var ErrRefreshInFlight = errors.New("refresh: a run is already in flight")

// ScrapeFunc performs one complete scrape.
type ScrapeFunc func(ctx context.Context) ([]model.Occurrence, error)

// Publisher replaces the published feed.
type Publisher interface {
	Publish(ctx context.Context, occs []model.Occurrence, at time.Time) error
}

// Status is a snapshot of the guard state.
type Status struct {
	LastPublished time.Time `json:"last_published"`
	Refreshing    bool      `json:"refreshing"`
	LastError     string    `json:"last_error,omitempty"`
	LastCount     int       `json:"last_count"`
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// Guard makes sure at most one scrape runs at a time and that the feed is
// only replaced by a run that fully succeeded.
type Guard struct {
	scrape    ScrapeFunc
	publisher Publisher
	now       func() time.Time

	mu            sync.Mutex
	lastPublished time.Time
	refreshing    bool
	lastErr       error
	lastCount     int

	wg sync.WaitGroup
}

// NewGuard returns a guard seeded with the time the current feed was
// published (zero if there is none).
func NewGuard(scrape ScrapeFunc, publisher Publisher, lastPublished time.Time, opts ...Option) *Guard {
	g := &Guard{
		scrape:        scrape,
		publisher:     publisher,
		now:           time.Now,
		lastPublished: lastPublished,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaybeRefresh starts a background run if the feed is older than threshold
// and no run is in flight. It reports whether a run was started.
func (g *Guard) MaybeRefresh(ctx context.Context, now time.Time, threshold time.Duration) bool {
	g.mu.Lock()
	if g.refreshing || now.Sub(g.lastPublished) <= threshold {
		g.mu.Unlock()
		return false
	}
	g.refreshing = true
	g.mu.Unlock()

	appLog.Debug("feed stale, refreshing", "last_published", g.lastPublishedString(), "threshold", threshold.String())
	g.spawn(ctx)
	return true
}

// TriggerImmediate starts a background run unless one is already in flight.
// Requests made while a run is active are dropped, not queued.
func (g *Guard) TriggerImmediate(ctx context.Context) bool {
	if !g.acquire() {
		metrics.ScrapeRuns.WithLabelValues(metrics.ResultSkipped).Inc()
		return false
	}
	g.spawn(ctx)
	return true
}

// RefreshNow runs a scrape synchronously and returns its error.
func (g *Guard) RefreshNow(ctx context.Context) error {
	if !g.acquire() {
		metrics.ScrapeRuns.WithLabelValues(metrics.ResultSkipped).Inc()
		return ErrRefreshInFlight
	}
	g.wg.Add(1)
	defer g.wg.Done()
	return g.run(ctx)
}

// Wait blocks until every started run has finished.
func (g *Guard) Wait() {
	g.wg.Wait()
}

func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := Status{
		LastPublished: g.lastPublished,
		Refreshing:    g.refreshing,
		LastCount:     g.lastCount,
	}
	if g.lastErr != nil {
		st.LastError = g.lastErr.Error()
	}
	return st
}

func (g *Guard) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refreshing {
		return false
	}
	g.refreshing = true
	return true
}

func (g *Guard) spawn(ctx context.Context) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_ = g.run(ctx)
	}()
}

// run performs one scrape and publish. The caller must hold the refreshing
// flag; run always clears it.
func (g *Guard) run(ctx context.Context) (err error) {
	runID := uuid.NewString()
	started := g.now()
	appLog.Info("scrape run started", "run_id", runID)

	var count int
	var at time.Time
	defer func() {
		elapsed := g.now().Sub(started)
		metrics.ScrapeDuration.Observe(elapsed.Seconds())

		g.mu.Lock()
		g.refreshing = false
		g.lastErr = err
		if err == nil {
			g.lastPublished = at
			g.lastCount = count
		}
		g.mu.Unlock()

		if err != nil {
			metrics.ScrapeRuns.WithLabelValues(metrics.ResultError).Inc()
			appLog.Error("scrape run failed; keeping previous feed", err, "run_id", runID, "elapsed", elapsed.String())
			return
		}
		metrics.ScrapeRuns.WithLabelValues(metrics.ResultSuccess).Inc()
		metrics.ObservePublished(count, at)
		appLog.Info("scrape run finished", "run_id", runID, "occurrences", count, "elapsed", elapsed.String())
	}()

	occs, err := g.scrape(ctx)
	if err != nil {
		return err
	}

	at = g.now()
	if err := g.publisher.Publish(ctx, occs, at); err != nil {
		return err
	}
	count = len(occs)
	return nil
}

func (g *Guard) lastPublishedString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastPublished.IsZero() {
		return "never"
	}
	return g.lastPublished.Format(time.RFC3339)
}
