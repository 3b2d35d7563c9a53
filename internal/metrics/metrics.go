package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	ScrapeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventfeed_scrape_runs_total",
		Help: "Scrape runs by outcome",
	}, []string{"result"})

	ScrapeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventfeed_scrape_duration_seconds",
		Help:    "Wall-clock duration of scrape runs",
		Buckets: []float64{1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 300},
	})

	ScrapePages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventfeed_scrape_pages_total",
		Help: "Listing pages scraped",
	})

	BudgetExceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventfeed_scrape_budget_exceeded_total",
		Help: "Runs stopped early by the time budget",
	})

	FeedOccurrences = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventfeed_feed_occurrences",
		Help: "Occurrences in the published feed",
	})

	FeedLastPublished = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventfeed_feed_last_published_timestamp_seconds",
		Help: "Unix time of the last successful publish",
	})
)

// MustRegister registers every collector with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ScrapeRuns,
		ScrapeDuration,
		ScrapePages,
		BudgetExceeded,
		FeedOccurrences,
		FeedLastPublished,
	)
}

// ObservePublished records a successful publish of count occurrences at at.
func ObservePublished(count int, at time.Time) {
	FeedOccurrences.Set(float64(count))
	FeedLastPublished.Set(float64(at.Unix()))
}
