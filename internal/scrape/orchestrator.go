package scrape

import (
	"context"
	"fmt"
	"time"

	appLog "eventfeed/internal/log"
	"eventfeed/internal/metrics"
	"eventfeed/internal/model"
)

// Session is one walk over the paginated listing.
type Session interface {
	// Rows waits for the current page to render and returns its rows.
	Rows(ctx context.Context) ([]model.RawRow, error)
	// HasNext reports whether a "next page" affordance exists.
	HasNext(ctx context.Context) (bool, error)
	// Next advances to the following page.
	Next(ctx context.Context) error
	Close() error
}

// Source opens sessions positioned on the first listing page.
type Source interface {
	Open(ctx context.Context) (Session, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Session, error)

func (f SourceFunc) Open(ctx context.Context) (Session, error) {
	return f(ctx)
}

// RowNormalizer converts one raw row into occurrences.
type RowNormalizer interface {
	Normalize(row model.RawRow) ([]model.Occurrence, error)
}

// Result is the outcome of one successful run.
type Result struct {
	Occurrences    []model.Occurrence
	Pages          int
	Rows           int
	Elapsed        time.Duration
	BudgetExceeded bool
}

// Orchestrator drives a Source page by page and feeds every row to the
// normalizer.
type Orchestrator struct {
	Source     Source
	Normalizer RowNormalizer

	// Now is the clock used for the budget. If nil, time.Now is used.
	Now func() time.Time
}

// Run scrapes pages until no next page exists or budget has elapsed. The
// budget is checked after each page, so the first page is always scraped.
// Exceeding the budget is not an error: the occurrences gathered so far are
// returned. Any page or row failure aborts the run and returns no result.
func (o *Orchestrator) Run(ctx context.Context, budget time.Duration) (Result, error) {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	startedAt := now()

	sess, err := o.Source.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("scrape: open: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			appLog.Error("scrape: session close failed", cerr)
		}
	}()

	var res Result
	for {
		res.Pages++
		rows, err := sess.Rows(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("scrape: page %d: %w", res.Pages, err)
		}
		for _, row := range rows {
			occs, err := o.Normalizer.Normalize(row)
			if err != nil {
				return Result{}, fmt.Errorf("scrape: page %d: %w", res.Pages, err)
			}
			res.Occurrences = append(res.Occurrences, occs...)
		}
		res.Rows += len(rows)
		metrics.ScrapePages.Inc()
		appLog.Info("page scraped", "page", res.Pages, "rows", len(rows), "occurrences", len(res.Occurrences))

		if elapsed := now().Sub(startedAt); elapsed >= budget {
			appLog.Info("scrape budget exhausted", "page", res.Pages, "elapsed", elapsed.String(), "budget", budget.String())
			res.BudgetExceeded = true
			metrics.BudgetExceeded.Inc()
			break
		}

		more, err := sess.HasNext(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("scrape: page %d: %w", res.Pages, err)
		}
		if !more {
			break
		}

		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("scrape: page %d: %w", res.Pages, err)
		}
		if err := sess.Next(ctx); err != nil {
			return Result{}, fmt.Errorf("scrape: page %d: next: %w", res.Pages, err)
		}
	}

	res.Elapsed = now().Sub(startedAt)
	// Identical listing rows yield identical occurrences; the feed carries
	// each instance once.
	unique := model.UniqueInstances(res.Occurrences)
	if dropped := len(res.Occurrences) - len(unique); dropped > 0 {
		appLog.Info("duplicate occurrences dropped", "dropped", dropped)
	}
	res.Occurrences = unique
	return res, nil
}
