package main

import (
	"context"
	"fmt"
	"time"

	"eventfeed/internal/capture"
	"eventfeed/internal/config"
	"eventfeed/internal/feed"
	appLog "eventfeed/internal/log"
	"eventfeed/internal/model"
	"eventfeed/internal/normalize"
	"eventfeed/internal/scrape"
)

// app wires the scrape pipeline for one configuration.
type app struct {
	cfg          *config.Config
	loc          *time.Location
	store        *feed.Store
	orchestrator *scrape.Orchestrator
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
	}

	appLog.Info("effective config",
		"config_path", configPath,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"source_url", cfg.Source.URL,
		"schema", cfg.Source.Schema,
		"strict_weekday", cfg.Source.StrictWeekday,
		"budget", cfg.Scrape.Budget.String(),
		"freshness", cfg.Refresh.Freshness.String(),
		"feed_dir", cfg.Feed.Dir,
	)
	return cfg, nil
}

// schemaFor resolves the configured schema and applies per-source overrides.
func schemaFor(src config.SourceConfig) (normalize.Schema, error) {
	schema, err := normalize.SchemaByName(src.Schema)
	if err != nil {
		return normalize.Schema{}, err
	}
	if src.TimeSeparator != "" {
		schema.TimeSeparator = src.TimeSeparator
	}
	if src.URLPrefix != nil {
		schema.PrefixScheme = *src.URLPrefix
	}
	return schema, nil
}

func newApp(cfg *config.Config) (*app, error) {
	loc := cfg.Location()

	schema, err := schemaFor(cfg.Source)
	if err != nil {
		return nil, err
	}

	browser, err := capture.NewBrowser(capture.BrowserOptions{
		URL:       cfg.Source.URL,
		Selectors: capture.Selectors(cfg.Source.Selectors),
		Timeout:   cfg.Scrape.NavTimeout,
		ExecPath:  cfg.Scrape.ChromePath,
	})
	if err != nil {
		return nil, err
	}

	store, err := feed.NewStore(cfg.Feed.Dir, loc, cfg.Feed.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed dir %s: %w", cfg.Feed.Dir, err)
	}

	source := scrape.SourceFunc(func(ctx context.Context) (scrape.Session, error) {
		s, err := browser.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	return &app{
		cfg:   cfg,
		loc:   loc,
		store: store,
		orchestrator: &scrape.Orchestrator{
			Source:     source,
			Normalizer: normalize.NewNormalizer(schema, loc, cfg.Source.StrictWeekday),
		},
	}, nil
}

// scrape runs the orchestrator once within the configured budget.
func (a *app) scrape(ctx context.Context) ([]model.Occurrence, error) {
	res, err := a.orchestrator.Run(ctx, a.cfg.Scrape.Budget)
	if err != nil {
		return nil, err
	}
	appLog.Info("scrape complete",
		"pages", res.Pages,
		"rows", res.Rows,
		"occurrences", len(res.Occurrences),
		"elapsed", res.Elapsed.String(),
		"budget_exceeded", res.BudgetExceeded,
	)
	return res.Occurrences, nil
}
