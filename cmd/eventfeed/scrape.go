package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eventfeed/internal/feed"
	"eventfeed/internal/refresh"
)

var scrapeDryRun bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape and publish the feed",
	Long:  "Run a single scrape synchronously and replace the published feed. With --dry-run the occurrences are printed as JSON and nothing is published.",
	RunE:  runScrape,
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "Print the feed JSON to stdout instead of publishing it")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if scrapeDryRun {
		occs, err := a.scrape(ctx)
		if err != nil {
			return err
		}
		body, err := feed.EncodeJSON(occs)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(body)
		return err
	}

	lastPublished, err := a.store.LastPublished()
	if err != nil {
		return err
	}
	guard := refresh.NewGuard(a.scrape, a.store, lastPublished)
	if err := guard.RefreshNow(ctx); err != nil {
		return fmt.Errorf("scrape failed, previous feed kept: %w", err)
	}

	st := guard.Status()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Published %d occurrences to %s\n", st.LastCount, a.store.JSONPath())
	return nil
}
