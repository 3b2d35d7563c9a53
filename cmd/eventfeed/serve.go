package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appLog "eventfeed/internal/log"
	"eventfeed/internal/metrics"
	"eventfeed/internal/refresh"
	"eventfeed/internal/web"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the feed and keep it fresh",
	Long:  "Start the HTTP server, refresh the feed at startup if it is stale and re-check freshness on the configured schedule.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	appLog.Info("eventfeed starting", "version", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	lastPublished, err := a.store.LastPublished()
	if err != nil {
		return err
	}
	if !lastPublished.IsZero() {
		if occs, err := a.store.Load(); err == nil {
			metrics.ObservePublished(len(occs), lastPublished)
		}
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	guard := refresh.NewGuard(a.scrape, a.store, lastPublished)
	scheduler := refresh.NewScheduler(guard, cfg.Refresh.Check, cfg.Refresh.Freshness, a.loc)

	g, gctx := errgroup.WithContext(ctx)

	srv := web.NewServer(gctx, cfg, a.store, guard, prometheus.DefaultGatherer)
	httpSrv := srv.HTTPServer()

	g.Go(func() error {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)

		<-scheduler.Stop().Done()
		// In-flight runs see the cancelled context and fail; the previous
		// feed stays in place.
		guard.Wait()
		return err
	})

	if err := scheduler.Start(gctx); err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	// Warm-up: refresh right away if the feed is missing or stale.
	if !guard.MaybeRefresh(gctx, time.Now(), cfg.Refresh.Freshness) {
		appLog.Info("feed is fresh, no warm-up refresh", "last_published", lastPublished.Format(time.RFC3339))
	}

	err = g.Wait()
	appLog.Info("eventfeed exiting")
	return err
}
