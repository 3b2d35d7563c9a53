package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "eventfeed/internal/log"
)

// DefaultCheckSpec checks feed freshness every five minutes.
const DefaultCheckSpec = "*/5 * * * *"

// Scheduler periodically asks the guard whether the feed is stale.
type Scheduler struct {
	guard     *Guard
	spec      string
	threshold time.Duration
	cron      *cron.Cron
}

func NewScheduler(guard *Guard, spec string, threshold time.Duration, loc *time.Location) *Scheduler {
	if spec == "" {
		spec = DefaultCheckSpec
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		guard:     guard,
		spec:      spec,
		threshold: threshold,
		cron:      cron.New(cron.WithLocation(loc)),
	}
}

// Start registers the freshness check and starts the cron loop. Runs started
// by the check use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("refresh: invalid schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	appLog.Info("freshness check scheduled", "spec", s.spec, "threshold", s.threshold.String())
	return nil
}

// Stop halts the cron loop. The returned context is done once a running
// check has returned; scrape runs it started are awaited via Guard.Wait.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) tick(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return s.guard.MaybeRefresh(ctx, s.guard.now(), s.threshold)
}
