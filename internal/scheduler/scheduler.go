// Package scheduler drives the periodic price refresh cycle: it walks the
// active tracked items, fetches fresh prices and fires deal notifications
// when the target threshold is crossed.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/shopspring/decimal"

	"pricesentry/helpers"
	"pricesentry/internal/marketplace"
	"pricesentry/internal/metrics"
	"pricesentry/logger"
	errs "pricesentry/pkg/errors"
	"pricesentry/services/notifier"
	"pricesentry/services/store"
)

// Run statuses
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// RunStats summarizes one refresh run
type RunStats struct {
	Checked    int
	Errors     int
	Notified   int
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
}

// Scheduler runs the refresh cycle at configured hour marks
type Scheduler struct {
	store    store.Store
	resolver marketplace.Resolver
	notifier notifier.Notifier
	cron     *gocron.Scheduler
	log      *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new refresh scheduler
func NewScheduler(st store.Store, resolver marketplace.Resolver, n notifier.Notifier) *Scheduler {
	return &Scheduler{
		store:    st,
		resolver: resolver,
		notifier: n,
		cron:     gocron.NewScheduler(time.Local),
		log:      logger.ForScheduler(),
	}
}

// Start registers the cron job at the given hour marks and begins running
// in the background
func (s *Scheduler) Start(ctx context.Context, hours []int) error {
	_, err := s.cron.Cron(cronSpec(hours)).Do(func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule refresh job: %w", err)
	}

	s.cron.StartAsync()
	s.log.Info().Ints("hours", hours).Msg("Refresh schedule started")
	return nil
}

// Stop halts the cron scheduler. A run already in progress finishes.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce executes a single refresh cycle over all active items. If another
// run is already in progress the call is skipped.
func (s *Scheduler) RunOnce(ctx context.Context) RunStats {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("Refresh run already in progress, skipping")
		metrics.SchedulerRuns.WithLabelValues(RunSkipped).Inc()
		return RunStats{Status: RunSkipped}
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) RunStats {
	stats := RunStats{StartedAt: time.Now()}
	s.log.Info().Msg("Refresh run started")

	items, err := s.store.ListActiveItems(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list active items")
		stats.FinishedAt = time.Now()
		stats.Status = RunFailed
		metrics.SchedulerRuns.WithLabelValues(RunFailed).Inc()
		return stats
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		notified, err := s.checkItem(ctx, item)
		stats.Checked++
		stats.Notified += notified
		if err != nil {
			stats.Errors++
			metrics.CheckErrors.Inc()
			s.log.Error().
				Err(err).
				Int64("item_id", item.ID).
				Str("url", helpers.TruncateURL(item.SourceURL)).
				Msg("Item check failed")
			continue
		}
		metrics.ItemsChecked.Inc()
	}

	stats.FinishedAt = time.Now()
	stats.Status = RunCompleted
	metrics.SchedulerRuns.WithLabelValues(RunCompleted).Inc()
	metrics.RunDuration.Observe(stats.FinishedAt.Sub(stats.StartedAt).Seconds())

	s.log.Info().
		Int("checked", stats.Checked).
		Int("errors", stats.Errors).
		Int("notified", stats.Notified).
		Dur("elapsed", stats.FinishedAt.Sub(stats.StartedAt)).
		Msg("Refresh run finished")
	return stats
}

// checkItem refreshes one item and returns how many notifications were sent
func (s *Scheduler) checkItem(ctx context.Context, item store.TrackedItem) (int, error) {
	client, err := s.resolver.For(item.SourceURL)
	if err != nil {
		return 0, err
	}

	snap, err := client.Fetch(ctx, item.SourceURL)
	if err != nil {
		return 0, err
	}

	price := snap.ComparePrice()
	if price == nil {
		return 0, errs.NewParsing(string(client.Marketplace()), "snapshot carries no price", nil)
	}

	if err := s.store.AppendObservation(ctx, item.ID, *price, store.SourceScheduled); err != nil {
		return 0, errs.NewStore("append observation", err)
	}
	if err := s.store.SetCurrentPrice(ctx, item.ID, *price); err != nil {
		return 0, errs.NewStore("set current price", err)
	}

	return s.evaluateDeal(ctx, item, *price)
}

// evaluateDeal runs the notification state machine for a fresh price.
// A notification fires only on a state change, so a price that stays below
// the target nags the user exactly once.
func (s *Scheduler) evaluateDeal(ctx context.Context, item store.TrackedItem, price decimal.Decimal) (int, error) {
	switch {
	case price.LessThanOrEqual(item.TargetPrice) && item.LastState != store.StateBelow:
		if err := s.notifier.DealReached(ctx, item, price); err != nil {
			// Delivery failures are not retried within the run; the state is
			// left untouched so the next run fires again.
			s.log.Error().Err(err).Int64("item_id", item.ID).Msg("Deal notification failed")
			return 0, nil
		}
		metrics.NotificationsSent.WithLabelValues(notifier.KindDealReached).Inc()
		if err := s.store.SetNotificationState(ctx, item.ID, store.StateBelow, &price); err != nil {
			return 1, errs.NewStore("set notification state", err)
		}
		return 1, nil

	case price.GreaterThan(item.TargetPrice) && item.LastState == store.StateBelow:
		if err := s.notifier.DealEnded(ctx, item, price); err != nil {
			s.log.Error().Err(err).Int64("item_id", item.ID).Msg("Deal end notification failed")
			return 0, nil
		}
		metrics.NotificationsSent.WithLabelValues(notifier.KindDealEnded).Inc()
		if err := s.store.SetNotificationState(ctx, item.ID, store.StateAbove, nil); err != nil {
			return 1, errs.NewStore("set notification state", err)
		}
		return 1, nil
	}

	return 0, nil
}

// cronSpec builds a cron expression firing at minute zero of each hour mark
func cronSpec(hours []int) string {
	marks := make([]string, len(hours))
	for i, h := range hours {
		marks[i] = strconv.Itoa(h)
	}
	return fmt.Sprintf("0 %s * * *", strings.Join(marks, ","))
}
