// Package scheduler fires due reminders in the background.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/events"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// DefaultInterval is how often due reminders are checked.
const DefaultInterval = 30 * time.Second

var firedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "assistant",
		Subsystem: "scheduler",
		Name:      "reminders_fired_total",
		Help:      "Total number of reminders fired",
	},
	[]string{"outcome"},
)

// Config configures the scheduler.
type Config struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
}

// Scheduler publishes due reminders and then completes or reschedules them.
type Scheduler struct {
	reminders store.ReminderStore
	publisher events.Publisher
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler. publisher may be nil.
func New(reminders store.ReminderStore, publisher events.Publisher, cfg Config, logger *zap.Logger, opts ...Option) *Scheduler {
	cfg.ApplyDefaults()
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		reminders: reminders,
		publisher: publisher,
		interval:  cfg.Interval,
		now:       time.Now,
		logger:    logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run checks immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("reminder scheduler started", zap.Duration("interval", s.interval))
	for {
		if _, err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("reminder tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick fires every due reminder once and returns how many fired. A failed
// publish leaves the reminder untouched so the next tick retries it.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	due, err := s.reminders.ListDue(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing due reminders: %w", err)
	}

	now := s.now().UTC()
	fired := 0
	var errs []error
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return fired, err
		}
		if err := s.publisher.ReminderDue(ctx, r, now); err != nil {
			firedTotal.WithLabelValues("publish_error").Inc()
			errs = append(errs, fmt.Errorf("reminder %s: %w", r.ID, err))
			continue
		}

		outcome := "completed"
		if next, ok := NextOccurrence(r.RemindAt, r.RecurrencePattern, now); r.Recurring && ok {
			r.RemindAt = next
			outcome = "rescheduled"
		} else {
			r.Completed = true
		}
		if err := s.reminders.Update(ctx, r); err != nil {
			firedTotal.WithLabelValues("update_error").Inc()
			errs = append(errs, fmt.Errorf("reminder %s: %w", r.ID, err))
			continue
		}
		firedTotal.WithLabelValues(outcome).Inc()
		fired++
		s.logger.Info("reminder fired",
			zap.String("reminder_id", r.ID),
			zap.String("outcome", outcome),
			zap.Time("next", r.RemindAt),
		)
	}
	return fired, errors.Join(errs...)
}

// NextOccurrence advances at by the recurrence pattern until it is after
// now. Unknown patterns report false. Monthly steps keep the original day
// of month, clamped to the last day of shorter months; a reminder on the
// last day of its month stays on the last day, so a stored Feb 28 still
// fires on Mar 31.
func NextOccurrence(at time.Time, pattern string, now time.Time) (time.Time, bool) {
	var step func(n int) time.Time
	switch pattern {
	case "daily":
		step = func(n int) time.Time { return at.AddDate(0, 0, n) }
	case "weekly":
		step = func(n int) time.Time { return at.AddDate(0, 0, 7*n) }
	case "monthly":
		step = func(n int) time.Time { return addMonths(at, n) }
	default:
		return time.Time{}, false
	}
	n := 1
	next := step(n)
	for !next.After(now) {
		n++
		next = step(n)
	}
	return next, true
}

func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last || t.AddDate(0, 0, 1).Day() == 1 {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}
