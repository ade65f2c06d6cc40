package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/pkg/logger"
)

const (
	defaultRetention        = 30 * 24 * time.Hour
	defaultReminderSpec     = "@every 1m"
	defaultPurgeSpec        = "@daily"
	defaultJobTimeout       = 2 * time.Minute
	JobReminders            = "invitation_reminders"
	JobPurgeCancelledEvents = "purge_cancelled_events"
)

// ReminderSender delivers reminders for imminent events with unanswered invitations.
type ReminderSender interface {
	SendDue(ctx context.Context) (int, error)
}

// CancelledEventPurger deletes cancelled events older than a cutoff.
type CancelledEventPurger interface {
	PurgeCancelledEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner coordinates background jobs: pending-invitation reminders and
// purging cancelled event tombstones once they fall out of retention.
type Cleaner struct {
	reminders ReminderSender
	purger    CancelledEventPurger
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration
	timeout   time.Duration

	reminderSchedule string
	purgeSchedule    string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetention adjusts how long cancelled events are kept.
func WithRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithReminderSchedule overrides the cron expression for reminders.
func WithReminderSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.reminderSchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron expression for the tombstone purge.
func WithPurgeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.purgeSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency disables its job.
func NewCleaner(reminders ReminderSender, purger CancelledEventPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		reminders:        reminders,
		purger:           purger,
		now:              time.Now,
		retention:        defaultRetention,
		timeout:          defaultJobTimeout,
		reminderSchedule: defaultReminderSpec,
		purgeSchedule:    defaultPurgeSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	}

	return cleaner
}

// Start registers the enabled jobs and launches the scheduler when at least one is present.
func (c *Cleaner) Start() error {
	if c.reminders == nil && c.purger == nil {
		return nil
	}

	if c.reminders != nil {
		if _, err := c.cron.AddFunc(c.reminderSchedule, c.scheduled(c.sendReminders)); err != nil {
			return fmt.Errorf("maintenance: reminder schedule %q: %w", c.reminderSchedule, err)
		}
	}

	if c.purger != nil {
		if _, err := c.cron.AddFunc(c.purgeSchedule, c.scheduled(c.purgeCancelled)); err != nil {
			return fmt.Errorf("maintenance: purge schedule %q: %w", c.purgeSchedule, err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and combines their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.reminders != nil {
		errs = multierr.Append(errs, c.sendReminders(ctx))
	}
	if c.purger != nil {
		errs = multierr.Append(errs, c.purgeCancelled(ctx))
	}
	return errs
}

func (c *Cleaner) scheduled(job func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		_ = job(ctx)
	}
}

func (c *Cleaner) sendReminders(ctx context.Context) error {
	start := time.Now()
	sent, err := c.reminders.SendDue(ctx)
	c.record(JobReminders, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("maintenance: reminders: %w", err)
	}
	if sent > 0 {
		c.log.Info("invitation reminders sent", zap.Int("count", sent))
	}
	return nil
}

func (c *Cleaner) purgeCancelled(ctx context.Context) error {
	start := time.Now()
	cutoff := c.now().UTC().Add(-c.retention)
	removed, err := c.purger.PurgeCancelledEvents(ctx, cutoff)
	c.record(JobPurgeCancelledEvents, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("maintenance: purge cancelled events: %w", err)
	}
	if removed > 0 {
		c.log.Info("cancelled events purged", zap.Int64("count", removed), zap.Time("cutoff", cutoff))
	}
	return nil
}

func (c *Cleaner) record(job string, err error, d time.Duration) {
	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", job), zap.Error(err))
		monitoring.RecordMaintenanceRun(job, "error", err.Error(), d)
		return
	}
	monitoring.RecordMaintenanceRun(job, "success", "", d)
}
