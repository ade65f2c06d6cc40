package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/calsched/internal/notify"
	"github.com/charlesng35/calsched/internal/repository"
	"github.com/charlesng35/calsched/pkg/logger"
)

// DefaultReminderLead is how far ahead of an event pending invitees are reminded.
const DefaultReminderLead = 10 * time.Minute

// ReminderOption customises ReminderService behaviour.
type ReminderOption func(*ReminderService)

// WithReminderClock injects a custom clock primarily for testing.
func WithReminderClock(clock func() time.Time) ReminderOption {
	return func(s *ReminderService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithReminderLead overrides the reminder lead time.
func WithReminderLead(d time.Duration) ReminderOption {
	return func(s *ReminderService) {
		if d > 0 {
			s.lead = d
		}
	}
}

// WithReminderPublisher delivers reminder events.
func WithReminderPublisher(p notify.Publisher) ReminderOption {
	return func(s *ReminderService) {
		s.events.pub = p
	}
}

// ReminderService reminds recipients who have not answered an invitation to an imminent event.
type ReminderService struct {
	repo   repository.Repository
	events publisher
	lead   time.Duration
	now    func() time.Time
}

// NewReminderService constructs a ReminderService.
func NewReminderService(repo repository.Repository, opts ...ReminderOption) (*ReminderService, error) {
	if repo == nil {
		return nil, errors.New("reminder service: repository is required")
	}
	svc := &ReminderService{
		repo:   repo,
		events: publisher{users: repo, log: logger.WithModule("services.reminders")},
		lead:   DefaultReminderLead,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// SendDue reminds every PENDING invitee of a live event starting within the lead time. Each
// invitation is reminded at most once; the count of reminders sent is returned.
func (s *ReminderService) SendDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.DueReminders(ctx, now, s.lead)
	if err != nil {
		return 0, fmt.Errorf("reminder service: %w", err)
	}

	sent := 0
	for i := range due {
		inv := &due[i]
		claimed, err := s.repo.MarkReminded(ctx, inv.ID, now)
		if err != nil {
			return sent, fmt.Errorf("reminder service: %w", err)
		}
		if !claimed || inv.Event == nil {
			continue
		}

		s.events.log.Info("reminding pending invitee",
			zap.String("event_id", inv.EventID),
			zap.String("invitation_id", inv.ID),
			zap.Time("starts_at", inv.Event.StartAt),
		)
		s.events.publish(ctx, notify.Event{
			Kind:       notify.KindReminder,
			OccurredAt: now.UTC(),
			Event:      *inv.Event,
			Invitation: inv,
			Recipients: []notify.Recipient{invitationRecipient(*inv)},
		})
		sent++
	}
	return sent, nil
}
