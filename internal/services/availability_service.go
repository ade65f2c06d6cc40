package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/charlesng35/calsched/internal/availability"
	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/internal/repository"
	"github.com/charlesng35/calsched/internal/timewindow"
)

const (
	defaultSlotLimit       = 5
	defaultMaxSlots        = 50
	defaultLoadParallelism = 8
	maxCollaborators       = 100
)

// AvailabilityOption customises AvailabilityService behaviour.
type AvailabilityOption func(*AvailabilityService)

// WithAvailabilityParallelism bounds concurrent busy-interval queries.
func WithAvailabilityParallelism(n int) AvailabilityOption {
	return func(s *AvailabilityService) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithAvailabilityMaxSlots caps the number of slots a single search may return.
func WithAvailabilityMaxSlots(n int) AvailabilityOption {
	return func(s *AvailabilityService) {
		if n > 0 {
			s.maxSlots = n
		}
	}
}

// FindSlotsInput describes a meeting slot search. Participants are email addresses.
type FindSlotsInput struct {
	Participants []string
	WindowStart  time.Time
	WindowEnd    time.Time
	Duration     time.Duration
	// Step overrides the configured candidate step when positive.
	Step time.Duration
	// Limit defaults to 5 and is capped by the configured maximum.
	Limit int
}

// SlotResult is the ranked outcome of FindMeetingSlots. No admissible slot is a valid, empty result.
type SlotResult struct {
	Slots     []availability.Slot `json:"slots"`
	Timezone  string              `json:"timezone"`
	Unknown   []string            `json:"unknown_participants"`
	Examined  int                 `json:"examined"`
	Truncated bool                `json:"truncated"`
}

// CheckInput asks whether each participant is free over [Start, End).
type CheckInput struct {
	Participants []string
	Start        time.Time
	End          time.Time
}

// AvailabilityService loads busy intervals and runs slot searches over them.
type AvailabilityService struct {
	repo        repository.Repository
	searcher    *availability.Searcher
	parallelism int
	maxSlots    int
}

// NewAvailabilityService constructs an AvailabilityService. A nil searcher uses the default configuration.
func NewAvailabilityService(repo repository.Repository, searcher *availability.Searcher, opts ...AvailabilityOption) (*AvailabilityService, error) {
	if repo == nil {
		return nil, errors.New("availability service: repository is required")
	}
	if searcher == nil {
		searcher = availability.NewSearcher(availability.DefaultConfig())
	}
	svc := &AvailabilityService{
		repo:        repo,
		searcher:    searcher,
		parallelism: defaultLoadParallelism,
		maxSlots:    defaultMaxSlots,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// FindMeetingSlots returns candidate slots where every known participant is free, best first.
func (s *AvailabilityService) FindMeetingSlots(ctx context.Context, input FindSlotsInput) (*SlotResult, error) {
	started := time.Now()
	result, err := s.findMeetingSlots(ctx, input)
	switch {
	case err != nil:
		monitoring.RecordSlotSearch("error", 0, time.Since(started))
	case len(result.Slots) == 0:
		monitoring.RecordSlotSearch("empty", result.Examined, time.Since(started))
	default:
		monitoring.RecordSlotSearch("found", result.Examined, time.Since(started))
	}
	return result, err
}

func (s *AvailabilityService) findMeetingSlots(ctx context.Context, input FindSlotsInput) (*SlotResult, error) {
	if input.WindowStart.IsZero() || input.WindowEnd.IsZero() || !input.WindowStart.Before(input.WindowEnd) {
		return nil, fmt.Errorf("availability service: window start must precede window end: %w", domain.ErrValidation)
	}
	if input.Limit < 0 {
		return nil, fmt.Errorf("availability service: limit must not be negative: %w", domain.ErrValidation)
	}
	limit := input.Limit
	if limit == 0 {
		limit = defaultSlotLimit
	}
	limit = min(limit, s.maxSlots)

	participants, users, err := s.resolve(ctx, input.Participants)
	if err != nil {
		return nil, err
	}
	idx, err := s.loadIndex(ctx, users, input.WindowStart, input.WindowEnd)
	if err != nil {
		return nil, err
	}

	refs := make([]availability.Participant, 0, len(participants))
	for _, p := range participants {
		refs = append(refs, p.Participant)
	}
	seq, err := s.searcher.Search(idx, availability.Request{
		Participants: refs,
		WindowStart:  input.WindowStart,
		WindowEnd:    input.WindowEnd,
		Duration:     input.Duration,
		Step:         input.Step,
	})
	if err != nil {
		return nil, fmt.Errorf("availability service: %w", err)
	}

	unknown := seq.Unknown()
	if unknown == nil {
		unknown = []string{}
	}
	return &SlotResult{
		Slots:     seq.Top(limit),
		Timezone:  seq.Timezone(),
		Unknown:   unknown,
		Examined:  seq.Examined(),
		Truncated: seq.Truncated(),
	}, nil
}

// CheckAvailability reports per participant whether [start, end) is free, with alternatives for
// busy participants. Unknown participants are reported, never fatal.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, input CheckInput) ([]availability.ParticipantStatus, error) {
	if input.Start.IsZero() || input.End.IsZero() || !input.Start.Before(input.End) {
		return nil, fmt.Errorf("availability service: start must precede end: %w", domain.ErrValidation)
	}

	participants, users, err := s.resolve(ctx, input.Participants)
	if err != nil {
		return nil, err
	}
	// Suggestions look ahead from start, so the index must cover the lookahead too.
	horizon := input.Start.Add(s.searcher.Config().SuggestionLookahead)
	if horizon.Before(input.End) {
		horizon = input.End
	}
	idx, err := s.loadIndex(ctx, users, input.Start, horizon)
	if err != nil {
		return nil, err
	}

	statuses, err := s.searcher.Check(idx, participants, input.Start, input.End)
	if err != nil {
		return nil, fmt.Errorf("availability service: %w", err)
	}
	return statuses, nil
}

// resolve maps participant emails onto directory users. Emails without an account stay in the
// result with Found false.
func (s *AvailabilityService) resolve(ctx context.Context, refs []string) ([]availability.CheckParticipant, []models.User, error) {
	emails := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		email := models.NormalizeEmail(ref)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}
	if len(emails) == 0 {
		return nil, nil, fmt.Errorf("availability service: at least one participant is required: %w", domain.ErrValidation)
	}

	found, err := s.repo.FindUsersByEmail(ctx, emails)
	if err != nil {
		return nil, nil, fmt.Errorf("availability service: resolve participants: %w", err)
	}

	participants := make([]availability.CheckParticipant, 0, len(emails))
	users := make([]models.User, 0, len(found))
	for _, email := range emails {
		user, ok := found[email]
		p := availability.CheckParticipant{Participant: availability.Participant{Ref: email, Found: ok}}
		if ok {
			p.Timezone = timewindow.ResolveTimezone(user.Timezone, "UTC")
			p.DisplayName = user.Name()
			users = append(users, user)
		}
		participants = append(participants, p)
	}
	return participants, users, nil
}

// loadIndex fetches busy intervals per user concurrently. Every failing lookup is reported.
func (s *AvailabilityService) loadIndex(ctx context.Context, users []models.User, start, end time.Time) (*availability.Index, error) {
	busy := make([][]availability.BusyInterval, len(users))
	errs := make([]error, len(users))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, user := range users {
		g.Go(func() error {
			intervals, err := s.repo.BusyIntervals(ctx, user, start, end)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", user.Email, err)
				return nil
			}
			busy[i] = intervals
			return nil
		})
	}
	_ = g.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return nil, fmt.Errorf("availability service: load busy intervals: %w", err)
	}

	var all []availability.BusyInterval
	for _, intervals := range busy {
		all = append(all, intervals...)
	}
	return availability.NewIndex(all), nil
}

// SuggestCollaborators lists the registered users actor has invited most often, most frequent first.
// A non-positive limit uses the repository default.
func (s *AvailabilityService) SuggestCollaborators(ctx context.Context, actor Actor, limit int) ([]repository.Collaborator, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if limit > maxCollaborators {
		return nil, fmt.Errorf("availability service: limit exceeds %d: %w", maxCollaborators, domain.ErrValidation)
	}
	collaborators, err := s.repo.FrequentCollaborators(ctx, actor.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("availability service: %w", err)
	}
	if collaborators == nil {
		collaborators = []repository.Collaborator{}
	}
	return collaborators, nil
}
