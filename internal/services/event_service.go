package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/itip"
	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/internal/notify"
	"github.com/charlesng35/calsched/internal/repository"
	"github.com/charlesng35/calsched/internal/timewindow"
	"github.com/charlesng35/calsched/pkg/logger"
	"github.com/charlesng35/calsched/pkg/validator"
)

const maxListRange = 366 * 24 * time.Hour

// EventOption customises EventService behaviour.
type EventOption func(*EventService)

// WithEventClock injects a custom clock primarily for testing.
func WithEventClock(clock func() time.Time) EventOption {
	return func(s *EventService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithEventPublisher delivers committed event changes.
func WithEventPublisher(p notify.Publisher) EventOption {
	return func(s *EventService) {
		s.events.pub = p
	}
}

// MeetingLinker mints video meeting links.
type MeetingLinker interface {
	MeetingLink() string
}

// WithMeetingLinks generates a meeting link for events created or edited without one.
func WithMeetingLinks(l MeetingLinker) EventOption {
	return func(s *EventService) {
		s.links = l
	}
}

// CreateEventInput describes a new event. Participants are invitee email addresses.
type CreateEventInput struct {
	Title        string
	Description  string
	Location     string
	Start        time.Time
	End          time.Time
	Timezone     string
	Participants []string
	// VideoConferenceLink is generated when empty and a MeetingLinker is configured.
	VideoConferenceLink string
}

// UpdateEventInput edits an event's descriptive fields. Nil fields are left unchanged.
type UpdateEventInput struct {
	Title               *string
	Description         *string
	Location            *string
	VideoConferenceLink *string
}

// EventView is an event rendered for a viewer, with local times in the viewer's zone.
type EventView struct {
	models.Event
	Role       string `json:"role"`
	LocalStart string `json:"local_start"`
	LocalEnd   string `json:"local_end"`
}

// EventRange lists the events a user is busy with over a range.
type EventRange struct {
	Timezone string      `json:"timezone"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
	Events   []EventView `json:"events"`
}

// CalendarExport is an iCalendar rendering of an event.
type CalendarExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

const (
	RoleOrganizer = "organizer"
	RoleAttendee  = "attendee"
)

// EventService manages events owned by organizers.
type EventService struct {
	repo   repository.Repository
	events publisher
	links  MeetingLinker
	now    func() time.Time
}

// NewEventService constructs an EventService.
func NewEventService(repo repository.Repository, opts ...EventOption) (*EventService, error) {
	if repo == nil {
		return nil, errors.New("event service: repository is required")
	}
	svc := &EventService{
		repo:   repo,
		events: publisher{users: repo, log: logger.WithModule("services.events")},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Create stores an event organised by actor and a PENDING invitation per distinct participant.
// The organizer is never invited to their own event. An empty timezone uses the organizer's zone.
func (s *EventService) Create(ctx context.Context, actor Actor, input CreateEventInput) (*models.Event, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	organizer, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("event service: load organizer: %w", err)
	}

	title, err := eventTitle(input.Title)
	if err != nil {
		return nil, err
	}
	link, err := s.meetingLink(input.VideoConferenceLink)
	if err != nil {
		return nil, err
	}
	if input.Start.IsZero() || input.End.IsZero() || !input.Start.Before(input.End) {
		return nil, fmt.Errorf("event service: start must precede end: %w", domain.ErrValidation)
	}

	tz := strings.TrimSpace(input.Timezone)
	if tz == "" {
		tz = timewindow.ResolveTimezone(organizer.Timezone, "UTC")
	} else if !timewindow.IsValidTimezone(tz) {
		return nil, fmt.Errorf("event service: timezone %q: %w", tz, domain.ErrInvalidTimezone)
	}

	emails, err := inviteeEmails(input.Participants, organizer.Email)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.FindUsersByEmail(ctx, emails)
	if err != nil {
		return nil, fmt.Errorf("event service: resolve participants: %w", err)
	}

	invitations := make([]models.Invitation, 0, len(emails))
	for _, email := range emails {
		inv := models.Invitation{RecipientEmail: email, Status: invitation.StatusPending}
		if user, ok := users[email]; ok {
			id := user.ID
			inv.RecipientID = &id
		}
		invitations = append(invitations, inv)
	}

	event := &models.Event{
		OrganizerID: organizer.ID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Location:    strings.TrimSpace(input.Location),
		StartAt:     input.Start.UTC(),
		EndAt:       input.End.UTC(),
		Timezone:    tz,
		Version:     1,

		VideoConferenceLink: link,
	}
	if err := s.repo.CreateEvent(ctx, event, invitations); err != nil {
		return nil, fmt.Errorf("event service: create event: %w", err)
	}
	event.Organizer = organizer

	if len(event.Invitations) > 0 {
		s.events.publish(ctx, notify.Event{
			Kind:        notify.KindInvited,
			OccurredAt:  s.now().UTC(),
			ActorID:     actor.UserID,
			Event:       *event,
			Invitations: event.Invitations,
			Recipients:  audience(event, event.Invitations, false),
		})
	}
	return event, nil
}

// Get returns an event visible to actor. Organizers also receive the invitation list.
func (s *EventService) Get(ctx context.Context, actor Actor, eventID string) (*models.Event, error) {
	event, err := s.visibleEvent(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	if actor.organizes(event) {
		invitations, err := s.repo.ListInvitationsForEvent(ctx, event.ID)
		if err != nil {
			return nil, fmt.Errorf("event service: %w", err)
		}
		event.Invitations = invitations
	}
	return event, nil
}

// ListRange returns the live events actor organises or accepted that overlap [start, end),
// rendered in viewerTZ. An empty viewerTZ uses the actor's own zone.
func (s *EventService) ListRange(ctx context.Context, actor Actor, start, end time.Time, viewerTZ string) (*EventRange, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, fmt.Errorf("event service: start must precede end: %w", domain.ErrValidation)
	}
	if end.Sub(start) > maxListRange {
		return nil, fmt.Errorf("event service: range exceeds %s: %w", maxListRange, domain.ErrValidation)
	}

	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("event service: load viewer: %w", err)
	}
	tz := strings.TrimSpace(viewerTZ)
	if tz == "" {
		tz = timewindow.ResolveTimezone(user.Timezone, "UTC")
	}
	loc, err := timewindow.LoadZone(tz)
	if err != nil {
		return nil, fmt.Errorf("event service: %w", err)
	}

	events, err := s.repo.ListEventsForUser(ctx, *user, start, end)
	if err != nil {
		return nil, fmt.Errorf("event service: %w", err)
	}

	views := make([]EventView, 0, len(events))
	for _, event := range events {
		role := RoleAttendee
		if event.OrganizerID == user.ID {
			role = RoleOrganizer
		}
		views = append(views, EventView{
			Event:      event,
			Role:       role,
			LocalStart: event.StartAt.In(loc).Format(time.RFC3339),
			LocalEnd:   event.EndAt.In(loc).Format(time.RFC3339),
		})
	}
	return &EventRange{Timezone: tz, Start: start.UTC(), End: end.UTC(), Events: views}, nil
}

// UpdateTime moves an event at the organizer's request. Invitation statuses are left untouched;
// outstanding proposals stay open.
func (s *EventService) UpdateTime(ctx context.Context, actor Actor, eventID string, start, end time.Time) (*models.Event, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, fmt.Errorf("event service: start must precede end: %w", domain.ErrValidation)
	}

	var (
		snapshot    models.Event
		invitations []models.Invitation
		prevStart   time.Time
		prevEnd     time.Time
		changed     bool
	)
	err := s.repo.WithinEvent(ctx, eventID, func(tx repository.EventTx) error {
		event := tx.Event()
		if !actor.organizes(event) {
			return fmt.Errorf("event service: only the organizer may move the event: %w", domain.ErrNotAuthorized)
		}
		if event.Cancelled() {
			return fmt.Errorf("event service: event is cancelled: %w", domain.ErrInvalidStateTransition)
		}
		prevStart, prevEnd = event.StartAt, event.EndAt
		if event.StartAt.Equal(start.UTC()) && event.EndAt.Equal(end.UTC()) {
			snapshot = *event
			return nil
		}
		if err := tx.UpdateEventTime(start, end, s.now()); err != nil {
			return err
		}
		list, err := tx.Invitations()
		if err != nil {
			return err
		}
		invitations, snapshot, changed = list, *event, true
		return nil
	})
	if err != nil {
		recordConflict(err)
		return nil, fmt.Errorf("event service: update time: %w", err)
	}
	if !changed {
		return s.withOrganizer(ctx, snapshot), nil
	}

	monitoring.RecordEventTimeChange("organizer")
	event := s.withOrganizer(ctx, snapshot)
	s.events.publish(ctx, notify.Event{
		Kind:          notify.KindTimeChanged,
		OccurredAt:    s.now().UTC(),
		ActorID:       actor.UserID,
		Event:         *event,
		Invitations:   invitations,
		Recipients:    audience(event, invitations, true),
		PreviousStart: utcPtr(prevStart),
		PreviousEnd:   utcPtr(prevEnd),
	})
	return event, nil
}

// UpdateDetails edits the title, description, location or meeting link at the organizer's request.
// The event time and invitation statuses are left untouched. An event without a link gets a
// generated one unless the input sets it explicitly.
func (s *EventService) UpdateDetails(ctx context.Context, actor Actor, eventID string, input UpdateEventInput) (*models.Event, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if input.Title != nil {
		title, err := eventTitle(*input.Title)
		if err != nil {
			return nil, err
		}
		input.Title = &title
	}
	if input.VideoConferenceLink != nil {
		link, err := validMeetingLink(*input.VideoConferenceLink)
		if err != nil {
			return nil, err
		}
		input.VideoConferenceLink = &link
	}

	var (
		snapshot    models.Event
		invitations []models.Invitation
		changed     bool
	)
	err := s.repo.WithinEvent(ctx, eventID, func(tx repository.EventTx) error {
		event := tx.Event()
		if !actor.organizes(event) {
			return fmt.Errorf("event service: only the organizer may edit the event: %w", domain.ErrNotAuthorized)
		}
		if event.Cancelled() {
			return fmt.Errorf("event service: event is cancelled: %w", domain.ErrInvalidStateTransition)
		}

		details := repository.EventDetails{
			Title:               event.Title,
			Description:         event.Description,
			Location:            event.Location,
			VideoConferenceLink: event.VideoConferenceLink,
		}
		if input.Title != nil {
			details.Title = *input.Title
		}
		if input.Description != nil {
			details.Description = strings.TrimSpace(*input.Description)
		}
		if input.Location != nil {
			details.Location = strings.TrimSpace(*input.Location)
		}
		if input.VideoConferenceLink != nil {
			details.VideoConferenceLink = *input.VideoConferenceLink
		} else if details.VideoConferenceLink == "" && s.links != nil {
			details.VideoConferenceLink = s.links.MeetingLink()
		}

		if details.Title == event.Title && details.Description == event.Description &&
			details.Location == event.Location && details.VideoConferenceLink == event.VideoConferenceLink {
			snapshot = *event
			return nil
		}
		if err := tx.UpdateEventDetails(details, s.now()); err != nil {
			return err
		}
		list, err := tx.Invitations()
		if err != nil {
			return err
		}
		invitations, snapshot, changed = list, *event, true
		return nil
	})
	if err != nil {
		recordConflict(err)
		return nil, fmt.Errorf("event service: update details: %w", err)
	}

	event := s.withOrganizer(ctx, snapshot)
	if !changed {
		return event, nil
	}
	s.events.publish(ctx, notify.Event{
		Kind:        notify.KindDetailsChanged,
		OccurredAt:  s.now().UTC(),
		ActorID:     actor.UserID,
		Event:       *event,
		Invitations: invitations,
		Recipients:  audience(event, invitations, false),
	})
	return event, nil
}

// Cancel tombstones an event. Invitations keep their statuses and further responses are refused.
func (s *EventService) Cancel(ctx context.Context, actor Actor, eventID string) (*models.Event, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}

	var (
		snapshot    models.Event
		invitations []models.Invitation
	)
	err := s.repo.WithinEvent(ctx, eventID, func(tx repository.EventTx) error {
		event := tx.Event()
		if !actor.organizes(event) {
			return fmt.Errorf("event service: only the organizer may cancel the event: %w", domain.ErrNotAuthorized)
		}
		if event.Cancelled() {
			return fmt.Errorf("event service: event is already cancelled: %w", domain.ErrInvalidStateTransition)
		}
		if err := tx.CancelEvent(s.now()); err != nil {
			return err
		}
		list, err := tx.Invitations()
		if err != nil {
			return err
		}
		invitations, snapshot = list, *event
		return nil
	})
	if err != nil {
		recordConflict(err)
		return nil, fmt.Errorf("event service: cancel: %w", err)
	}

	event := s.withOrganizer(ctx, snapshot)
	s.events.publish(ctx, notify.Event{
		Kind:        notify.KindCancelled,
		OccurredAt:  s.now().UTC(),
		ActorID:     actor.UserID,
		Event:       *event,
		Invitations: invitations,
		Recipients:  audience(event, invitations, false),
	})
	return event, nil
}

// ExportICS renders the event as an iCalendar PUBLISH object.
func (s *EventService) ExportICS(ctx context.Context, actor Actor, eventID string) (*CalendarExport, error) {
	event, err := s.visibleEvent(ctx, actor, eventID)
	if err != nil {
		return nil, err
	}
	invitations, err := s.repo.ListInvitationsForEvent(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("event service: %w", err)
	}

	msg := itip.FromEvent(itip.MethodPublish, *event, invitations, s.now())
	data, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("event service: export: %w", err)
	}
	return &CalendarExport{
		Filename:    event.ID + ".ics",
		ContentType: msg.MIMEType(),
		Data:        data,
	}, nil
}

// visibleEvent loads an event the actor organises or was invited to.
func (s *EventService) visibleEvent(ctx context.Context, actor Actor, eventID string) (*models.Event, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("event service: %w", err)
	}
	if actor.organizes(event) {
		return event, nil
	}
	inv, err := s.repo.FindInvitation(ctx, event.ID, actor.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("event service: event %s is not visible to the actor: %w", event.ID, domain.ErrNotAuthorized)
		}
		return nil, fmt.Errorf("event service: %w", err)
	}
	if !actor.isRecipient(inv) {
		return nil, fmt.Errorf("event service: event %s is not visible to the actor: %w", event.ID, domain.ErrNotAuthorized)
	}
	return event, nil
}

// withOrganizer attaches the organizer to a snapshot taken inside the critical section.
func (s *EventService) withOrganizer(ctx context.Context, snapshot models.Event) *models.Event {
	event := snapshot
	if organizer, err := s.repo.GetUser(ctx, event.OrganizerID); err == nil {
		event.Organizer = organizer
	} else {
		s.events.log.Debug("organizer lookup failed", zap.String("event_id", event.ID), zap.Error(err))
	}
	return &event
}

func eventTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("event service: title is required: %w", domain.ErrValidation)
	}
	if len(title) > 255 {
		return "", fmt.Errorf("event service: title exceeds 255 characters: %w", domain.ErrValidation)
	}
	return title, nil
}

// meetingLink validates a caller-supplied link or mints one.
func (s *EventService) meetingLink(raw string) (string, error) {
	link, err := validMeetingLink(raw)
	if err != nil || link != "" || s.links == nil {
		return link, err
	}
	return s.links.MeetingLink(), nil
}

// validMeetingLink accepts an empty link or an absolute URL of at most 512 characters.
func validMeetingLink(raw string) (string, error) {
	link := strings.TrimSpace(raw)
	if link == "" {
		return "", nil
	}
	if err := validator.ValidateVar(link, "url,max=512"); err != nil {
		return "", fmt.Errorf("event service: video conference link %q: %w", link, domain.ErrValidation)
	}
	return link, nil
}

// inviteeEmails normalises, validates and deduplicates participant emails, dropping the organizer.
func inviteeEmails(participants []string, organizerEmail string) ([]string, error) {
	organizerEmail = models.NormalizeEmail(organizerEmail)
	out := make([]string, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))
	for _, raw := range participants {
		email := models.NormalizeEmail(raw)
		if email == "" || email == organizerEmail {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		if err := validator.ValidateVar(email, "email"); err != nil {
			return nil, fmt.Errorf("event service: participant %q is not an email address: %w", raw, domain.ErrValidation)
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out, nil
}
