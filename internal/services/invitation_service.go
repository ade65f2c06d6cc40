package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/internal/notify"
	"github.com/charlesng35/calsched/internal/repository"
	"github.com/charlesng35/calsched/pkg/logger"
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithInvitationPublisher delivers committed invitation changes.
func WithInvitationPublisher(p notify.Publisher) InvitationOption {
	return func(s *InvitationService) {
		s.events.pub = p
	}
}

// RespondInput is a recipient's response. ProposedStart and ProposedEnd apply to propose only.
type RespondInput struct {
	Action        invitation.Action
	ProposedStart time.Time
	ProposedEnd   time.Time
	Note          *string
}

// ProposalAcceptance is the result of accepting a proposed time.
type ProposalAcceptance struct {
	Event                   *models.Event      `json:"event"`
	Invitation              *models.Invitation `json:"invitation"`
	SupersededInvitationIDs []string           `json:"superseded_invitation_ids"`
}

// InvitationSummary counts an event's invitations per status. Every status is present.
type InvitationSummary struct {
	EventID string                      `json:"event_id"`
	Total   int64                       `json:"total"`
	Counts  map[invitation.Status]int64 `json:"counts"`
}

// InvitationService runs recipient and organizer transitions on invitations.
type InvitationService struct {
	repo   repository.Repository
	events publisher
	now    func() time.Time
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(repo repository.Repository, opts ...InvitationOption) (*InvitationService, error) {
	if repo == nil {
		return nil, errors.New("invitation service: repository is required")
	}
	svc := &InvitationService{
		repo:   repo,
		events: publisher{users: repo, log: logger.WithModule("services.invitations")},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Respond accepts, declines or proposes a new time on behalf of the recipient.
func (s *InvitationService) Respond(ctx context.Context, invitationID string, actor Actor, input RespondInput) (*models.Invitation, error) {
	if input.Action.OrganizerOnly() {
		err := fmt.Errorf("invitation service: %s is not a recipient response: %w", input.Action, domain.ErrValidation)
		monitoring.RecordInvitationTransition(string(input.Action), transitionResult(err))
		return nil, err
	}
	cmd := invitation.Command{
		Action:        input.Action,
		ProposedStart: input.ProposedStart,
		ProposedEnd:   input.ProposedEnd,
		Note:          input.Note,
	}

	inv, event, err := s.transition(ctx, invitationID, actor, cmd)
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, notify.Event{
		Kind:       notify.KindResponded,
		OccurredAt: s.now().UTC(),
		ActorID:    actor.UserID,
		Event:      *event,
		Invitation: inv,
		Recipients: []notify.Recipient{organizerRecipient(event)},
	})
	return inv, nil
}

// RejectProposal declines a PROPOSED invitation on behalf of the organizer. An empty note is
// replaced with the default rejection note.
func (s *InvitationService) RejectProposal(ctx context.Context, invitationID string, actor Actor, note string) (*models.Invitation, error) {
	cmd := invitation.Command{Action: invitation.ActionRejectProposal}
	if note != "" {
		cmd.Note = &note
	}

	inv, event, err := s.transition(ctx, invitationID, actor, cmd)
	if err != nil {
		return nil, err
	}

	s.events.publish(ctx, notify.Event{
		Kind:       notify.KindProposalDecided,
		OccurredAt: s.now().UTC(),
		ActorID:    actor.UserID,
		Event:      *event,
		Invitation: inv,
		Recipients: []notify.Recipient{invitationRecipient(*inv)},
	})
	return inv, nil
}

// transition applies a single-invitation command inside the event's critical section.
func (s *InvitationService) transition(ctx context.Context, invitationID string, actor Actor, cmd invitation.Command) (*models.Invitation, *models.Event, error) {
	inv, event, err := s.runTransition(ctx, invitationID, actor, cmd)
	monitoring.RecordInvitationTransition(string(cmd.Action), transitionResult(err))
	recordConflict(err)
	if err != nil {
		return nil, nil, fmt.Errorf("invitation service: %s: %w", cmd.Action, err)
	}
	return inv, event, nil
}

func (s *InvitationService) runTransition(ctx context.Context, invitationID string, actor Actor, cmd invitation.Command) (*models.Invitation, *models.Event, error) {
	if err := actor.validate(); err != nil {
		return nil, nil, err
	}
	current, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, nil, err
	}

	var (
		updated  models.Invitation
		snapshot models.Event
	)
	err = s.repo.WithinEvent(ctx, current.EventID, func(tx repository.EventTx) error {
		event := tx.Event()
		inv, err := tx.Invitation(invitationID)
		if err != nil {
			return err
		}

		cmd.IsRecipient = actor.isRecipient(inv)
		cmd.IsOrganizer = actor.organizes(event)
		cmd.Now = s.now()
		outcome, err := invitation.Apply(inv.MachineState(event.Cancelled()), cmd)
		if err != nil {
			return err
		}
		inv.ApplyState(outcome.State)
		if cmd.IsRecipient && inv.RecipientID == nil {
			id := actor.UserID
			inv.RecipientID = &id
		}
		if err := tx.SaveTransition(inv, outcome.From); err != nil {
			return err
		}
		updated, snapshot = *inv, *event
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if current.Event != nil {
		snapshot.Organizer = current.Event.Organizer
	}
	return &updated, &snapshot, nil
}

// AcceptProposal accepts a PROPOSED invitation on behalf of the organizer. In one commit the event
// moves to the proposed range, the invitation becomes ACCEPTED and every other PROPOSED invitation
// of the event becomes SUPERSEDED.
func (s *InvitationService) AcceptProposal(ctx context.Context, invitationID string, actor Actor) (*ProposalAcceptance, error) {
	result, prevStart, prevEnd, all, err := s.acceptProposal(ctx, invitationID, actor)
	monitoring.RecordInvitationTransition(string(invitation.ActionAcceptProposal), transitionResult(err))
	recordConflict(err)
	if err != nil {
		return nil, fmt.Errorf("invitation service: %s: %w", invitation.ActionAcceptProposal, err)
	}

	monitoring.RecordEventTimeChange("proposal")
	s.events.publish(ctx, notify.Event{
		Kind:          notify.KindTimeChanged,
		OccurredAt:    s.now().UTC(),
		ActorID:       actor.UserID,
		Event:         *result.Event,
		Invitation:    result.Invitation,
		Invitations:   all,
		Recipients:    audience(result.Event, all, true),
		PreviousStart: utcPtr(prevStart),
		PreviousEnd:   utcPtr(prevEnd),
		SupersededIDs: result.SupersededInvitationIDs,
	})
	return result, nil
}

func (s *InvitationService) acceptProposal(ctx context.Context, invitationID string, actor Actor) (*ProposalAcceptance, time.Time, time.Time, []models.Invitation, error) {
	var prevStart, prevEnd time.Time
	if err := actor.validate(); err != nil {
		return nil, prevStart, prevEnd, nil, err
	}
	current, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, prevStart, prevEnd, nil, err
	}

	var (
		accepted   models.Invitation
		snapshot   models.Event
		superseded = []string{}
		all        []models.Invitation
	)
	err = s.repo.WithinEvent(ctx, current.EventID, func(tx repository.EventTx) error {
		event := tx.Event()
		inv, err := tx.Invitation(invitationID)
		if err != nil {
			return err
		}

		now := s.now()
		outcome, err := invitation.Apply(inv.MachineState(event.Cancelled()), invitation.Command{
			Action:      invitation.ActionAcceptProposal,
			IsRecipient: actor.isRecipient(inv),
			IsOrganizer: actor.organizes(event),
			Now:         now,
		})
		if err != nil {
			return err
		}

		prevStart, prevEnd = event.StartAt, event.EndAt
		if outcome.EventTime != nil {
			if err := tx.UpdateEventTime(outcome.EventTime.Start, outcome.EventTime.End, now); err != nil {
				return err
			}
		}
		inv.ApplyState(outcome.State)
		if err := tx.SaveTransition(inv, outcome.From); err != nil {
			return err
		}

		if outcome.SupersedeSiblings {
			siblings, err := tx.Invitations(invitation.StatusProposed)
			if err != nil {
				return err
			}
			for i := range siblings {
				sibling := &siblings[i]
				if sibling.ID == inv.ID {
					continue
				}
				state, err := invitation.Supersede(sibling.MachineState(false))
				if err != nil {
					return err
				}
				sibling.ApplyState(state)
				if err := tx.SaveTransition(sibling, invitation.StatusProposed); err != nil {
					return err
				}
				superseded = append(superseded, sibling.ID)
			}
		}

		list, err := tx.Invitations()
		if err != nil {
			return err
		}
		accepted, snapshot, all = *inv, *event, list
		return nil
	})
	if err != nil {
		return nil, prevStart, prevEnd, nil, err
	}
	if current.Event != nil {
		snapshot.Organizer = current.Event.Organizer
	}
	return &ProposalAcceptance{
		Event:                   &snapshot,
		Invitation:              &accepted,
		SupersededInvitationIDs: superseded,
	}, prevStart, prevEnd, all, nil
}

// ListForEvent returns every invitation of an event to its organizer.
func (s *InvitationService) ListForEvent(ctx context.Context, actor Actor, eventID string) ([]models.Invitation, error) {
	if _, err := s.organizedEvent(ctx, actor, eventID); err != nil {
		return nil, err
	}
	invitations, err := s.repo.ListInvitationsForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("invitation service: %w", err)
	}
	return invitations, nil
}

// ListProposals returns the open proposals of an event to its organizer.
func (s *InvitationService) ListProposals(ctx context.Context, actor Actor, eventID string) ([]models.Invitation, error) {
	if _, err := s.organizedEvent(ctx, actor, eventID); err != nil {
		return nil, err
	}
	invitations, err := s.repo.ListInvitationsForEvent(ctx, eventID, invitation.StatusProposed)
	if err != nil {
		return nil, fmt.Errorf("invitation service: %w", err)
	}
	return invitations, nil
}

// Summary counts an event's invitations per status.
func (s *InvitationService) Summary(ctx context.Context, actor Actor, eventID string) (*InvitationSummary, error) {
	if _, err := s.organizedEvent(ctx, actor, eventID); err != nil {
		return nil, err
	}
	counts, err := s.repo.CountInvitationsByStatus(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("invitation service: %w", err)
	}

	summary := &InvitationSummary{EventID: eventID, Counts: make(map[invitation.Status]int64, len(invitation.Statuses))}
	for _, status := range invitation.Statuses {
		summary.Counts[status] = counts[status]
		summary.Total += counts[status]
	}
	return summary, nil
}

// ListMine returns the actor's invitations, optionally filtered by status.
func (s *InvitationService) ListMine(ctx context.Context, actor Actor, status *invitation.Status) ([]models.Invitation, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	var statuses []invitation.Status
	if status != nil {
		statuses = append(statuses, *status)
	}
	invitations, err := s.repo.ListInvitationsForRecipient(ctx, actor.Email, statuses...)
	if err != nil {
		return nil, fmt.Errorf("invitation service: %w", err)
	}
	return invitations, nil
}

func (s *InvitationService) organizedEvent(ctx context.Context, actor Actor, eventID string) (*models.Event, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("invitation service: %w", err)
	}
	if !actor.organizes(event) {
		return nil, fmt.Errorf("invitation service: only the organizer may list invitations: %w", domain.ErrNotAuthorized)
	}
	return event, nil
}
