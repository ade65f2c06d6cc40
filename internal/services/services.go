// Package services orchestrates the scheduling engine around the repository. Services resolve
// actors and participants, run invitation transitions inside the per-event critical section and
// publish domain events once the change has committed.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/internal/notify"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Email  string
}

func (a Actor) validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("services: actor is required: %w", domain.ErrNotAuthorized)
	}
	return nil
}

// isRecipient matches the actor against an invitation by account or case-insensitive email.
func (a Actor) isRecipient(inv *models.Invitation) bool {
	if inv == nil {
		return false
	}
	if inv.RecipientID != nil && *inv.RecipientID != "" && *inv.RecipientID == a.UserID {
		return true
	}
	email := models.NormalizeEmail(a.Email)
	return email != "" && email == models.NormalizeEmail(inv.RecipientEmail)
}

func (a Actor) organizes(event *models.Event) bool {
	return event != nil && a.UserID != "" && event.OrganizerID == a.UserID
}

// userResolver maps participant emails onto registered accounts.
type userResolver interface {
	FindUsersByEmail(ctx context.Context, emails []string) (map[string]models.User, error)
}

// publisher delivers committed changes. Failures are logged and never surface to the caller.
type publisher struct {
	pub   notify.Publisher
	users userResolver
	log   *zap.Logger
}

func (p publisher) publish(ctx context.Context, event notify.Event) {
	if p.pub == nil {
		return
	}
	event.Recipients = p.resolve(ctx, event.Recipients)
	if err := p.pub.Publish(context.WithoutCancel(ctx), event); err != nil {
		p.log.Warn("failed to publish domain event",
			zap.String("kind", string(event.Kind)),
			zap.String("event_id", event.Event.ID),
			zap.Error(err),
		)
	}
}

// resolve fills the account of recipients invited by email who registered after the invitation
// was sent. Lookup failures leave the recipients email-only.
func (p publisher) resolve(ctx context.Context, recipients []notify.Recipient) []notify.Recipient {
	if p.users == nil {
		return recipients
	}
	var emails []string
	for _, r := range recipients {
		if r.UserID == "" && r.Email != "" {
			emails = append(emails, r.Email)
		}
	}
	if len(emails) == 0 {
		return recipients
	}
	found, err := p.users.FindUsersByEmail(context.WithoutCancel(ctx), emails)
	if err != nil {
		p.log.Warn("failed to resolve recipients", zap.Error(err))
		return recipients
	}
	out := make([]notify.Recipient, len(recipients))
	for i, r := range recipients {
		if user, ok := found[models.NormalizeEmail(r.Email)]; ok && r.UserID == "" {
			r.UserID = user.ID
			if r.Name == "" {
				r.Name = user.Name()
			}
		}
		out[i] = r
	}
	return out
}

func organizerRecipient(event *models.Event) notify.Recipient {
	r := notify.Recipient{UserID: event.OrganizerID}
	if event.Organizer != nil {
		r.Email = event.Organizer.Email
		r.Name = event.Organizer.Name()
	}
	return r
}

func invitationRecipient(inv models.Invitation) notify.Recipient {
	r := notify.Recipient{Email: inv.RecipientEmail}
	if inv.RecipientID != nil {
		r.UserID = *inv.RecipientID
	}
	return r
}

// audience lists every invitee, and the organizer first when includeOrganizer is set.
func audience(event *models.Event, invitations []models.Invitation, includeOrganizer bool) []notify.Recipient {
	out := make([]notify.Recipient, 0, len(invitations)+1)
	if includeOrganizer {
		out = append(out, organizerRecipient(event))
	}
	for _, inv := range invitations {
		out = append(out, invitationRecipient(inv))
	}
	return out
}

// transitionResult maps an error onto the result label of invitation transition metrics.
func transitionResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func recordConflict(err error) {
	if errors.Is(err, domain.ErrConflict) {
		monitoring.RecordConflict()
	}
}

func utcPtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
