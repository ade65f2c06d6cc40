// Package notify fans committed calendar changes out to interested parties. Publishers run after
// the originating transaction commits; a failing publisher never undoes the change.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/monitoring"
)

// Kind names a domain event.
type Kind string

const (
	KindInvited         Kind = "invitation.created"
	KindResponded       Kind = "invitation.responded"
	KindProposalDecided Kind = "invitation.proposal_decided"
	KindTimeChanged     Kind = "event.time_changed"
	KindDetailsChanged  Kind = "event.updated"
	KindCancelled       Kind = "event.cancelled"
	KindReminder        Kind = "invitation.reminder"
)

// Recipient is one party to notify. UserID is empty for invitees without an account; they can
// still be mailed.
type Recipient struct {
	UserID string
	Email  string
	Name   string
}

// Event is a committed change. Event carries the post-commit snapshot with its organizer loaded;
// Invitations are all invitations of the event at commit time.
type Event struct {
	Kind       Kind
	OccurredAt time.Time
	ActorID    string

	Event       models.Event
	Invitation  *models.Invitation
	Invitations []models.Invitation
	Recipients  []Recipient

	PreviousStart *time.Time
	PreviousEnd   *time.Time
	SupersededIDs []string
}

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

type named struct {
	name string
	Publisher
}

// Named tags p so Multi can label its metrics and errors.
func Named(name string, p Publisher) Publisher {
	return named{name: name, Publisher: p}
}

// Multi calls every publisher in order and combines their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs error
	for _, p := range m {
		if p == nil {
			continue
		}
		name := "publisher"
		if n, ok := p.(named); ok {
			name = n.name
		}
		if err := p.Publish(ctx, event); err != nil {
			monitoring.RecordNotification(name, "failure")
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		monitoring.RecordNotification(name, "success")
	}
	return errs
}

// UserIDs returns the distinct non-empty user ids of the recipients.
func (e Event) UserIDs() []string {
	seen := make(map[string]struct{}, len(e.Recipients))
	ids := make([]string, 0, len(e.Recipients))
	for _, r := range e.Recipients {
		if r.UserID == "" {
			continue
		}
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		ids = append(ids, r.UserID)
	}
	return ids
}

// Payload is the JSON body pushed to realtime subscribers and stored as notification metadata.
func (e Event) Payload() map[string]any {
	payload := map[string]any{
		"kind":        string(e.Kind),
		"event_id":    e.Event.ID,
		"title":       e.Event.Title,
		"start_at":    e.Event.StartAt.UTC(),
		"end_at":      e.Event.EndAt.UTC(),
		"version":     e.Event.Version,
		"occurred_at": e.OccurredAt.UTC(),
	}
	if e.ActorID != "" {
		payload["actor_id"] = e.ActorID
	}
	if inv := e.Invitation; inv != nil {
		payload["invitation_id"] = inv.ID
		payload["recipient_email"] = inv.RecipientEmail
		payload["status"] = string(inv.Status)
		if inv.ProposedStart != nil && inv.ProposedEnd != nil {
			payload["proposed_start"] = inv.ProposedStart.UTC()
			payload["proposed_end"] = inv.ProposedEnd.UTC()
		}
		if inv.ResponseNote != "" {
			payload["note"] = inv.ResponseNote
		}
	}
	if e.PreviousStart != nil && e.PreviousEnd != nil {
		payload["previous_start"] = e.PreviousStart.UTC()
		payload["previous_end"] = e.PreviousEnd.UTC()
	}
	if len(e.SupersededIDs) > 0 {
		payload["superseded_invitation_ids"] = e.SupersededIDs
	}
	return payload
}
