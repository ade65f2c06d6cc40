// Package repository persists users, events, invitations and notifications.
//
// Writes that touch an event's time or its invitations go through WithinEvent, which serialises
// callers per event id and guards every row write with a compare-and-set.
package repository

import (
	"context"
	"time"

	"github.com/charlesng35/calsched/internal/availability"
	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/models"
)

// Repository is the storage contract used by the services.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUsersByEmail(ctx context.Context, emails []string) (map[string]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserProfile(ctx context.Context, user *models.User) error
	FrequentCollaborators(ctx context.Context, organizerID string, limit int) ([]Collaborator, error)

	CreateEvent(ctx context.Context, event *models.Event, invitations []models.Invitation) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEventsForUser(ctx context.Context, user models.User, start, end time.Time) ([]models.Event, error)
	BusyIntervals(ctx context.Context, user models.User, start, end time.Time) ([]availability.BusyInterval, error)
	PurgeCancelledEvents(ctx context.Context, cutoff time.Time) (int64, error)

	GetInvitation(ctx context.Context, id string) (*models.Invitation, error)
	FindInvitation(ctx context.Context, eventID, email string) (*models.Invitation, error)
	ListInvitationsForEvent(ctx context.Context, eventID string, statuses ...invitation.Status) ([]models.Invitation, error)
	ListInvitationsForRecipient(ctx context.Context, email string, statuses ...invitation.Status) ([]models.Invitation, error)
	CountInvitationsByStatus(ctx context.Context, eventID string) (map[invitation.Status]int64, error)
	DueReminders(ctx context.Context, now time.Time, lead time.Duration) ([]models.Invitation, error)
	MarkReminded(ctx context.Context, invitationID string, at time.Time) (bool, error)

	CreateNotifications(ctx context.Context, notifications []models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error

	WithinEvent(ctx context.Context, eventID string, fn func(tx EventTx) error) error
}

// EventTx is the per-event critical section handed to WithinEvent callbacks. Event returns the
// snapshot read when the section was entered.
type EventTx interface {
	Event() *models.Event
	Invitation(id string) (*models.Invitation, error)
	Invitations(statuses ...invitation.Status) ([]models.Invitation, error)
	// UpdateEventTime moves the event and bumps version and sequence when the snapshot version still matches.
	UpdateEventTime(start, end time.Time, now time.Time) error
	// UpdateEventDetails rewrites the descriptive fields and bumps version and sequence when the
	// snapshot version still matches.
	UpdateEventDetails(details EventDetails, now time.Time) error
	// CancelEvent sets the tombstone when the snapshot version still matches.
	CancelEvent(at time.Time) error
	// SaveTransition writes inv's state and recipient account when its stored status still equals from.
	SaveTransition(inv *models.Invitation, from invitation.Status) error
}

// EventDetails are the descriptive fields an organizer may edit.
type EventDetails struct {
	Title               string
	Description         string
	Location            string
	VideoConferenceLink string
}

// DefaultCollaboratorLimit caps FrequentCollaborators when no limit is given.
const DefaultCollaboratorLimit = 20

// Collaborator is a registered user ranked by how often an organizer invited them.
type Collaborator struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	DisplayName     string `json:"display_name"`
	Timezone        string `json:"timezone"`
	InvitationCount int64  `json:"invitation_count"`
}
