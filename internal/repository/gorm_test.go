package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/calsched/internal/database/testutil"
	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/models"
)

var base = time.Date(2025, 10, 20, 16, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	require.NoError(t, err)
	return store
}

func seedUser(t *testing.T, store *GormStore, email string) models.User {
	t.Helper()
	user := models.User{Email: email, DisplayName: email, Timezone: "UTC", IsActive: true}
	require.NoError(t, store.CreateUser(context.Background(), &user))
	return user
}

func seedEvent(t *testing.T, store *GormStore, organizer models.User, start time.Time, recipients ...string) *models.Event {
	t.Helper()
	event := &models.Event{
		OrganizerID: organizer.ID,
		Title:       "Planning",
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
		Timezone:    "UTC",
		Version:     1,
	}
	invitations := make([]models.Invitation, 0, len(recipients))
	for _, email := range recipients {
		invitations = append(invitations, models.Invitation{RecipientEmail: email, Status: invitation.StatusPending})
	}
	require.NoError(t, store.CreateEvent(context.Background(), event, invitations))
	return event
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	store := newStore(t)
	seedUser(t, store, "alice@example.com")

	dup := models.User{Email: "ALICE@example.com"}
	err := store.CreateUser(context.Background(), &dup)
	require.ErrorIs(t, err, domain.ErrConflict)

	found, err := store.GetUserByEmail(context.Background(), " Alice@Example.com ")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", found.Email)

	_, err = store.GetUser(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	users, err := store.FindUsersByEmail(context.Background(), []string{"alice@EXAMPLE.com", "bob@example.com", ""})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Contains(t, users, "alice@example.com")
}

func TestUpdateUserProfile(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")

	alice.DisplayName = "Alice A."
	alice.Timezone = "Europe/Berlin"
	require.NoError(t, store.UpdateUserProfile(ctx, &alice))

	found, err := store.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice A.", found.DisplayName)
	require.Equal(t, "Europe/Berlin", found.Timezone)

	err = store.UpdateUserProfile(ctx, &models.User{BaseModel: models.BaseModel{ID: "missing"}})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFrequentCollaboratorsRanksInvitees(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	bob := seedUser(t, store, "bob@example.com")
	carol := seedUser(t, store, "carol@example.com")
	dave := seedUser(t, store, "dave@example.com")

	seedEvent(t, store, alice, base, "bob@example.com", "carol@example.com", "ghost@example.com")
	seedEvent(t, store, alice, base.Add(2*time.Hour), "carol@example.com")
	seedEvent(t, store, alice, base.Add(4*time.Hour), "carol@example.com", "bob@example.com")
	seedEvent(t, store, alice, base.Add(6*time.Hour), "dave@example.com")
	// Events organised by others do not count.
	seedEvent(t, store, bob, base, "dave@example.com", "alice@example.com")

	ranked, err := store.FrequentCollaborators(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3, "unregistered invitees are not suggested")
	require.Equal(t, carol.ID, ranked[0].UserID)
	require.Equal(t, int64(3), ranked[0].InvitationCount)
	require.Equal(t, "bob@example.com", ranked[1].Email)
	require.Equal(t, int64(2), ranked[1].InvitationCount)
	require.Equal(t, dave.ID, ranked[2].UserID)
	require.Equal(t, "UTC", ranked[2].Timezone)

	top, err := store.FrequentCollaborators(ctx, alice.ID, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)

	none, err := store.FrequentCollaborators(ctx, carol.ID, 5)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestBusyIntervalsCoverOrganisedAndAccepted(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	bob := seedUser(t, store, "bob@example.com")

	organised := seedEvent(t, store, alice, base)
	invited := seedEvent(t, store, bob, base.Add(2*time.Hour), "alice@example.com")
	seedEvent(t, store, bob, base.Add(4*time.Hour), "alice@example.com")
	cancelled := seedEvent(t, store, alice, base.Add(6*time.Hour))

	require.NoError(t, store.WithinEvent(ctx, invited.ID, func(tx EventTx) error {
		invs, err := tx.Invitations()
		require.NoError(t, err)
		inv := invs[0]
		inv.Status = invitation.StatusAccepted
		now := base
		inv.RespondedAt = &now
		return tx.SaveTransition(&inv, invitation.StatusPending)
	}))
	require.NoError(t, store.WithinEvent(ctx, cancelled.ID, func(tx EventTx) error {
		return tx.CancelEvent(base)
	}))

	intervals, err := store.BusyIntervals(ctx, alice, base.Add(-time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	require.Equal(t, organised.ID, intervals[0].EventID)
	require.Equal(t, invited.ID, intervals[1].EventID)
	require.Equal(t, "alice@example.com", intervals[0].Participant)

	// Touching the window edge does not count as overlap.
	intervals, err = store.BusyIntervals(ctx, alice, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Empty(t, intervals)

	events, err := store.ListEventsForUser(ctx, bob, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Organizer)
}

func TestWithinEventCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	event := seedEvent(t, store, alice, base, "bob@example.com")

	require.NoError(t, store.WithinEvent(ctx, event.ID, func(tx EventTx) error {
		return tx.UpdateEventTime(base.Add(time.Hour), base.Add(2*time.Hour), base)
	}))

	stored, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.Version)
	require.Equal(t, 1, stored.Sequence)
	require.True(t, stored.StartAt.Equal(base.Add(time.Hour)))

	// A stale status expectation is a conflict and rolls back the whole section.
	err = store.WithinEvent(ctx, event.ID, func(tx EventTx) error {
		if err := tx.UpdateEventTime(base.Add(3*time.Hour), base.Add(4*time.Hour), base); err != nil {
			return err
		}
		invs, err := tx.Invitations()
		if err != nil {
			return err
		}
		inv := invs[0]
		inv.Status = invitation.StatusSuperseded
		return tx.SaveTransition(&inv, invitation.StatusProposed)
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	stored, err = store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.Version)
	require.True(t, stored.StartAt.Equal(base.Add(time.Hour)))

	err = store.WithinEvent(ctx, "missing", func(tx EventTx) error { return nil })
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.Zero(t, store.locks.size())
}

func TestUpdateEventDetailsBumpsVersion(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	event := seedEvent(t, store, alice, base)

	details := EventDetails{Title: "Retro", Description: "Bring stickies", Location: "Room 2", VideoConferenceLink: "https://meet.example.com/r"}
	require.NoError(t, store.WithinEvent(ctx, event.ID, func(tx EventTx) error {
		if err := tx.UpdateEventDetails(details, base); err != nil {
			return err
		}
		require.Equal(t, int64(2), tx.Event().Version)
		return nil
	}))

	stored, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, "Retro", stored.Title)
	require.Equal(t, "Room 2", stored.Location)
	require.Equal(t, "https://meet.example.com/r", stored.VideoConferenceLink)
	require.Equal(t, int64(2), stored.Version)
	require.Equal(t, 1, stored.Sequence)
	require.True(t, stored.StartAt.Equal(base))

	require.NoError(t, store.WithinEvent(ctx, event.ID, func(tx EventTx) error {
		return tx.CancelEvent(base)
	}))
	err = store.WithinEvent(ctx, event.ID, func(tx EventTx) error {
		return tx.UpdateEventDetails(details, base)
	})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestWithinEventSerialisesSameEvent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	event := seedEvent(t, store, alice, base)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.WithinEvent(ctx, event.ID, func(tx EventTx) error {
				start := tx.Event().StartAt.Add(time.Duration(i+1) * time.Minute)
				return tx.UpdateEventTime(start, start.Add(time.Hour), base)
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, int64(workers+1), stored.Version)
}

func TestCancelledEventRejectsTimeUpdate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	event := seedEvent(t, store, alice, base)

	require.NoError(t, store.WithinEvent(ctx, event.ID, func(tx EventTx) error { return tx.CancelEvent(base) }))
	err := store.WithinEvent(ctx, event.ID, func(tx EventTx) error {
		require.True(t, tx.Event().Cancelled())
		return tx.UpdateEventTime(base, base.Add(time.Hour), base)
	})
	require.True(t, errors.Is(err, domain.ErrConflict))
}

func TestInvitationQueries(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	event := seedEvent(t, store, alice, base, "bob@example.com", "carol@example.com")

	err := store.CreateEvent(ctx, &models.Event{OrganizerID: alice.ID, Title: "dup", StartAt: base, EndAt: base.Add(time.Hour), Timezone: "UTC", Version: 1},
		[]models.Invitation{
			{RecipientEmail: "x@example.com", Status: invitation.StatusPending},
			{RecipientEmail: "x@example.com", Status: invitation.StatusPending},
		})
	require.ErrorIs(t, err, domain.ErrConflict)

	counts, err := store.CountInvitationsByStatus(ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[invitation.StatusPending])
	require.Equal(t, int64(0), counts[invitation.StatusSuperseded])

	mine, err := store.ListInvitationsForRecipient(ctx, "BOB@example.com")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Event)
	require.NotNil(t, mine[0].Event.Organizer)

	mine, err = store.ListInvitationsForRecipient(ctx, "bob@example.com", invitation.StatusAccepted)
	require.NoError(t, err)
	require.Empty(t, mine)

	inv, err := store.FindInvitation(ctx, event.ID, "carol@example.com")
	require.NoError(t, err)
	loaded, err := store.GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, event.ID, loaded.Event.ID)
}

func TestDueRemindersAndMarkReminded(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	soon := seedEvent(t, store, alice, base.Add(5*time.Minute), "bob@example.com")
	seedEvent(t, store, alice, base.Add(time.Hour), "carol@example.com")

	due, err := store.DueReminders(ctx, base, 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, soon.ID, due[0].EventID)
	require.NotNil(t, due[0].Event)

	ok, err := store.MarkReminded(ctx, due[0].ID, base)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.MarkReminded(ctx, due[0].ID, base)
	require.NoError(t, err)
	require.False(t, ok)

	due, err = store.DueReminders(ctx, base, 10*time.Minute)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestPurgeCancelledEvents(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")
	old := seedEvent(t, store, alice, base, "bob@example.com")
	recent := seedEvent(t, store, alice, base)

	require.NoError(t, store.WithinEvent(ctx, old.ID, func(tx EventTx) error { return tx.CancelEvent(base.Add(-40 * 24 * time.Hour)) }))
	require.NoError(t, store.WithinEvent(ctx, recent.ID, func(tx EventTx) error { return tx.CancelEvent(base) }))

	purged, err := store.PurgeCancelledEvents(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	_, err = store.GetEvent(ctx, old.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	invs, err := store.ListInvitationsForEvent(ctx, old.ID)
	require.NoError(t, err)
	require.Empty(t, invs)

	_, err = store.GetEvent(ctx, recent.ID)
	require.NoError(t, err)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alice := seedUser(t, store, "alice@example.com")

	require.NoError(t, store.CreateNotifications(ctx, []models.Notification{
		{UserID: alice.ID, Type: "event.created", Title: "Invited"},
		{UserID: alice.ID, Type: "event.cancelled", Title: "Cancelled"},
	}))

	list, err := store.ListNotifications(ctx, alice.ID, true, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, store.MarkNotificationRead(ctx, alice.ID, list[0].ID, base))
	list, err = store.ListNotifications(ctx, alice.ID, true, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	err = store.MarkNotificationRead(ctx, "someone-else", list[0].ID, base)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	locks := newKeyedMutex()
	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	require.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	require.Zero(t, locks.size())
}
