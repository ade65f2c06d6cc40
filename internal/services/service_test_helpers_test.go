package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/calsched/internal/database/testutil"
	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/notify"
	"github.com/charlesng35/calsched/internal/repository"
)

var testNow = time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) kinds() []notify.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Kind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func (p *recordingPublisher) last() notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	store       *repository.GormStore
	users       *UserDirectory
	events      *EventService
	invitations *InvitationService
	published   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := repository.NewGormStore(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	require.NoError(t, err)

	pub := &recordingPublisher{}
	users, err := NewUserDirectory(store)
	require.NoError(t, err)
	events, err := NewEventService(store, WithEventClock(fixedClock), WithEventPublisher(pub))
	require.NoError(t, err)
	invitations, err := NewInvitationService(store, WithInvitationClock(fixedClock), WithInvitationPublisher(pub))
	require.NoError(t, err)

	return &fixture{store: store, users: users, events: events, invitations: invitations, published: pub}
}

func (f *fixture) register(t *testing.T, email, tz string) Actor {
	t.Helper()
	user, err := f.users.Register(context.Background(), CreateUserInput{Email: email, DisplayName: email, Timezone: tz})
	require.NoError(t, err)
	return Actor{UserID: user.ID, Email: user.Email}
}

func (f *fixture) createEvent(t *testing.T, organizer Actor, start time.Time, participants ...string) *models.Event {
	t.Helper()
	event, err := f.events.Create(context.Background(), organizer, CreateEventInput{
		Title:        "Design review",
		Start:        start,
		End:          start.Add(time.Hour),
		Timezone:     "America/Los_Angeles",
		Participants: participants,
	})
	require.NoError(t, err)
	return event
}

func invitationFor(t *testing.T, event *models.Event, email string) models.Invitation {
	t.Helper()
	for _, inv := range event.Invitations {
		if inv.RecipientEmail == email {
			return inv
		}
	}
	t.Fatalf("no invitation for %s", email)
	return models.Invitation{}
}
