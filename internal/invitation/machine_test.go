package invitation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/calsched/internal/domain"
)

var now = time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func proposed(start, end time.Time) State {
	return State{Status: StatusProposed, ProposedStart: &start, ProposedEnd: &end, ResponseNote: "works better for me"}
}

func TestReachable(t *testing.T) {
	require.ElementsMatch(t, []Status{StatusAccepted, StatusDeclined, StatusProposed}, Reachable(StatusPending))
	require.ElementsMatch(t, []Status{StatusAccepted, StatusDeclined, StatusSuperseded}, Reachable(StatusProposed))
	require.Empty(t, Reachable(StatusSuperseded))
	require.Empty(t, Reachable(StatusAccepted))
	require.Empty(t, Reachable(StatusDeclined))

	require.True(t, StatusSuperseded.Terminal())
	require.True(t, StatusDeclined.Terminal())
	require.False(t, StatusPending.Terminal())
}

func TestRecipientTransitionsFromPending(t *testing.T) {
	start := time.Date(2025, 10, 21, 17, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	cases := []struct {
		name   string
		cmd    Command
		expect Status
	}{
		{name: "accept", cmd: Command{Action: ActionAccept, IsRecipient: true, Now: now}, expect: StatusAccepted},
		{name: "decline", cmd: Command{Action: ActionDecline, IsRecipient: true, Now: now, Note: strPtr("busy")}, expect: StatusDeclined},
		{name: "propose", cmd: Command{Action: ActionPropose, IsRecipient: true, Now: now, ProposedStart: start, ProposedEnd: end}, expect: StatusProposed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Apply(State{Status: StatusPending}, tc.cmd)
			require.NoError(t, err)
			require.Equal(t, StatusPending, out.From)
			require.Equal(t, tc.expect, out.State.Status)
			require.NotNil(t, out.State.RespondedAt)
			require.Equal(t, now, *out.State.RespondedAt)
			require.False(t, out.SupersedeSiblings)
			require.Nil(t, out.EventTime)
		})
	}

	out, err := Apply(State{Status: StatusPending}, cases[2].cmd)
	require.NoError(t, err)
	require.Equal(t, start, *out.State.ProposedStart)
	require.Equal(t, end, *out.State.ProposedEnd)
}

func TestNoTransitionFromTerminalStatuses(t *testing.T) {
	start := time.Date(2025, 10, 21, 17, 0, 0, 0, time.UTC)
	actions := []Command{
		{Action: ActionAccept, IsRecipient: true, Now: now},
		{Action: ActionDecline, IsRecipient: true, Now: now},
		{Action: ActionPropose, IsRecipient: true, Now: now, ProposedStart: start, ProposedEnd: start.Add(time.Hour)},
		{Action: ActionAcceptProposal, IsOrganizer: true, Now: now},
		{Action: ActionRejectProposal, IsOrganizer: true, Now: now},
	}
	for _, from := range []Status{StatusSuperseded, StatusAccepted, StatusDeclined} {
		for _, cmd := range actions {
			state := State{Status: from}
			if from == StatusSuperseded {
				state = proposed(start, start.Add(time.Hour))
				state.Status = StatusSuperseded
			}
			_, err := Apply(state, cmd)
			require.ErrorIs(t, err, domain.ErrInvalidStateTransition, "%s %s", from, cmd.Action)
		}
	}
}

func TestAcceptProposal(t *testing.T) {
	start := time.Date(2025, 10, 21, 17, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	out, err := Apply(proposed(start, end), Command{Action: ActionAcceptProposal, IsOrganizer: true, Now: now})
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, out.State.Status)
	require.True(t, out.SupersedeSiblings)
	require.Equal(t, &TimeRange{Start: start, End: end}, out.EventTime)
	require.Nil(t, out.State.ProposedStart)
	require.Nil(t, out.State.ProposedEnd)
	require.Equal(t, "works better for me", out.State.ResponseNote)

	_, err = Apply(State{Status: StatusPending}, Command{Action: ActionAcceptProposal, IsOrganizer: true, Now: now})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestRejectProposal(t *testing.T) {
	start := time.Date(2025, 10, 21, 17, 0, 0, 0, time.UTC)

	out, err := Apply(proposed(start, start.Add(time.Hour)), Command{Action: ActionRejectProposal, IsOrganizer: true, Now: now})
	require.NoError(t, err)
	require.Equal(t, StatusDeclined, out.State.Status)
	require.Equal(t, DefaultRejectionNote, out.State.ResponseNote)
	require.Nil(t, out.State.ProposedStart)

	out, err = Apply(proposed(start, start.Add(time.Hour)), Command{Action: ActionRejectProposal, IsOrganizer: true, Now: now, Note: strPtr("room unavailable")})
	require.NoError(t, err)
	require.Equal(t, "room unavailable", out.State.ResponseNote)

	// A rejected proposal is final for this recipient.
	_, err = Apply(out.State, Command{Action: ActionPropose, IsRecipient: true, Now: now, ProposedStart: start, ProposedEnd: start.Add(time.Hour)})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestActorCheckedBeforePayloadAndState(t *testing.T) {
	start := time.Date(2025, 10, 21, 17, 0, 0, 0, time.UTC)

	_, err := Apply(State{Status: StatusSuperseded}, Command{Action: ActionAccept, IsOrganizer: true, Now: now})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = Apply(State{Status: StatusPending}, Command{Action: ActionAcceptProposal, IsRecipient: true, Now: now})
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = Apply(State{Status: StatusDeclined}, Command{Action: ActionPropose, IsRecipient: true, Now: now, ProposedStart: start, ProposedEnd: start})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = Apply(State{Status: StatusPending}, Command{Action: ActionPropose, IsRecipient: true, Now: now, ProposedStart: start})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = Apply(State{Status: StatusPending}, Command{Action: Action("maybe"), IsRecipient: true, Now: now})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestCancelledEventRejectsEveryAction(t *testing.T) {
	start := time.Date(2025, 10, 21, 17, 0, 0, 0, time.UTC)
	state := State{Status: StatusPending, EventCancelled: true}

	_, err := Apply(state, Command{Action: ActionAccept, IsRecipient: true, Now: now})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	cancelledProposal := proposed(start, start.Add(time.Hour))
	cancelledProposal.EventCancelled = true
	_, err = Apply(cancelledProposal, Command{Action: ActionAcceptProposal, IsOrganizer: true, Now: now})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestSupersede(t *testing.T) {
	start := time.Date(2025, 10, 21, 17, 0, 0, 0, time.UTC)
	next, err := Supersede(proposed(start, start.Add(time.Hour)))
	require.NoError(t, err)
	require.Equal(t, StatusSuperseded, next.Status)
	require.NotNil(t, next.ProposedStart, "proposal kept for audit")

	_, err = Supersede(State{Status: StatusAccepted})
	require.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestParse(t *testing.T) {
	status, err := ParseStatus("proposed")
	require.NoError(t, err)
	require.Equal(t, StatusProposed, status)
	_, err = ParseStatus("tentative")
	require.ErrorIs(t, err, domain.ErrValidation)

	action, err := ParseAction(" Accept ")
	require.NoError(t, err)
	require.Equal(t, ActionAccept, action)
	require.True(t, ActionRejectProposal.OrganizerOnly())
	_, err = ParseAction("maybe")
	require.Error(t, err)
}
