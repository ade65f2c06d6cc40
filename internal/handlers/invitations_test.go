package handlers_test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/calsched/internal/handlers/testutil"
)

type invitationPayload struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	RecipientEmail string     `json:"recipient_email"`
	Status         string     `json:"status"`
	ProposedStart  *time.Time `json:"proposed_start"`
	ResponseNote   string     `json:"response_note"`
}

func TestInvitationHandler_ProposalNegotiation(t *testing.T) {
	env := testutil.NewEnv(t)
	organizer := env.CreateUser("org@example.com", "UTC")
	alice := env.CreateUser("alice@example.com", "UTC")
	bob := env.CreateUser("bob@example.com", "UTC")
	orgToken, aliceToken, bobToken := env.Token(organizer), env.Token(alice), env.Token(bob)

	event := createEvent(t, env, orgToken, eventStart, "alice@example.com", "bob@example.com")
	aliceInv := event.invitationID(t, "alice@example.com")
	bobInv := event.invitationID(t, "bob@example.com")

	proposal := func(token, id string, start time.Time) *http.Response {
		w := env.Request(http.MethodPost, "/api/invitations/"+id+"/respond", map[string]any{
			"action":         "propose",
			"proposed_start": start,
			"proposed_end":   start.Add(time.Hour),
			"note":           "works better for me",
		}, token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return w.Result()
	}
	proposal(aliceToken, aliceInv, eventStart.Add(24*time.Hour))
	proposal(bobToken, bobInv, eventStart.Add(48*time.Hour))

	// Only the recipient may respond.
	w := env.Request(http.MethodPost, "/api/invitations/"+aliceInv+"/respond", map[string]any{"action": "accept"}, bobToken)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	// Organizer actions are not reachable through respond.
	w = env.Request(http.MethodPost, "/api/invitations/"+aliceInv+"/respond", map[string]any{"action": "accept-proposal"}, orgToken)
	require.NotEqual(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/events/"+event.ID+"/proposals", nil, orgToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var proposals []invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &proposals)
	require.Len(t, proposals, 2)

	w = env.Request(http.MethodGet, "/api/events/"+event.ID+"/proposals", nil, aliceToken)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/invitations/"+aliceInv+"/accept-proposal", nil, aliceToken)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/invitations/"+aliceInv+"/accept-proposal", nil, orgToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var accepted struct {
		Event                   eventPayload      `json:"event"`
		Invitation              invitationPayload `json:"invitation"`
		SupersededInvitationIDs []string          `json:"superseded_invitation_ids"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &accepted)
	require.True(t, accepted.Event.StartAt.Equal(eventStart.Add(24*time.Hour)))
	require.Equal(t, "ACCEPTED", accepted.Invitation.Status)
	require.Equal(t, []string{bobInv}, accepted.SupersededInvitationIDs)

	w = env.Request(http.MethodPost, "/api/invitations/"+bobInv+"/accept-proposal", nil, orgToken)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/events/"+event.ID+"/invitations/summary", nil, orgToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary struct {
		Total  int64            `json:"total"`
		Counts map[string]int64 `json:"counts"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &summary)
	require.Equal(t, int64(2), summary.Total)
	require.Equal(t, int64(1), summary.Counts["ACCEPTED"])
	require.Equal(t, int64(1), summary.Counts["SUPERSEDED"])
	require.Zero(t, summary.Counts["PENDING"])
}

func TestInvitationHandler_RejectProposal(t *testing.T) {
	env := testutil.NewEnv(t)
	organizer := env.CreateUser("org@example.com", "UTC")
	alice := env.CreateUser("alice@example.com", "UTC")
	orgToken, aliceToken := env.Token(organizer), env.Token(alice)

	event := createEvent(t, env, orgToken, eventStart, "alice@example.com")
	inv := event.invitationID(t, "alice@example.com")

	w := env.Request(http.MethodPost, "/api/invitations/"+inv+"/reject-proposal", nil, orgToken)
	require.Equal(t, http.StatusConflict, w.Code, "a pending invitation has no proposal to reject")

	w = env.Request(http.MethodPost, "/api/invitations/"+inv+"/respond", map[string]any{
		"action":         "propose",
		"proposed_start": eventStart.Add(time.Hour),
		"proposed_end":   eventStart.Add(2 * time.Hour),
	}, aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/invitations/"+inv+"/reject-proposal", map[string]any{"note": "keep the slot"}, orgToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rejected invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &rejected)
	require.Equal(t, "DECLINED", rejected.Status)
	require.Equal(t, "keep the slot", rejected.ResponseNote)
	require.Nil(t, rejected.ProposedStart)
}

func TestInvitationHandler_RejectProposalChunkedBody(t *testing.T) {
	env := testutil.NewEnv(t)
	organizer := env.CreateUser("org@example.com", "UTC")
	alice := env.CreateUser("alice@example.com", "UTC")
	bob := env.CreateUser("bob@example.com", "UTC")
	orgToken := env.Token(organizer)

	event := createEvent(t, env, orgToken, eventStart, "alice@example.com", "bob@example.com")
	proposeAs := func(token, inv string) {
		w := env.Request(http.MethodPost, "/api/invitations/"+inv+"/respond", map[string]any{
			"action":         "propose",
			"proposed_start": eventStart.Add(time.Hour),
			"proposed_end":   eventStart.Add(2 * time.Hour),
		}, token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	chunked := func(inv, body string) *http.Request {
		req, err := http.NewRequest(http.MethodPost, "/api/invitations/"+inv+"/reject-proposal", io.NopCloser(strings.NewReader(body)))
		require.NoError(t, err)
		req.ContentLength = -1
		req.TransferEncoding = []string{"chunked"}
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	aliceInv := event.invitationID(t, "alice@example.com")
	proposeAs(env.Token(alice), aliceInv)
	w := env.Serve(chunked(aliceInv, `{"note":"keep the slot"}`), orgToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rejected invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &rejected)
	require.Equal(t, "keep the slot", rejected.ResponseNote, "a body of unknown length is still read")

	bobInv := event.invitationID(t, "bob@example.com")
	proposeAs(env.Token(bob), bobInv)
	w = env.Serve(chunked(bobInv, `{"note":`), orgToken)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Serve(chunked(bobInv, ""), orgToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &rejected)
	require.Equal(t, "DECLINED", rejected.Status)
	require.NotEmpty(t, rejected.ResponseNote, "an empty body uses the default note")
}

func TestInvitationHandler_ListMine(t *testing.T) {
	env := testutil.NewEnv(t)
	organizer := env.CreateUser("org@example.com", "UTC")
	alice := env.CreateUser("alice@example.com", "UTC")
	orgToken, aliceToken := env.Token(organizer), env.Token(alice)

	first := createEvent(t, env, orgToken, eventStart, "alice@example.com")
	createEvent(t, env, orgToken, eventStart.Add(24*time.Hour), "alice@example.com")

	w := env.Request(http.MethodPost, "/api/invitations/"+first.invitationID(t, "alice@example.com")+"/respond",
		map[string]any{"action": "decline"}, aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var mine []invitationPayload
	w = env.Request(http.MethodGet, "/api/invitations", nil, aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &mine)
	require.Len(t, mine, 2)

	w = env.Request(http.MethodGet, "/api/invitations?status=pending", nil, aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &mine)
	require.Len(t, mine, 1)
	require.Equal(t, "PENDING", mine[0].Status)

	w = env.Request(http.MethodGet, "/api/invitations?status=maybe", nil, aliceToken)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/invitations/"+first.invitationID(t, "alice@example.com")+"/respond",
		map[string]any{"action": "shrug"}, aliceToken)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}
