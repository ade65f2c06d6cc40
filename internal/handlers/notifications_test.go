package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/calsched/internal/handlers/testutil"
)

func TestNotificationHandler_ListAndMarkRead(t *testing.T) {
	env := testutil.NewEnv(t)
	organizer := env.CreateUser("org@example.com", "UTC")
	alice := env.CreateUser("alice@example.com", "UTC")
	orgToken, aliceToken := env.Token(organizer), env.Token(alice)

	createEvent(t, env, orgToken, eventStart, "alice@example.com")

	w := env.Request(http.MethodGet, "/api/notifications?unread=true", nil, aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 1, resp.Meta.Total)

	var items []struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		IsRead bool   `json:"is_read"`
	}
	testutil.DecodeInto(t, resp.Data, &items)
	require.Len(t, items, 1)
	require.Equal(t, "Invitation: Design review", items[0].Title)

	w = env.Request(http.MethodPost, "/api/notifications/"+items[0].ID+"/read", nil, orgToken)
	require.Equal(t, http.StatusNotFound, w.Code, "notifications are scoped to their owner")

	w = env.Request(http.MethodPost, "/api/notifications/"+items[0].ID+"/read", nil, aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/notifications?unread=true", nil, aliceToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &items)
	require.Empty(t, items)

	w = env.Request(http.MethodGet, "/api/notifications?unread=sometimes", nil, aliceToken)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestUserHandler_Me(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.CreateUser("alice@example.com", "Asia/Kolkata")

	w := env.Request(http.MethodGet, "/api/me", nil, env.Token(alice))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Timezone string `json:"timezone"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &me)
	require.Equal(t, alice.ID, me.ID)
	require.Equal(t, "Asia/Kolkata", me.Timezone)

	w = env.Request(http.MethodGet, "/api/me", nil, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}

func TestUserHandler_UpdateMe(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.CreateUser("alice@example.com", "Asia/Kolkata")
	token := env.Token(alice)

	w := env.Request(http.MethodPatch, "/api/me", map[string]any{"display_name": "Alice L.", "timezone": "America/Chicago"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		DisplayName string `json:"display_name"`
		Timezone    string `json:"timezone"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &me)
	require.Equal(t, "Alice L.", me.DisplayName)
	require.Equal(t, "America/Chicago", me.Timezone)

	w = env.Request(http.MethodPatch, "/api/me", map[string]any{"display_name": "Alice"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &me)
	require.Equal(t, "America/Chicago", me.Timezone, "omitted fields are kept")

	w = env.Request(http.MethodPatch, "/api/me", map[string]any{"timezone": "Mars/Olympus"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Equal(t, "INVALID_TIMEZONE", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPatch, "/api/me", map[string]any{"display_name": 42}, token)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}
