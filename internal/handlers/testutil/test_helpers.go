package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/calsched/internal/api"
	"github.com/charlesng35/calsched/internal/app"
	iauth "github.com/charlesng35/calsched/internal/auth"
	"github.com/charlesng35/calsched/internal/conference"
	sharedtestutil "github.com/charlesng35/calsched/internal/database/testutil"
	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/internal/notify"
	"github.com/charlesng35/calsched/internal/repository"
	"github.com/charlesng35/calsched/internal/services"
	"github.com/charlesng35/calsched/pkg/response"
)

// Now is the fixed service clock used by handler tests.
var Now = time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)

// MeetingBaseURL prefixes the meeting links generated for events created in handler tests.
const MeetingBaseURL = "https://meet.test/"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	Store  *repository.GormStore
	Users  *services.UserDirectory
	Router *gin.Engine
	JWT    *iauth.JWTService
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	store, err := repository.NewGormStore(sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate()))
	require.NoError(t, err)

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Features: app.FeatureConfig{
			Notifications: app.NotificationConfig{Enabled: true},
		},
	}

	clock := func() time.Time { return Now }
	publisher := notify.NewStorePublisher(store, nil)

	users, err := services.NewUserDirectory(store)
	require.NoError(t, err)
	availability, err := services.NewAvailabilityService(store, nil)
	require.NoError(t, err)
	links, err := conference.NewGenerator(MeetingBaseURL)
	require.NoError(t, err)
	events, err := services.NewEventService(store,
		services.WithEventClock(clock),
		services.WithEventPublisher(publisher),
		services.WithMeetingLinks(links))
	require.NoError(t, err)
	invitations, err := services.NewInvitationService(store, services.WithInvitationClock(clock), services.WithInvitationPublisher(publisher))
	require.NoError(t, err)
	notifications, err := services.NewNotificationService(store, services.WithNotificationClock(clock))
	require.NoError(t, err)

	mon, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		Config:        cfg,
		JWT:           jwtSvc,
		Users:         users,
		Calendar:      services.NewCalendarService(),
		Availability:  availability,
		Events:        events,
		Invitations:   invitations,
		Notifications: notifications,
		Monitoring:    mon,
	})
	require.NoError(t, err)

	return &Env{
		T:      t,
		Store:  store,
		Users:  users,
		Router: router,
		JWT:    jwtSvc,
	}
}

// CreateUser registers a directory entry and returns it.
func (e *Env) CreateUser(email, timezone string) *models.User {
	e.T.Helper()

	user, err := e.Users.Register(context.Background(), services.CreateUserInput{
		Email:       email,
		DisplayName: email,
		Timezone:    timezone,
	})
	require.NoError(e.T, err)
	return user
}

// Token issues an access token for user.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Email: user.Email})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.Serve(req, token)
}

// Serve executes a prepared request, adding the bearer token when set.
func (e *Env) Serve(req *http.Request, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
