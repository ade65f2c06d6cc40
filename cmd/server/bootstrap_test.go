package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/calsched/internal/app"
	"github.com/charlesng35/calsched/internal/database"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	cfg := &app.Config{
		Server:   app.ServerConfig{Port: 0, RateLimit: 100},
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "calsched.sqlite")},
		Auth:     app.AuthConfig{JWT: app.JWTSettings{Issuer: "calsched", TTL: time.Minute}},
		Reminders: app.ReminderConfig{
			Enabled:  true,
			Schedule: "@every 1h",
			LeadTime: 10 * time.Minute,
		},
		Retention: app.RetentionConfig{CancelledEventsDays: 30, Schedule: "@daily"},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Features: app.FeatureConfig{
			Realtime:      app.RealtimeConfig{Enabled: true},
			Notifications: app.NotificationConfig{Enabled: true},
		},
	}
	return cfg
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	cfg := testConfig(t)
	generated, err := app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)

	stack, err := bootstrapRuntime(context.Background(), cfg, generated, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", path, rec.Body.String())
	}

	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolveJWTSecretReusesStoredValue(t *testing.T) {
	cfg := testConfig(t)
	db, err := database.Open(cfg.Database.ConnectionConfig())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { closeDatabase(db, zap.NewNop()) })

	first := &app.Config{}
	generated, err := app.ApplyRuntimeDefaults(first)
	require.NoError(t, err)
	require.NoError(t, resolveJWTSecret(context.Background(), first, db, generated, zap.NewNop()))

	second := &app.Config{}
	generated, err = app.ApplyRuntimeDefaults(second)
	require.NoError(t, err)
	require.NotEqual(t, first.Auth.JWT.Secret, second.Auth.JWT.Secret)
	require.NoError(t, resolveJWTSecret(context.Background(), second, db, generated, zap.NewNop()))
	require.Equal(t, first.Auth.JWT.Secret, second.Auth.JWT.Secret)

	explicit := &app.Config{Auth: app.AuthConfig{JWT: app.JWTSettings{Secret: "configured-secret"}}}
	generated, err = app.ApplyRuntimeDefaults(explicit)
	require.NoError(t, err)
	require.NoError(t, resolveJWTSecret(context.Background(), explicit, db, generated, zap.NewNop()))
	require.Equal(t, "configured-secret", explicit.Auth.JWT.Secret)
}

func TestLoadApplicationConfigRejectsMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.ErrorContains(t, err, "does not exist")
}

func TestLoadEnvFileIgnoresMissingFile(t *testing.T) {
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env")))
	require.NoError(t, loadEnvFile(""))
}
