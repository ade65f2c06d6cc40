package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the calsched backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Reminders  ReminderConfig   `mapstructure:"reminders"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Email      EmailConfig      `mapstructure:"email"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Features   FeatureConfig    `mapstructure:"features"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	LogLevel    string   `mapstructure:"log_level"`
	LogEncoding string   `mapstructure:"log_encoding"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	RateLimit   int      `mapstructure:"rate_limit"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SchedulingConfig tunes slot search and scoring.
type SchedulingConfig struct {
	SlotStep                  time.Duration `mapstructure:"slot_step"`
	MaxCandidates             int           `mapstructure:"max_candidates"`
	MaxDuration               time.Duration `mapstructure:"max_duration"`
	WorkingHoursStart         string        `mapstructure:"working_hours_start"`
	WorkingHoursEnd           string        `mapstructure:"working_hours_end"`
	WorkingHoursBonus         float64       `mapstructure:"working_hours_bonus"`
	PenaltyPerHour            float64       `mapstructure:"penalty_per_hour"`
	SuggestionsPerParticipant int           `mapstructure:"suggestions_per_participant"`
	Lookahead                 time.Duration `mapstructure:"lookahead"`
	MaxSlots                  int           `mapstructure:"max_slots"`
	// MeetingBaseURL prefixes generated video meeting links. Empty disables generation.
	MeetingBaseURL string `mapstructure:"meeting_base_url"`
}

// ReminderConfig controls the pending-invitation reminder job.
type ReminderConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	LeadTime time.Duration `mapstructure:"lead_time"`
}

// RetentionConfig controls how long cancelled events are kept.
type RetentionConfig struct {
	CancelledEventsDays int    `mapstructure:"cancelled_events_days"`
	Schedule            string `mapstructure:"schedule"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FeatureConfig toggles optional features.
type FeatureConfig struct {
	Realtime      RealtimeConfig     `mapstructure:"realtime"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// RealtimeConfig toggles the websocket push endpoint.
type RealtimeConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// NotificationConfig toggles the stored notification inbox.
type NotificationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CALSCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_encoding", "json")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit", 120)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/calsched.sqlite")

	v.SetDefault("auth.jwt.issuer", "calsched")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("scheduling.slot_step", "15m")
	v.SetDefault("scheduling.max_candidates", 4032)
	v.SetDefault("scheduling.max_duration", "8h")
	v.SetDefault("scheduling.working_hours_start", "09:00")
	v.SetDefault("scheduling.working_hours_end", "17:00")
	v.SetDefault("scheduling.working_hours_bonus", 20.0)
	v.SetDefault("scheduling.penalty_per_hour", 0.5)
	v.SetDefault("scheduling.suggestions_per_participant", 3)
	v.SetDefault("scheduling.lookahead", "72h")
	v.SetDefault("scheduling.max_slots", 50)
	v.SetDefault("scheduling.meeting_base_url", "https://meet.jit.si/")

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.schedule", "@every 1m")
	v.SetDefault("reminders.lead_time", "10m")

	v.SetDefault("retention.cancelled_events_days", 30)
	v.SetDefault("retention.schedule", "@daily")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("features.realtime.enabled", true)
	v.SetDefault("features.notifications.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
