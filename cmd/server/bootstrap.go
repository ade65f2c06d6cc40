package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/calsched/internal/api"
	"github.com/charlesng35/calsched/internal/app"
	"github.com/charlesng35/calsched/internal/app/maintenance"
	iauth "github.com/charlesng35/calsched/internal/auth"
	"github.com/charlesng35/calsched/internal/availability"
	"github.com/charlesng35/calsched/internal/conference"
	"github.com/charlesng35/calsched/internal/database"
	"github.com/charlesng35/calsched/internal/middleware"
	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/internal/monitoring/checks"
	"github.com/charlesng35/calsched/internal/notify"
	"github.com/charlesng35/calsched/internal/realtime"
	"github.com/charlesng35/calsched/internal/repository"
	"github.com/charlesng35/calsched/internal/services"
	"github.com/charlesng35/calsched/pkg/logger"
	"github.com/charlesng35/calsched/pkg/mail"
)

const (
	rateStoreSweep      = time.Minute
	healthProbeTimeout  = 2 * time.Second
	maintenanceMaxAge   = 25 * time.Hour
	generatedJWTSetting = "auth.jwt.secret"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Store      *repository.GormStore
	Monitoring *monitoring.Module
	Hub        *realtime.Hub
	Cleaner    *maintenance.Cleaner
	RateStore  *middleware.MemoryRateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, services, background jobs and the HTTP router.
// generated lists the secrets ApplyRuntimeDefaults invented for this process.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if stack.Store, err = repository.NewGormStore(stack.DB); err != nil {
		return nil, err
	}

	if err := resolveJWTSecret(ctx, cfg, stack.DB, generated, log); err != nil {
		return nil, err
	}
	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	if stack.Monitoring, err = monitoring.NewModule(monitoring.Options{}); err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	if cfg.Features.Realtime.Enabled {
		stack.Hub = realtime.NewHub()
	}
	registerHealthChecks(stack)

	publisher, err := buildPublisher(cfg, stack)
	if err != nil {
		return nil, err
	}

	searcherCfg, err := cfg.Scheduling.SearcherConfig()
	if err != nil {
		return nil, err
	}

	users, err := services.NewUserDirectory(stack.Store)
	if err != nil {
		return nil, err
	}
	availabilitySvc, err := services.NewAvailabilityService(stack.Store, availability.NewSearcher(searcherCfg),
		services.WithAvailabilityMaxSlots(cfg.Scheduling.MaxSlots))
	if err != nil {
		return nil, err
	}
	eventOpts := []services.EventOption{services.WithEventPublisher(publisher)}
	if base := strings.TrimSpace(cfg.Scheduling.MeetingBaseURL); base != "" {
		links, err := conference.NewGenerator(base)
		if err != nil {
			return nil, fmt.Errorf("scheduling.meeting_base_url: %w", err)
		}
		eventOpts = append(eventOpts, services.WithMeetingLinks(links))
	}
	events, err := services.NewEventService(stack.Store, eventOpts...)
	if err != nil {
		return nil, err
	}
	invitations, err := services.NewInvitationService(stack.Store, services.WithInvitationPublisher(publisher))
	if err != nil {
		return nil, err
	}
	notifications, err := services.NewNotificationService(stack.Store)
	if err != nil {
		return nil, err
	}

	var reminders maintenance.ReminderSender
	if cfg.Reminders.Enabled {
		reminders, err = services.NewReminderService(stack.Store,
			services.WithReminderLead(cfg.Reminders.LeadTime),
			services.WithReminderPublisher(publisher))
		if err != nil {
			return nil, err
		}
	}

	stack.Cleaner = maintenance.NewCleaner(reminders, stack.Store,
		maintenance.WithRetention(cfg.Retention.RetentionWindow()),
		maintenance.WithReminderSchedule(cfg.Reminders.Schedule),
		maintenance.WithPurgeSchedule(cfg.Retention.Schedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = middleware.NewMemoryRateStore(rateStoreSweep)

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:        cfg,
		JWT:           jwtSvc,
		Users:         users,
		Calendar:      services.NewCalendarService(),
		Availability:  availabilitySvc,
		Events:        events,
		Invitations:   invitations,
		Notifications: notifications,
		Hub:           stack.Hub,
		Monitoring:    stack.Monitoring,
		RateStore:     stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// resolveJWTSecret keeps tokens valid across restarts: a secret generated for this process is
// replaced by the one already stored, or stored when none exists yet.
func resolveJWTSecret(ctx context.Context, cfg *app.Config, db *gorm.DB, generated map[string]bool, log *zap.Logger) error {
	if !generated[generatedJWTSetting] {
		return nil
	}
	secret, err := database.EnsureJWTSecret(ctx, db, cfg.Auth.JWT.Secret)
	if err != nil {
		return fmt.Errorf("resolve jwt secret: %w", err)
	}
	if secret == cfg.Auth.JWT.Secret {
		log.Info("generated runtime secret", zap.String("key", generatedJWTSetting))
	}
	cfg.Auth.JWT.Secret = secret
	return nil
}

func registerHealthChecks(stack *runtimeStack) {
	health := stack.Monitoring.Health()
	health.RegisterLiveness(checks.Database(stack.Store, healthProbeTimeout))
	health.RegisterReadiness(checks.Database(stack.Store, healthProbeTimeout))
	health.RegisterReadiness(checks.Maintenance(maintenanceMaxAge))
	if stack.Hub != nil {
		health.RegisterReadiness(checks.Realtime(stack.Hub))
	}
}

func buildPublisher(cfg *app.Config, stack *runtimeStack) (notify.Publisher, error) {
	var (
		publishers notify.Multi
		hub        notify.Broadcaster
	)

	if stack.Hub != nil {
		hub = stack.Hub
		publishers = append(publishers, notify.Named("realtime", notify.NewRealtimePublisher(hub)))
	}
	if cfg.Features.Notifications.Enabled {
		publishers = append(publishers, notify.Named("store", notify.NewStorePublisher(stack.Store, hub)))
	}
	if cfg.Email.SMTP.Enabled {
		settings := cfg.Email.SMTPSettings()
		mailer, err := mail.NewSMTPMailer(settings)
		if err != nil {
			return nil, fmt.Errorf("initialise smtp mailer: %w", err)
		}
		publishers = append(publishers, notify.Named("mail", notify.NewMailPublisher(mailer, settings.From)))
	}

	if len(publishers) == 0 {
		return notify.Nop, nil
	}
	return publishers, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}
	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.RateStore != nil {
		s.RateStore.Close()
	}
	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
