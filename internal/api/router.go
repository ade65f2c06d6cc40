package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/calsched/internal/app"
	iauth "github.com/charlesng35/calsched/internal/auth"
	"github.com/charlesng35/calsched/internal/handlers"
	"github.com/charlesng35/calsched/internal/middleware"
	"github.com/charlesng35/calsched/internal/monitoring"
	"github.com/charlesng35/calsched/internal/realtime"
	"github.com/charlesng35/calsched/internal/services"
)

// Dependencies bundles everything the router wires into handlers.
type Dependencies struct {
	Config        *app.Config
	JWT           *iauth.JWTService
	Users         *services.UserDirectory
	Calendar      *services.CalendarService
	Availability  *services.AvailabilityService
	Events        *services.EventService
	Invitations   *services.InvitationService
	Notifications *services.NotificationService
	// Hub is optional; /ws is not mounted without it.
	Hub *realtime.Hub
	// Monitoring is optional; health and metrics endpoints report disabled without it.
	Monitoring *monitoring.Module
	// RateStore is optional; rate limiting is skipped without it.
	RateStore middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("api: config must be provided")
	case d.JWT == nil:
		return errors.New("api: jwt service must be provided")
	case d.Users == nil:
		return errors.New("api: user directory must be provided")
	case d.Availability == nil:
		return errors.New("api: availability service must be provided")
	case d.Events == nil:
		return errors.New("api: event service must be provided")
	case d.Invitations == nil:
		return errors.New("api: invitation service must be provided")
	case d.Notifications == nil:
		return errors.New("api: notification service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	if deps.RateStore != nil && cfg.Server.RateLimit > 0 {
		r.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit, time.Minute))
	}

	registerHealthRoutes(r, cfg, deps.Monitoring)
	registerMetricsRoute(r, cfg, deps.Monitoring)

	if deps.Hub != nil && cfg.Features.Realtime.Enabled {
		rt := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, deps.Users)
		r.GET("/ws", rt.Stream)
		r.GET("/ws/:stream", rt.Stream)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT, deps.Users))

	users := handlers.NewUserHandler(deps.Users)
	api.GET("/me", users.Me)
	api.PATCH("/me", users.UpdateMe)

	calendar := handlers.NewCalendarHandler(deps.Calendar)
	api.GET("/calendar/boundaries", calendar.Boundaries)

	registerAvailabilityRoutes(api, handlers.NewAvailabilityHandler(deps.Availability))
	registerEventRoutes(api, handlers.NewEventHandler(deps.Events), handlers.NewInvitationHandler(deps.Invitations))
	registerInvitationRoutes(api, handlers.NewInvitationHandler(deps.Invitations))
	if cfg.Features.Notifications.Enabled {
		registerNotificationRoutes(api, handlers.NewNotificationHandler(deps.Notifications))
	}
	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(deps.Monitoring, cfg))

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if mon == nil || !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(mon.Handler()))
}
