package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/calsched/internal/middleware"
	"github.com/charlesng35/calsched/internal/services"
	apperrors "github.com/charlesng35/calsched/pkg/errors"
	"github.com/charlesng35/calsched/pkg/response"
)

// requestContext returns the context services run under for this request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// currentActor returns the authenticated actor or writes a 401.
func currentActor(c *gin.Context) (services.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok || actor.UserID == "" {
		response.Error(c, apperrors.ErrUnauthorized)
		return services.Actor{}, false
	}
	return actor, true
}

// pathID reads the :id route parameter shared by event, invitation and notification routes.
func pathID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, apperrors.ErrValidation.WithMessage("id is required"))
		return "", false
	}
	return id, true
}
