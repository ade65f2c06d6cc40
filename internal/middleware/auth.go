package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/calsched/internal/auth"
	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/services"
	apperrors "github.com/charlesng35/calsched/pkg/errors"
	"github.com/charlesng35/calsched/pkg/logger"
	"github.com/charlesng35/calsched/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxActorKey  = "actor"
)

// ActorResolver turns a token subject into the acting user.
type ActorResolver interface {
	Actor(ctx context.Context, userID string) (services.Actor, error)
}

// Auth enforces JWT authentication and resolves the caller to an active user.
func Auth(jwt *iauth.JWTService, actors ActorResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := iauth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		actor, err := actors.Actor(c.Request.Context(), claims.UserID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotAuthorized) {
				logger.WithModule("http").Warn("resolve actor", zap.String("user_id", claims.UserID), zap.Error(err))
			}
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, actor.UserID)
		c.Set(CtxActorKey, actor)

		c.Next()
	}
}

// ActorFromContext returns the actor resolved by Auth.
func ActorFromContext(c *gin.Context) (services.Actor, bool) {
	value, ok := c.Get(CtxActorKey)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := value.(services.Actor)
	return actor, ok
}
