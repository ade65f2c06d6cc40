package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/middleware"
	apperrors "github.com/charlesng35/calsched/pkg/errors"
	"github.com/charlesng35/calsched/pkg/logger"
	"github.com/charlesng35/calsched/pkg/response"
)

// translateError maps domain sentinels onto API errors. The wrapped message of client errors
// is surfaced; anything unrecognised becomes a 500 with the cause kept for logging.
func translateError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var base *apperrors.AppError
	switch {
	case errors.Is(err, domain.ErrInvalidTimezone):
		base = apperrors.ErrInvalidTimezone
	case errors.Is(err, domain.ErrNotAuthorized):
		base = apperrors.ErrNotAuthorized
	case errors.Is(err, domain.ErrNotFound):
		base = apperrors.ErrNotFound
	case errors.Is(err, domain.ErrInvalidStateTransition):
		base = apperrors.ErrInvalidStateTransition
	case errors.Is(err, domain.ErrConflict):
		base = apperrors.ErrConflict
	case errors.Is(err, domain.ErrValidation):
		base = apperrors.ErrValidation
	default:
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return base.WithMessage(err.Error()).WithInternal(err)
}

// respondError writes the translated error and logs server-side failures.
func respondError(c *gin.Context, err error) {
	appErr := translateError(err)
	if appErr.StatusCode >= 500 {
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middleware.RequestIDHeader)),
			zap.Error(err),
		)
	}
	response.Error(c, appErr)
}
