package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/calsched/internal/services"
	"github.com/charlesng35/calsched/pkg/response"
)

// UserHandler exposes the authenticated caller's directory entry.
type UserHandler struct {
	users *services.UserDirectory
}

// NewUserHandler constructs a user handler.
func NewUserHandler(users *services.UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

// Me handles GET /api/me.
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	user, err := h.users.Get(requestContext(c), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=255"`
	Timezone    *string `json:"timezone"`
}

// UpdateMe handles PATCH /api/me. Omitted fields are left unchanged.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Update(requestContext(c), actor, services.UpdateUserInput{
		DisplayName: req.DisplayName,
		Timezone:    req.Timezone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}
