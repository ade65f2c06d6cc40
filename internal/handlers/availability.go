package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/calsched/internal/services"
	"github.com/charlesng35/calsched/pkg/response"
)

// AvailabilityHandler exposes availability checks, slot search and collaborator suggestions.
type AvailabilityHandler struct {
	service *services.AvailabilityService
}

// NewAvailabilityHandler constructs an availability handler.
func NewAvailabilityHandler(service *services.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

type checkAvailabilityRequest struct {
	Participants []string  `json:"participants" validate:"required,min=1,max=100"`
	Start        time.Time `json:"start" validate:"required"`
	End          time.Time `json:"end" validate:"required"`
}

type findSlotsRequest struct {
	Participants    []string  `json:"participants" validate:"required,min=1,max=100"`
	WindowStart     time.Time `json:"window_start" validate:"required"`
	WindowEnd       time.Time `json:"window_end" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1,max=480"`
	StepMinutes     int       `json:"step_minutes" validate:"omitempty,min=1,max=1440"`
	Limit           int       `json:"limit" validate:"omitempty,min=1"`
}

// Check handles POST /api/availability/check.
func (h *AvailabilityHandler) Check(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}
	var req checkAvailabilityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	statuses, err := h.service.CheckAvailability(requestContext(c), services.CheckInput{
		Participants: req.Participants,
		Start:        req.Start,
		End:          req.End,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"participants": statuses})
}

// Slots handles POST /api/availability/slots. An empty slot list is a successful answer.
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}
	var req findSlotsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.service.FindMeetingSlots(requestContext(c), services.FindSlotsInput{
		Participants: req.Participants,
		WindowStart:  req.WindowStart,
		WindowEnd:    req.WindowEnd,
		Duration:     time.Duration(req.DurationMinutes) * time.Minute,
		Step:         time.Duration(req.StepMinutes) * time.Minute,
		Limit:        req.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Collaborators handles GET /api/availability/collaborators?limit=.
func (h *AvailabilityHandler) Collaborators(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	collaborators, err := h.service.SuggestCollaborators(requestContext(c), actor, parseIntQuery(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, collaborators, &response.Meta{Total: len(collaborators)})
}
