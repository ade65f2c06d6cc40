package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/calsched/internal/services"
	apperrors "github.com/charlesng35/calsched/pkg/errors"
	"github.com/charlesng35/calsched/pkg/response"
)

// EventHandler exposes event CRUD, range listing and iCalendar export.
type EventHandler struct {
	service *services.EventService
}

// NewEventHandler constructs an event handler.
func NewEventHandler(service *services.EventService) *EventHandler {
	return &EventHandler{service: service}
}

type createEventRequest struct {
	Title        string    `json:"title" validate:"required,max=255"`
	Description  string    `json:"description" validate:"max=10000"`
	Location     string    `json:"location" validate:"max=255"`
	Start        time.Time `json:"start" validate:"required"`
	End          time.Time `json:"end" validate:"required"`
	Timezone     string    `json:"timezone"`
	Participants []string  `json:"participants" validate:"max=200"`

	VideoConferenceLink string `json:"video_conference_link" validate:"omitempty,url,max=512"`
}

type updateEventRequest struct {
	Title               *string `json:"title" validate:"omitempty,max=255"`
	Description         *string `json:"description" validate:"omitempty,max=10000"`
	Location            *string `json:"location" validate:"omitempty,max=255"`
	VideoConferenceLink *string `json:"video_conference_link" validate:"omitempty,url,max=512"`
}

type updateEventTimeRequest struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

// Create handles POST /api/events.
func (h *EventHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req createEventRequest
	if !bindAndValidate(c, &req) {
		return
	}

	event, err := h.service.Create(requestContext(c), actor, services.CreateEventInput{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		Start:        req.Start,
		End:          req.End,
		Timezone:     req.Timezone,
		Participants: req.Participants,

		VideoConferenceLink: req.VideoConferenceLink,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, event)
}

// List handles GET /api/events?start=&end=&timezone=.
func (h *EventHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	start, err := parseTimeQuery(c, "start")
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		response.Error(c, err)
		return
	}

	listed, err := h.service.ListRange(requestContext(c), actor, start, end, c.Query("timezone"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, listed)
}

// Get handles GET /api/events/:id.
func (h *EventHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	event, err := h.service.Get(requestContext(c), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, event)
}

// Update handles PATCH /api/events/:id. Omitted fields are left unchanged.
func (h *EventHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateEventRequest
	if !bindAndValidate(c, &req) {
		return
	}

	event, err := h.service.UpdateDetails(requestContext(c), actor, id, services.UpdateEventInput{
		Title:               req.Title,
		Description:         req.Description,
		Location:            req.Location,
		VideoConferenceLink: req.VideoConferenceLink,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, event)
}

// UpdateTime handles PATCH /api/events/:id/time.
func (h *EventHandler) UpdateTime(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateEventTimeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	event, err := h.service.UpdateTime(requestContext(c), actor, id, req.Start, req.End)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, event)
}

// Cancel handles DELETE /api/events/:id. The event is kept as a tombstone.
func (h *EventHandler) Cancel(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	event, err := h.service.Cancel(requestContext(c), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, event)
}

// ExportICS handles GET /api/events/:id/ics.
func (h *EventHandler) ExportICS(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	export, err := h.service.ExportICS(requestContext(c), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, export.ContentType, export.Data)
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, apperrors.ErrValidation.WithMessage(key + " is required")
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperrors.ErrValidation.WithMessage(key + " must be an RFC 3339 timestamp")
	}
	return t, nil
}
