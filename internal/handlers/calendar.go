package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/calsched/internal/services"
	"github.com/charlesng35/calsched/internal/timewindow"
	"github.com/charlesng35/calsched/pkg/response"
)

// CalendarHandler answers wall-clock boundary queries.
type CalendarHandler struct {
	service *services.CalendarService
}

// NewCalendarHandler constructs a calendar handler.
func NewCalendarHandler(service *services.CalendarService) *CalendarHandler {
	if service == nil {
		service = services.NewCalendarService()
	}
	return &CalendarHandler{service: service}
}

// Boundaries handles GET /api/calendar/boundaries?unit=&date=&timezone=&week_start=.
func (h *CalendarHandler) Boundaries(c *gin.Context) {
	unit, err := timewindow.ParseUnit(c.DefaultQuery("unit", string(timewindow.Day)))
	if err != nil {
		respondError(c, err)
		return
	}
	date, err := timewindow.ParseDate(c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	weekStart, err := timewindow.ParseWeekday(c.Query("week_start"))
	if err != nil {
		respondError(c, err)
		return
	}

	bounds, err := h.service.ComputeBoundaries(unit, date, c.Query("timezone"), weekStart)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, bounds)
}
