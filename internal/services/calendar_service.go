package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/calsched/internal/timewindow"
)

// Boundaries is a calendar unit resolved to UTC instants, with the local offsets that applied
// at each boundary.
type Boundaries struct {
	Unit        timewindow.Unit `json:"unit"`
	Date        string          `json:"date"`
	Timezone    string          `json:"timezone"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	LocalStart  string          `json:"local_start"`
	LocalEnd    string          `json:"local_end"`
	StartOffset string          `json:"start_offset"`
	EndOffset   string          `json:"end_offset"`
	Hours       float64         `json:"hours"`
}

// CalendarService answers wall-clock boundary queries.
type CalendarService struct{}

// NewCalendarService constructs a CalendarService.
func NewCalendarService() *CalendarService {
	return &CalendarService{}
}

// ComputeBoundaries returns the UTC range of the unit containing date in tz.
func (s *CalendarService) ComputeBoundaries(unit timewindow.Unit, date timewindow.Date, tz string, weekStart time.Weekday) (*Boundaries, error) {
	tz = strings.TrimSpace(tz)
	loc, err := timewindow.LoadZone(tz)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	r, err := timewindow.Compute(unit, date, tz, weekStart)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}

	localStart, localEnd := r.Start.In(loc), r.End.In(loc)
	return &Boundaries{
		Unit:        unit,
		Date:        date.String(),
		Timezone:    tz,
		Start:       r.Start,
		End:         r.End,
		LocalStart:  localStart.Format(time.RFC3339),
		LocalEnd:    localEnd.Format(time.RFC3339),
		StartOffset: localStart.Format("-07:00"),
		EndOffset:   localEnd.Format("-07:00"),
		Hours:       r.Duration().Hours(),
	}, nil
}
