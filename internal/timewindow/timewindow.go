// Package timewindow converts wall-clock calendar units in an IANA zone into UTC instant ranges.
//
// Offsets are always resolved at the wall-clock instant being converted, never at "now", so a
// day that contains a DST transition is 23 or 25 hours long while both boundaries still sit on
// local midnight.
package timewindow

import (
	"fmt"
	"strings"
	"time"

	// The engine must not depend on the host having a zoneinfo database.
	_ "time/tzdata"

	"github.com/charlesng35/calsched/internal/domain"
)

// ErrInvalidTimezone is returned for unknown or empty zone identifiers.
var ErrInvalidTimezone = domain.ErrInvalidTimezone

// Unit identifies a calendar unit.
type Unit string

const (
	Day   Unit = "day"
	Week  Unit = "week"
	Month Unit = "month"
)

// ParseUnit parses a unit name case-insensitively.
func ParseUnit(value string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(value))) {
	case Day:
		return Day, nil
	case Week:
		return Week, nil
	case Month:
		return Month, nil
	default:
		return "", fmt.Errorf("timewindow: unknown unit %q: %w", value, domain.ErrValidation)
	}
}

// ParseWeekday parses an English weekday name ("monday", "Sun", ...). An empty value yields Monday.
func ParseWeekday(value string) (time.Weekday, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return time.Monday, nil
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		name := strings.ToLower(day.String())
		if value == name || value == name[:3] {
			return day, nil
		}
	}
	return time.Monday, fmt.Errorf("timewindow: unknown weekday %q: %w", value, domain.ErrValidation)
}

// Date is a civil calendar date without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("timewindow: parse date %q: %w", value, domain.ErrValidation)
	}
	return DateOf(t), nil
}

// DateOf returns the civil date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, time.UTC))
}

// Weekday reports the day of the week of d.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Range is a half-open UTC interval [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Contains reports whether t lies within [Start, End).
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// LoadZone resolves an IANA identifier. "Local" and empty identifiers are rejected because they
// do not name a zone independent of the host.
func LoadZone(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return nil, fmt.Errorf("timewindow: zone %q: %w", tz, ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timewindow: zone %q: %w", tz, ErrInvalidTimezone)
	}
	return loc, nil
}

// IsValidTimezone reports whether tz names a loadable IANA zone.
func IsValidTimezone(tz string) bool {
	_, err := LoadZone(tz)
	return err == nil
}

// ResolveTimezone returns tz when valid, otherwise fallback. Callers own the fallback policy.
func ResolveTimezone(tz, fallback string) string {
	if IsValidTimezone(tz) {
		return strings.TrimSpace(tz)
	}
	return fallback
}

// OffsetAt formats the UTC offset of zone tz at instant t, e.g. "-07:00".
func OffsetAt(t time.Time, tz string) (string, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format("-07:00"), nil
}

// DayBounds returns the UTC range covering date d in zone tz.
func DayBounds(d Date, tz string) (Range, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return Range{}, err
	}
	return span(d, d.AddDays(1), loc), nil
}

// WeekBounds returns the UTC range of the week containing d, starting on weekStart.
func WeekBounds(d Date, tz string, weekStart time.Weekday) (Range, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return Range{}, err
	}
	if weekStart < time.Sunday || weekStart > time.Saturday {
		return Range{}, fmt.Errorf("timewindow: week start %d: %w", weekStart, domain.ErrValidation)
	}
	back := (int(d.Weekday()) - int(weekStart) + 7) % 7
	first := d.AddDays(-back)
	return span(first, first.AddDays(7), loc), nil
}

// MonthBounds returns the UTC range of the month containing d.
func MonthBounds(d Date, tz string) (Range, error) {
	loc, err := LoadZone(tz)
	if err != nil {
		return Range{}, err
	}
	first := Date{Year: d.Year, Month: d.Month, Day: 1}
	next := DateOf(time.Date(d.Year, d.Month+1, 1, 12, 0, 0, 0, time.UTC))
	return span(first, next, loc), nil
}

// Compute dispatches to the bounds function for unit.
func Compute(unit Unit, d Date, tz string, weekStart time.Weekday) (Range, error) {
	switch unit {
	case Day:
		return DayBounds(d, tz)
	case Week:
		return WeekBounds(d, tz, weekStart)
	case Month:
		return MonthBounds(d, tz)
	default:
		return Range{}, fmt.Errorf("timewindow: unknown unit %q: %w", unit, domain.ErrValidation)
	}
}

func span(from, to Date, loc *time.Location) Range {
	return Range{
		Start: startOfDay(from, loc).UTC(),
		End:   startOfDay(to, loc).UTC(),
	}
}

// startOfDay returns the first instant whose wall-clock date in loc is d. Zones that skip
// midnight (transitions at 00:00) start the day at the first existing wall time. A date the zone
// skips entirely starts, and ends, at the transition that skipped it.
func startOfDay(d Date, loc *time.Location) time.Time {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	for i := 0; i < 12 && DateOf(t.In(loc)) != d; i++ {
		if before(DateOf(t.In(loc)), d) {
			t = t.Add(15 * time.Minute)
		} else {
			t = t.Add(-15 * time.Minute)
		}
	}
	if DateOf(t.In(loc)) != d {
		return firstInstantFrom(d, loc)
	}
	// Step back while the previous quarter hour still belongs to d.
	for i := 0; i < 8; i++ {
		prev := t.Add(-15 * time.Minute)
		if DateOf(prev.In(loc)) != d {
			break
		}
		t = prev
	}
	return t
}

// firstInstantFrom bisects for the first whole second whose wall-clock date in loc is not
// before d. UTC offsets stay within 26 hours of UTC midnight on d.
func firstInstantFrom(d Date, loc *time.Location) time.Time {
	midnight := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	lo, hi := midnight.Add(-26*time.Hour), midnight.Add(26*time.Hour)
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if before(DateOf(mid.In(loc)), d) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.In(loc)
}

func before(a, b Date) bool {
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	if a.Month != b.Month {
		return a.Month < b.Month
	}
	return a.Day < b.Day
}
