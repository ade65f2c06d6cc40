// Package availability finds meeting slots where every participant is free.
//
// The package is pure: callers load busy intervals, build an Index and hand it to a Searcher.
// Candidate evaluation is sequential, so identical inputs always produce identical rankings.
package availability

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/timewindow"
)

const (
	DefaultStep          = 15 * time.Minute
	DefaultMaxDuration   = 8 * time.Hour
	DefaultMaxCandidates = 4032
	DefaultBonus         = 20.0
	DefaultPenaltyPerHr  = 0.5
)

// Config tunes candidate generation and scoring.
type Config struct {
	Step          time.Duration
	MaxCandidates int
	MaxDuration   time.Duration

	// WorkingHoursStart and WorkingHoursEnd are minutes after local midnight.
	WorkingHoursStart int
	WorkingHoursEnd   int
	WorkingDays       []time.Weekday
	WorkingHoursBonus float64

	// PenaltyPerHour is subtracted for every hour a candidate starts after the window start.
	PenaltyPerHour float64

	SuggestionsPerParticipant int
	SuggestionLookahead       time.Duration
}

// DefaultConfig returns the stock scheduling configuration.
func DefaultConfig() Config {
	return Config{
		Step:                      DefaultStep,
		MaxCandidates:             DefaultMaxCandidates,
		MaxDuration:               DefaultMaxDuration,
		WorkingHoursStart:         9 * 60,
		WorkingHoursEnd:           17 * 60,
		WorkingDays:               []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		WorkingHoursBonus:         DefaultBonus,
		PenaltyPerHour:            DefaultPenaltyPerHr,
		SuggestionsPerParticipant: 3,
		SuggestionLookahead:       72 * time.Hour,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Step <= 0 {
		c.Step = def.Step
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = def.MaxCandidates
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = def.MaxDuration
	}
	if c.WorkingHoursEnd <= c.WorkingHoursStart {
		c.WorkingHoursStart, c.WorkingHoursEnd = def.WorkingHoursStart, def.WorkingHoursEnd
	}
	if c.WorkingDays == nil {
		c.WorkingDays = def.WorkingDays
	}
	if c.WorkingHoursBonus < 0 || c.WorkingHoursBonus > 100 {
		c.WorkingHoursBonus = def.WorkingHoursBonus
	}
	if c.PenaltyPerHour < 0 {
		c.PenaltyPerHour = def.PenaltyPerHour
	}
	if c.SuggestionsPerParticipant < 0 {
		c.SuggestionsPerParticipant = 0
	}
	if c.SuggestionLookahead <= 0 {
		c.SuggestionLookahead = def.SuggestionLookahead
	}
	return c
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("availability: clock %q: %w", value, domain.ErrValidation)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Participant is a resolved request participant.
type Participant struct {
	Ref      string
	Timezone string
	Found    bool
}

// Request describes a slot search.
type Request struct {
	Participants []Participant
	WindowStart  time.Time
	WindowEnd    time.Time
	Duration     time.Duration
	// Step overrides the configured step when positive.
	Step time.Duration
	// MaxCandidates overrides the configured bound when positive. It never exceeds the configured bound.
	MaxCandidates int
}

// Slot is a ranked admissible candidate.
type Slot struct {
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	Score              float64   `json:"score"`
	WithinWorkingHours bool      `json:"within_working_hours"`
}

// Searcher evaluates slot requests against a conflict index.
type Searcher struct {
	cfg Config
}

// NewSearcher constructs a Searcher. Zero fields in cfg fall back to DefaultConfig values.
func NewSearcher(cfg Config) *Searcher {
	return &Searcher{cfg: cfg.normalized()}
}

// Config exposes the effective configuration.
func (s *Searcher) Config() Config {
	return s.cfg
}

// Search validates req and returns the lazily evaluated slot sequence.
func (s *Searcher) Search(busy BusyChecker, req Request) (*SlotSequence, error) {
	participants, err := dedupe(req.Participants)
	if err != nil {
		return nil, err
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() || !req.WindowStart.Before(req.WindowEnd) {
		return nil, fmt.Errorf("availability: window start must precede window end: %w", domain.ErrValidation)
	}
	if req.Duration <= 0 {
		return nil, fmt.Errorf("availability: duration must be positive: %w", domain.ErrValidation)
	}
	if req.Duration > s.cfg.MaxDuration {
		return nil, fmt.Errorf("availability: duration %s exceeds %s: %w", req.Duration, s.cfg.MaxDuration, domain.ErrValidation)
	}
	if req.Step < 0 {
		return nil, fmt.Errorf("availability: step must be positive: %w", domain.ErrValidation)
	}

	step := s.cfg.Step
	if req.Step > 0 {
		step = req.Step
	}
	limit := s.cfg.MaxCandidates
	if req.MaxCandidates > 0 && req.MaxCandidates < limit {
		limit = req.MaxCandidates
	}

	total := 0
	if span := req.WindowEnd.Sub(req.WindowStart) - req.Duration; span >= 0 {
		total = int(span/step) + 1
	}

	seq := &SlotSequence{
		busy:      busy,
		start:     req.WindowStart.UTC(),
		duration:  req.Duration,
		step:      step,
		examined:  min(total, limit),
		truncated: total > limit,
		zone:      majorityZone(participants),
		cfg:       s.cfg,
	}
	for _, p := range participants {
		if p.Found {
			seq.checkRefs = append(seq.checkRefs, p.Ref)
		} else {
			seq.unknownRefs = append(seq.unknownRefs, p.Ref)
		}
	}
	return seq, nil
}

// SlotSequence is a finite ranked result. Candidates are evaluated on first iteration and the
// ranking is reused by later iterations.
type SlotSequence struct {
	busy      BusyChecker
	start     time.Time
	duration  time.Duration
	step      time.Duration
	examined  int
	truncated bool
	zone      *time.Location
	cfg       Config

	checkRefs   []string
	unknownRefs []string

	once   sync.Once
	ranked []Slot
}

// All yields slots best first. It may be ranged over repeatedly.
func (q *SlotSequence) All() iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		for _, slot := range q.rank() {
			if !yield(slot) {
				return
			}
		}
	}
}

// Top returns at most n of the best slots.
func (q *SlotSequence) Top(n int) []Slot {
	if n <= 0 {
		return []Slot{}
	}
	out := make([]Slot, 0, n)
	for slot := range q.All() {
		out = append(out, slot)
		if len(out) == n {
			break
		}
	}
	return out
}

// Len reports the number of admissible slots.
func (q *SlotSequence) Len() int {
	return len(q.rank())
}

// Unknown lists participants that could not be resolved. They do not constrain the search.
func (q *SlotSequence) Unknown() []string {
	return slices.Clone(q.unknownRefs)
}

// Examined reports how many candidates are evaluated.
func (q *SlotSequence) Examined() int {
	return q.examined
}

// Truncated reports whether the candidate bound cut the window short.
func (q *SlotSequence) Truncated() bool {
	return q.truncated
}

// Timezone names the zone used for the working-hours classification.
func (q *SlotSequence) Timezone() string {
	return q.zone.String()
}

func (q *SlotSequence) rank() []Slot {
	q.once.Do(func() {
		slots := make([]Slot, 0)
		for k := 0; k < q.examined; k++ {
			start := q.start.Add(time.Duration(k) * q.step)
			end := start.Add(q.duration)
			if q.anyBusy(start, end) {
				continue
			}
			inHours := q.withinWorkingHours(start, end)
			slots = append(slots, Slot{
				Start:              start,
				End:                end,
				Score:              q.score(start, inHours),
				WithinWorkingHours: inHours,
			})
		}
		sort.SliceStable(slots, func(i, j int) bool {
			if slots[i].Score != slots[j].Score {
				return slots[i].Score > slots[j].Score
			}
			return slots[i].Start.Before(slots[j].Start)
		})
		q.ranked = slots
	})
	return q.ranked
}

func (q *SlotSequence) anyBusy(start, end time.Time) bool {
	if q.busy == nil {
		return false
	}
	for _, ref := range q.checkRefs {
		if q.busy.IsBusy(ref, start, end) {
			return true
		}
	}
	return false
}

// score is (100-bonus) minus a capped linear proximity penalty, plus the bonus for working hours.
func (q *SlotSequence) score(start time.Time, inHours bool) float64 {
	base := 100 - q.cfg.WorkingHoursBonus
	penalty := math.Min(base, start.Sub(q.start).Hours()*q.cfg.PenaltyPerHour)
	score := base - penalty
	if inHours {
		score += q.cfg.WorkingHoursBonus
	}
	return math.Round(score*100) / 100
}

func (q *SlotSequence) withinWorkingHours(start, end time.Time) bool {
	ls, le := start.In(q.zone), end.In(q.zone)
	if !slices.Contains(q.cfg.WorkingDays, ls.Weekday()) {
		return false
	}
	sy, sm, sd := ls.Date()
	ey, em, ed := le.Date()
	if sy != ey || sm != em || sd != ed {
		return false
	}
	from := ls.Hour()*60 + ls.Minute()
	to := le.Hour()*60 + le.Minute()
	return from >= q.cfg.WorkingHoursStart && to <= q.cfg.WorkingHoursEnd
}

func dedupe(in []Participant) ([]Participant, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("availability: at least one participant is required: %w", domain.ErrValidation)
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Participant, 0, len(in))
	for _, p := range in {
		p.Ref = strings.TrimSpace(p.Ref)
		if p.Ref == "" {
			return nil, fmt.Errorf("availability: empty participant reference: %w", domain.ErrValidation)
		}
		if _, ok := seen[p.Ref]; ok {
			continue
		}
		seen[p.Ref] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// majorityZone picks the most common zone among found participants. Ties resolve to the
// lexically smallest name; no found participants or unloadable zones resolve to UTC.
func majorityZone(participants []Participant) *time.Location {
	counts := make(map[string]int)
	for _, p := range participants {
		if !p.Found {
			continue
		}
		tz := strings.TrimSpace(p.Timezone)
		if tz == "" {
			tz = "UTC"
		}
		counts[tz]++
	}
	best, bestCount := "", 0
	for tz, n := range counts {
		if n > bestCount || (n == bestCount && tz < best) {
			best, bestCount = tz, n
		}
	}
	if best == "" {
		return time.UTC
	}
	loc, err := timewindow.LoadZone(best)
	if err != nil {
		return time.UTC
	}
	return loc
}
