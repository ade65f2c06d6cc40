package availability

import (
	"fmt"
	"time"

	"github.com/charlesng35/calsched/internal/domain"
)

// CheckParticipant is a participant in an availability check.
type CheckParticipant struct {
	Participant
	DisplayName string
}

// ParticipantStatus is the per-participant result of a check. Unknown participants are
// reported with UserFound false and are never available.
type ParticipantStatus struct {
	Participant    string         `json:"participant"`
	DisplayName    string         `json:"display_name"`
	UserFound      bool           `json:"user_found"`
	IsAvailable    bool           `json:"is_available"`
	Conflicts      []BusyInterval `json:"conflicts"`
	SuggestedSlots []Slot         `json:"suggested_slots"`
}

// Check reports whether each participant is free over [start, end). Busy participants get up to
// SuggestionsPerParticipant alternative slots of the same length within the lookahead window.
func (s *Searcher) Check(idx *Index, participants []CheckParticipant, start, end time.Time) ([]ParticipantStatus, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("availability: at least one participant is required: %w", domain.ErrValidation)
	}
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, fmt.Errorf("availability: start must precede end: %w", domain.ErrValidation)
	}

	out := make([]ParticipantStatus, 0, len(participants))
	seen := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if _, dup := seen[p.Ref]; dup {
			continue
		}
		seen[p.Ref] = struct{}{}

		status := ParticipantStatus{
			Participant:    p.Ref,
			DisplayName:    p.DisplayName,
			UserFound:      p.Found,
			Conflicts:      []BusyInterval{},
			SuggestedSlots: []Slot{},
		}
		if status.DisplayName == "" {
			status.DisplayName = p.Ref
		}
		if !p.Found {
			out = append(out, status)
			continue
		}

		if conflicts := idx.Conflicts(p.Ref, start, end); len(conflicts) > 0 {
			status.Conflicts = conflicts
			status.SuggestedSlots = s.suggest(idx, p.Participant, start, end.Sub(start))
		} else {
			status.IsAvailable = true
		}
		out = append(out, status)
	}
	return out, nil
}

func (s *Searcher) suggest(idx *Index, p Participant, from time.Time, duration time.Duration) []Slot {
	if s.cfg.SuggestionsPerParticipant == 0 || duration > s.cfg.MaxDuration {
		return []Slot{}
	}
	seq, err := s.Search(idx, Request{
		Participants: []Participant{p},
		WindowStart:  from,
		WindowEnd:    from.Add(s.cfg.SuggestionLookahead),
		Duration:     duration,
	})
	if err != nil {
		return []Slot{}
	}
	return seq.Top(s.cfg.SuggestionsPerParticipant)
}
