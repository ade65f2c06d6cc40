package availability

import (
	"sort"
	"time"
)

// BusyInterval is a half-open range [Start, End) during which a participant is unavailable.
type BusyInterval struct {
	Participant string    `json:"participant"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	EventID     string    `json:"event_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Location    string    `json:"location,omitempty"`
}

// Overlaps reports whether the interval shares a strictly positive span with [start, end).
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// BusyChecker answers conflict queries for a participant.
type BusyChecker interface {
	IsBusy(participant string, start, end time.Time) bool
}

// Index is an immutable per-participant conflict index.
type Index struct {
	entries map[string]*participantIntervals
}

type participantIntervals struct {
	intervals []BusyInterval // sorted by Start
	maxEnd    []time.Time    // maxEnd[i] is the latest End among intervals[:i+1]
}

// NewIndex builds an index from busy intervals. Empty or inverted intervals are ignored.
func NewIndex(intervals []BusyInterval) *Index {
	grouped := make(map[string][]BusyInterval)
	for _, iv := range intervals {
		if !iv.Start.Before(iv.End) {
			continue
		}
		grouped[iv.Participant] = append(grouped[iv.Participant], iv)
	}

	idx := &Index{entries: make(map[string]*participantIntervals, len(grouped))}
	for participant, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Start.Equal(list[j].Start) {
				return list[i].End.Before(list[j].End)
			}
			return list[i].Start.Before(list[j].Start)
		})
		maxEnd := make([]time.Time, len(list))
		for i, iv := range list {
			maxEnd[i] = iv.End
			if i > 0 && maxEnd[i-1].After(iv.End) {
				maxEnd[i] = maxEnd[i-1]
			}
		}
		idx.entries[participant] = &participantIntervals{intervals: list, maxEnd: maxEnd}
	}
	return idx
}

// IsBusy reports whether participant has an interval overlapping [start, end).
func (i *Index) IsBusy(participant string, start, end time.Time) bool {
	entry := i.lookup(participant)
	if entry == nil || !start.Before(end) {
		return false
	}
	n := entry.candidates(end)
	return n > 0 && entry.maxEnd[n-1].After(start)
}

// Conflicts returns the intervals of participant overlapping [start, end), ordered by start.
func (i *Index) Conflicts(participant string, start, end time.Time) []BusyInterval {
	entry := i.lookup(participant)
	if entry == nil || !start.Before(end) {
		return nil
	}
	var out []BusyInterval
	for _, iv := range entry.intervals[:entry.candidates(end)] {
		if iv.End.After(start) {
			out = append(out, iv)
		}
	}
	return out
}

// Participants lists the participants that have at least one interval.
func (i *Index) Participants() []string {
	out := make([]string, 0, len(i.entries))
	for p := range i.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (i *Index) lookup(participant string) *participantIntervals {
	if i == nil {
		return nil
	}
	return i.entries[participant]
}

// candidates returns how many intervals start strictly before end.
func (p *participantIntervals) candidates(end time.Time) int {
	return sort.Search(len(p.intervals), func(k int) bool {
		return !p.intervals[k].Start.Before(end)
	})
}
