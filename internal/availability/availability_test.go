package availability

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/calsched/internal/domain"
)

func utc(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func found(ref, tz string) Participant {
	return Participant{Ref: ref, Timezone: tz, Found: true}
}

func TestIsBusyHalfOpenOverlap(t *testing.T) {
	idx := NewIndex([]BusyInterval{
		{Participant: "a", Start: utc("2025-10-20T10:00:00Z"), End: utc("2025-10-20T11:00:00Z")},
		{Participant: "a", Start: utc("2025-10-20T08:00:00Z"), End: utc("2025-10-20T18:00:00Z"), Title: "offsite"},
		{Participant: "b", Start: utc("2025-10-20T12:00:00Z"), End: utc("2025-10-20T13:00:00Z")},
		{Participant: "b", Start: utc("2025-10-20T15:00:00Z"), End: utc("2025-10-20T15:00:00Z")},
	})

	require.True(t, idx.IsBusy("a", utc("2025-10-20T17:30:00Z"), utc("2025-10-20T19:00:00Z")), "long interval earlier in order")
	require.False(t, idx.IsBusy("a", utc("2025-10-20T18:00:00Z"), utc("2025-10-20T19:00:00Z")))

	require.False(t, idx.IsBusy("b", utc("2025-10-20T11:00:00Z"), utc("2025-10-20T12:00:00Z")), "touching start")
	require.False(t, idx.IsBusy("b", utc("2025-10-20T13:00:00Z"), utc("2025-10-20T14:00:00Z")), "touching end")
	require.True(t, idx.IsBusy("b", utc("2025-10-20T12:59:00Z"), utc("2025-10-20T14:00:00Z")))
	require.True(t, idx.IsBusy("b", utc("2025-10-20T12:15:00Z"), utc("2025-10-20T12:30:00Z")), "contained")
	require.True(t, idx.IsBusy("b", utc("2025-10-20T11:00:00Z"), utc("2025-10-20T14:00:00Z")), "containing")
	require.False(t, idx.IsBusy("b", utc("2025-10-20T14:30:00Z"), utc("2025-10-20T15:30:00Z")), "empty interval ignored")
	require.False(t, idx.IsBusy("c", utc("2025-10-20T00:00:00Z"), utc("2025-10-21T00:00:00Z")))

	conflicts := idx.Conflicts("a", utc("2025-10-20T10:30:00Z"), utc("2025-10-20T10:45:00Z"))
	require.Len(t, conflicts, 2)
	require.Equal(t, "offsite", conflicts[0].Title)

	require.Equal(t, []string{"a", "b"}, idx.Participants())
}

func losAngelesDailyBusy(t *testing.T, participant string) []BusyInterval {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	var out []BusyInterval
	for day := 18; day <= 28; day++ {
		out = append(out, BusyInterval{
			Participant: participant,
			Start:       time.Date(2025, 10, day, 14, 0, 0, 0, loc).UTC(),
			End:         time.Date(2025, 10, day, 15, 0, 0, 0, loc).UTC(),
		})
	}
	return out
}

func TestSearchLosAngelesWeek(t *testing.T) {
	busy := losAngelesDailyBusy(t, "a@example.com")
	idx := NewIndex(busy)
	searcher := NewSearcher(DefaultConfig())

	seq, err := searcher.Search(idx, Request{
		Participants: []Participant{
			found("a@example.com", "America/Los_Angeles"),
			found("b@example.com", "America/Los_Angeles"),
		},
		WindowStart: utc("2025-10-20T00:00:00Z"),
		WindowEnd:   utc("2025-10-27T00:00:00Z"),
		Duration:    30 * time.Minute,
	})
	require.NoError(t, err)
	require.False(t, seq.Truncated())
	require.Equal(t, 7*24*4-1, seq.Examined())
	require.Equal(t, "America/Los_Angeles", seq.Timezone())
	require.Empty(t, seq.Unknown())

	count := 0
	for slot := range seq.All() {
		count++
		for _, iv := range busy {
			require.False(t, iv.Overlaps(slot.Start, slot.End), "slot %s overlaps busy %s", slot.Start, iv.Start)
		}
		require.False(t, slot.Start.Before(utc("2025-10-20T00:00:00Z")))
		require.False(t, slot.End.After(utc("2025-10-27T00:00:00Z")))
	}
	require.Equal(t, seq.Len(), count)
	// Each PT day loses the 13:45, 14:00, 14:15, 14:30 and 14:45 starts.
	require.Less(t, count, seq.Examined())

	top := seq.Top(1)
	require.Len(t, top, 1)
	require.Equal(t, utc("2025-10-20T16:00:00Z"), top[0].Start, "Monday 09:00 PT")
	require.True(t, top[0].WithinWorkingHours)
	require.Equal(t, 92.0, top[0].Score)
}

func TestSearchOrderingAndRestart(t *testing.T) {
	searcher := NewSearcher(DefaultConfig())
	seq, err := searcher.Search(nil, Request{
		Participants: []Participant{found("a", "UTC")},
		WindowStart:  utc("2025-10-20T06:00:00Z"),
		WindowEnd:    utc("2025-10-22T06:00:00Z"),
		Duration:     time.Hour,
		Step:         30 * time.Minute,
	})
	require.NoError(t, err)

	var first, second []Slot
	for slot := range seq.All() {
		first = append(first, slot)
	}
	for slot := range seq.All() {
		second = append(second, slot)
	}
	require.Equal(t, first, second)
	require.NotEmpty(t, first)

	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		require.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.Start.Before(cur.Start)))
	}

	// Within a working-hours class the score never grows with distance.
	lastScore := map[bool]float64{true: 1000, false: 1000}
	lastStart := map[bool]time.Time{}
	byStart := append([]Slot(nil), first...)
	sort.Slice(byStart, func(i, j int) bool { return byStart[i].Start.Before(byStart[j].Start) })
	for _, slot := range byStart {
		class := slot.WithinWorkingHours
		require.LessOrEqual(t, slot.Score, lastScore[class])
		require.True(t, lastStart[class].IsZero() || lastStart[class].Before(slot.Start))
		lastScore[class] = slot.Score
		lastStart[class] = slot.Start
	}

	require.Len(t, seq.Top(3), 3)
	require.Empty(t, seq.Top(0))
}

func TestSearchRemovingParticipantNeverRemovesSlots(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := utc("2025-10-20T00:00:00Z")
	var intervals []BusyInterval
	for _, p := range []string{"a", "b", "c"} {
		for i := 0; i < 25; i++ {
			start := base.Add(time.Duration(rng.Intn(7*24*4)) * 15 * time.Minute)
			intervals = append(intervals, BusyInterval{
				Participant: p,
				Start:       start,
				End:         start.Add(time.Duration(1+rng.Intn(8)) * 15 * time.Minute),
			})
		}
	}
	idx := NewIndex(intervals)
	searcher := NewSearcher(DefaultConfig())

	run := func(refs ...string) map[time.Time]struct{} {
		participants := make([]Participant, 0, len(refs))
		for _, ref := range refs {
			participants = append(participants, found(ref, "Europe/Berlin"))
		}
		seq, err := searcher.Search(idx, Request{
			Participants: participants,
			WindowStart:  base,
			WindowEnd:    base.Add(7 * 24 * time.Hour),
			Duration:     45 * time.Minute,
		})
		require.NoError(t, err)
		out := make(map[time.Time]struct{})
		for slot := range seq.All() {
			for _, ref := range refs {
				require.False(t, idx.IsBusy(ref, slot.Start, slot.End))
			}
			out[slot.Start] = struct{}{}
		}
		return out
	}

	all := run("a", "b", "c")
	fewer := run("a", "b")
	require.GreaterOrEqual(t, len(fewer), len(all))
	for start := range all {
		_, ok := fewer[start]
		require.True(t, ok, "slot %s disappeared after removing a participant", start)
	}
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	idx := NewIndex([]BusyInterval{
		{Participant: "a", Start: utc("2025-10-20T00:00:00Z"), End: utc("2025-10-21T00:00:00Z")},
	})
	seq, err := NewSearcher(DefaultConfig()).Search(idx, Request{
		Participants: []Participant{found("a", "UTC")},
		WindowStart:  utc("2025-10-20T08:00:00Z"),
		WindowEnd:    utc("2025-10-20T12:00:00Z"),
		Duration:     time.Hour,
	})
	require.NoError(t, err)
	require.Zero(t, seq.Len())
	require.Empty(t, seq.Top(5))

	// A window shorter than the duration has no candidates at all.
	seq, err = NewSearcher(DefaultConfig()).Search(idx, Request{
		Participants: []Participant{found("a", "UTC")},
		WindowStart:  utc("2025-10-22T08:00:00Z"),
		WindowEnd:    utc("2025-10-22T08:30:00Z"),
		Duration:     time.Hour,
	})
	require.NoError(t, err)
	require.Zero(t, seq.Examined())
	require.Zero(t, seq.Len())
}

func TestSearchTruncatesAtCandidateBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCandidates = 100
	seq, err := NewSearcher(cfg).Search(nil, Request{
		Participants: []Participant{found("a", "UTC")},
		WindowStart:  utc("2025-10-01T00:00:00Z"),
		WindowEnd:    utc("2025-11-01T00:00:00Z"),
		Duration:     30 * time.Minute,
	})
	require.NoError(t, err)
	require.True(t, seq.Truncated())
	require.Equal(t, 100, seq.Examined())
	require.Equal(t, 100, seq.Len())

	limit := utc("2025-10-01T00:00:00Z").Add(99 * 15 * time.Minute)
	for slot := range seq.All() {
		require.False(t, slot.Start.After(limit))
	}
}

func TestSearchUnknownParticipants(t *testing.T) {
	idx := NewIndex([]BusyInterval{
		{Participant: "ghost", Start: utc("2025-10-20T09:00:00Z"), End: utc("2025-10-20T17:00:00Z")},
	})
	seq, err := NewSearcher(DefaultConfig()).Search(idx, Request{
		Participants: []Participant{found("a", "UTC"), {Ref: "ghost"}, {Ref: "ghost"}},
		WindowStart:  utc("2025-10-20T09:00:00Z"),
		WindowEnd:    utc("2025-10-20T10:00:00Z"),
		Duration:     time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"ghost"}, seq.Unknown())
	require.Equal(t, 1, seq.Len())
}

func TestSearchValidation(t *testing.T) {
	searcher := NewSearcher(DefaultConfig())
	start := utc("2025-10-20T00:00:00Z")
	valid := Request{
		Participants: []Participant{found("a", "UTC")},
		WindowStart:  start,
		WindowEnd:    start.Add(24 * time.Hour),
		Duration:     time.Hour,
	}

	cases := map[string]func(r *Request){
		"no participants": func(r *Request) { r.Participants = nil },
		"blank reference": func(r *Request) { r.Participants = []Participant{{Ref: "  "}} },
		"inverted window": func(r *Request) { r.WindowEnd = r.WindowStart.Add(-time.Hour) },
		"empty window":    func(r *Request) { r.WindowEnd = r.WindowStart },
		"zero duration":   func(r *Request) { r.Duration = 0 },
		"too long":        func(r *Request) { r.Duration = 8*time.Hour + time.Minute },
		"negative step":   func(r *Request) { r.Step = -time.Minute },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := valid
			mutate(&req)
			_, err := searcher.Search(nil, req)
			require.Error(t, err)
			require.True(t, errors.Is(err, domain.ErrValidation))
		})
	}

	_, err := searcher.Search(nil, valid)
	require.NoError(t, err)
}

func TestMajorityZone(t *testing.T) {
	zone := majorityZone([]Participant{
		found("a", "Asia/Tokyo"),
		found("b", "Asia/Tokyo"),
		found("c", "America/Los_Angeles"),
		{Ref: "d", Timezone: "Europe/London"},
	})
	require.Equal(t, "Asia/Tokyo", zone.String())

	zone = majorityZone([]Participant{found("a", "Europe/London"), found("b", "America/Los_Angeles")})
	require.Equal(t, "America/Los_Angeles", zone.String())

	require.Equal(t, time.UTC, majorityZone([]Participant{{Ref: "x"}}))
	require.Equal(t, "UTC", majorityZone([]Participant{found("a", "")}).String())
}

func TestWorkingHoursUseMajorityZone(t *testing.T) {
	seq, err := NewSearcher(DefaultConfig()).Search(nil, Request{
		Participants: []Participant{found("a", "Asia/Tokyo"), found("b", "Asia/Tokyo"), found("c", "UTC")},
		// 2025-10-21 09:00 JST is 00:00 UTC.
		WindowStart: utc("2025-10-20T23:00:00Z"),
		WindowEnd:   utc("2025-10-21T02:00:00Z"),
		Duration:    time.Hour,
		Step:        time.Hour,
	})
	require.NoError(t, err)

	slots := seq.Top(10)
	require.Len(t, slots, 3)
	require.Equal(t, utc("2025-10-21T00:00:00Z"), slots[0].Start)
	require.True(t, slots[0].WithinWorkingHours)
	require.False(t, slots[len(slots)-1].WithinWorkingHours)
}

func TestCheck(t *testing.T) {
	idx := NewIndex([]BusyInterval{
		{Participant: "busy@example.com", Start: utc("2025-10-20T16:00:00Z"), End: utc("2025-10-20T17:00:00Z"), Title: "standup"},
	})
	searcher := NewSearcher(DefaultConfig())

	statuses, err := searcher.Check(idx, []CheckParticipant{
		{Participant: found("busy@example.com", "America/Los_Angeles"), DisplayName: "Busy"},
		{Participant: found("free@example.com", "UTC")},
		{Participant: Participant{Ref: "nobody@example.com"}},
	}, utc("2025-10-20T16:30:00Z"), utc("2025-10-20T17:30:00Z"))
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	busy := statuses[0]
	require.True(t, busy.UserFound)
	require.False(t, busy.IsAvailable)
	require.Len(t, busy.Conflicts, 1)
	require.Equal(t, "standup", busy.Conflicts[0].Title)
	require.Len(t, busy.SuggestedSlots, 3)
	for _, slot := range busy.SuggestedSlots {
		require.Equal(t, time.Hour, slot.End.Sub(slot.Start))
		require.False(t, idx.IsBusy("busy@example.com", slot.Start, slot.End))
		require.False(t, slot.Start.Before(utc("2025-10-20T16:30:00Z")))
	}

	free := statuses[1]
	require.True(t, free.IsAvailable)
	require.Empty(t, free.SuggestedSlots)
	require.Equal(t, "free@example.com", free.DisplayName)

	unknown := statuses[2]
	require.False(t, unknown.UserFound)
	require.False(t, unknown.IsAvailable)

	_, err = searcher.Check(idx, nil, utc("2025-10-20T16:30:00Z"), utc("2025-10-20T17:30:00Z"))
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = searcher.Check(idx, []CheckParticipant{{Participant: found("a", "UTC")}}, utc("2025-10-20T17:30:00Z"), utc("2025-10-20T16:30:00Z"))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("09:30")
	require.NoError(t, err)
	require.Equal(t, 570, minutes)

	_, err = ParseClock("9am")
	require.Error(t, err)
}
