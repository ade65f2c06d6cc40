package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	searchesFound  atomic.Uint64
	searchesEmpty  atomic.Uint64
	searchesFailed atomic.Uint64
	candidates     atomic.Uint64

	transitionsOK     atomic.Uint64
	transitionsFailed atomic.Uint64
	timeChanges       atomic.Uint64
	conflicts         atomic.Uint64

	realtimeConnections atomic.Int64
	realtimeBroadcasts  atomic.Uint64
	realtimeFailures    atomic.Uint64
	realtimeLastFailure atomic.Pointer[FailureRecord]

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	return &statStore{}
}

func (s *statStore) recordSearch(result string, examined int) {
	switch result {
	case "found":
		s.searchesFound.Add(1)
	case "empty":
		s.searchesEmpty.Add(1)
	default:
		s.searchesFailed.Add(1)
	}
	if examined > 0 {
		s.candidates.Add(uint64(examined))
	}
}

func (s *statStore) recordTransition(result string) {
	if result == "success" {
		s.transitionsOK.Add(1)
		return
	}
	s.transitionsFailed.Add(1)
}

func (s *statStore) recordRealtimeFailure(record FailureRecord) {
	s.realtimeFailures.Add(1)
	s.realtimeLastFailure.Store(&record)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	if value, ok := s.maintenance.Load(job); ok {
		return value.(*maintenanceStats)
	}
	actual, _ := s.maintenance.LoadOrStore(job, &maintenanceStats{})
	return actual.(*maintenanceStats)
}

func (s *statStore) summary() Summary {
	jobs := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		jobs = append(jobs, value.(*maintenanceStats).snapshot(key.(string)))
		return true
	})
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Job < jobs[j].Job })

	return Summary{
		GeneratedAt: time.Now(),
		Scheduling: SchedulingSummary{
			SearchesFound:      s.searchesFound.Load(),
			SearchesEmpty:      s.searchesEmpty.Load(),
			SearchesFailed:     s.searchesFailed.Load(),
			CandidatesExamined: s.candidates.Load(),
		},
		Invitations: InvitationSummary{
			Transitions: s.transitionsOK.Load(),
			Rejected:    s.transitionsFailed.Load(),
			TimeChanges: s.timeChanges.Load(),
			Conflicts:   s.conflicts.Load(),
		},
		Realtime: RealtimeSummary{
			ActiveConnections: s.realtimeConnections.Load(),
			Broadcasts:        s.realtimeBroadcasts.Load(),
			Failures:          s.realtimeFailures.Load(),
			LastFailure:       s.realtimeLastFailure.Load(),
		},
		Maintenance: MaintenanceSummary{Jobs: jobs},
	}
}

type maintenanceStats struct {
	mu                   sync.Mutex
	lastStatus           string
	lastError            string
	lastRun              time.Time
	lastDuration         time.Duration
	lastSuccess          time.Time
	consecutiveFailures  uint64
	consecutiveSuccesses uint64
	totalRuns            uint64
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.lastStatus = result
	m.lastError = message
	m.lastRun = now
	m.lastDuration = nonNegative(duration)
	m.totalRuns++

	if result == "success" {
		m.consecutiveFailures = 0
		m.consecutiveSuccesses++
		m.lastSuccess = now
		return
	}
	m.consecutiveFailures++
	m.consecutiveSuccesses = 0
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          m.lastStatus,
		LastRunAt:           m.lastRun,
		LastDuration:        m.lastDuration,
		LastError:           m.lastError,
		ConsecutiveFailures: m.consecutiveFailures,
		ConsecutiveSuccess:  m.consecutiveSuccesses,
		LastSuccessAt:       m.lastSuccess,
		TotalRuns:           m.totalRuns,
	}
}
