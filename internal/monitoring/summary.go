package monitoring

import "time"

// Summary surfaces aggregated counters for the operator summary endpoint.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Scheduling  SchedulingSummary  `json:"scheduling"`
	Invitations InvitationSummary  `json:"invitations"`
	Realtime    RealtimeSummary    `json:"realtime"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

type SchedulingSummary struct {
	SearchesFound      uint64 `json:"searches_found"`
	SearchesEmpty      uint64 `json:"searches_empty"`
	SearchesFailed     uint64 `json:"searches_failed"`
	CandidatesExamined uint64 `json:"candidates_examined"`
}

type InvitationSummary struct {
	Transitions uint64 `json:"transitions"`
	Rejected    uint64 `json:"rejected"`
	TimeChanges uint64 `json:"time_changes"`
	Conflicts   uint64 `json:"conflicts"`
}

type FailureRecord struct {
	Stream   string    `json:"stream"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type RealtimeSummary struct {
	ActiveConnections int64          `json:"active_connections"`
	Broadcasts        uint64         `json:"broadcasts"`
	Failures          uint64         `json:"failures"`
	LastFailure       *FailureRecord `json:"last_failure,omitempty"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
