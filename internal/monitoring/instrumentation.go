package monitoring

import (
	"strings"
	"time"
)

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	module.metrics.apiLatency.WithLabelValues(method, sanitizePath(path), normalizeLabel(status)).Observe(nonNegative(duration).Seconds())
}

// RecordSlotSearch records one slot search. result is found, empty or error.
func RecordSlotSearch(result string, examined int, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	label := normalizeLabel(result)
	module.metrics.slotSearches.WithLabelValues(label).Inc()
	observeDuration(module.metrics.slotSearchDuration, duration)
	if examined > 0 {
		module.metrics.slotCandidates.Observe(float64(examined))
	}
	module.stats.recordSearch(label, examined)
}

// RecordInvitationTransition counts a state machine command. result is success or the error code.
func RecordInvitationTransition(action, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	label := normalizeLabel(result)
	module.metrics.invitationTransitions.WithLabelValues(normalizeLabel(action), label).Inc()
	module.stats.recordTransition(label)
}

// RecordEventTimeChange counts a committed time change.
func RecordEventTimeChange(source string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.eventTimeChanges.WithLabelValues(normalizeLabel(source)).Inc()
	module.stats.timeChanges.Add(1)
}

// RecordConflict counts a compare-and-set write that lost a race.
func RecordConflict() {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.proposalConflicts.Inc()
	module.stats.conflicts.Add(1)
}

// RecordNotification counts a publisher delivery.
func RecordNotification(publisher, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.notifications.WithLabelValues(normalizeLabel(publisher), normalizeLabel(result)).Inc()
}

// RecordRealtimeConnection adjusts the websocket connection gauge.
func RecordRealtimeConnection(delta int64) {
	module := ensureModule()
	if module == nil || delta == 0 {
		return
	}
	module.metrics.realtimeConnections.Add(float64(delta))
	if module.stats.realtimeConnections.Add(delta) < 0 {
		module.stats.realtimeConnections.Store(0)
		module.metrics.realtimeConnections.Set(0)
	}
}

// RecordRealtimeBroadcast increments broadcast counters per stream.
func RecordRealtimeBroadcast(stream string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.realtimeBroadcasts.WithLabelValues(normalizePath(stream)).Inc()
	module.stats.realtimeBroadcasts.Add(1)
}

// RecordRealtimeFailure snapshots a realtime failure occurrence.
func RecordRealtimeFailure(stream, failureType, message string) {
	module := ensureModule()
	if module == nil {
		return
	}
	stream = normalizePath(stream)
	failureType = normalizeLabel(failureType)
	module.metrics.realtimeFailures.WithLabelValues(stream, failureType).Inc()
	module.stats.recordRealtimeFailure(FailureRecord{
		Stream:   stream,
		Type:     failureType,
		Message:  strings.TrimSpace(message),
		Occurred: time.Now(),
	})
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	module.stats.maintenanceEntry(jobID).record(result, strings.TrimSpace(message), duration)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "unknown"
	}
	return normalizePath(path)
}

func normalizePath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	path = strings.ReplaceAll(path, " ", "_")
	if path == "" {
		return "root"
	}
	return path
}
