package checks

import (
	"context"
	"fmt"

	"github.com/charlesng35/calsched/internal/monitoring"
)

// RealtimeObserver is satisfied by the realtime hub.
type RealtimeObserver interface {
	ActiveConnections() int64
}

// Realtime reports the hub's connection count and degrades once deliveries have failed.
func Realtime(observer RealtimeObserver) monitoring.Check {
	return monitoring.NewCheck("realtime", func(ctx context.Context) monitoring.ProbeResult {
		if observer == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "realtime hub unavailable"}
		}

		failures := monitoring.Snapshot().Realtime.Failures
		details := fmt.Sprintf("%d connections", observer.ActiveConnections())
		if failures > 0 {
			return monitoring.ProbeResult{
				Status:  monitoring.StatusDegraded,
				Details: fmt.Sprintf("%s; %d failures", details, failures),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: details}
	})
}
