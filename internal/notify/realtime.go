package notify

import (
	"context"

	"github.com/charlesng35/calsched/internal/realtime"
)

// Broadcaster is the part of the realtime hub publishers need.
type Broadcaster interface {
	BroadcastToUsers(stream string, userIDs []string, message realtime.Message)
}

// RealtimePublisher pushes every event to the recipients' open sockets on the events stream.
type RealtimePublisher struct {
	hub Broadcaster
}

// NewRealtimePublisher wraps the hub.
func NewRealtimePublisher(hub Broadcaster) *RealtimePublisher {
	return &RealtimePublisher{hub: hub}
}

func (p *RealtimePublisher) Publish(_ context.Context, event Event) error {
	if p == nil || p.hub == nil {
		return nil
	}
	ids := event.UserIDs()
	if len(ids) == 0 {
		return nil
	}
	p.hub.BroadcastToUsers(realtime.StreamEvents, ids, realtime.Message{
		Event: string(event.Kind),
		Data:  event.Payload(),
	})
	return nil
}
