package realtime

// Streams a client can subscribe to.
const (
	// StreamEvents carries event lifecycle changes: time updates, cancellations and invitation responses.
	StreamEvents = "events"
	// StreamNotifications mirrors rows written to the notification inbox.
	StreamNotifications = "notifications"
)

// Streams lists every stream a client may subscribe to.
func Streams() []string {
	return []string{StreamEvents, StreamNotifications}
}

// EventNotification is the event name of inbox rows mirrored on StreamNotifications. Frames on
// StreamEvents carry the domain event kind as their event name.
const EventNotification = "notification.created"
