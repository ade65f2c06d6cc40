package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/realtime"
)

// NotificationWriter persists inbox rows. The repository satisfies it.
type NotificationWriter interface {
	CreateNotifications(ctx context.Context, notifications []models.Notification) error
}

// StorePublisher writes one inbox notification per recipient with an account, and mirrors each
// row on the notifications stream when a hub is attached.
type StorePublisher struct {
	store NotificationWriter
	hub   Broadcaster
}

// NewStorePublisher returns a publisher writing to store. hub may be nil.
func NewStorePublisher(store NotificationWriter, hub Broadcaster) *StorePublisher {
	return &StorePublisher{store: store, hub: hub}
}

func (p *StorePublisher) Publish(ctx context.Context, event Event) error {
	ids := event.UserIDs()
	if len(ids) == 0 {
		return nil
	}

	metadata, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("notify: encode metadata: %w", err)
	}

	title, message := Describe(event)
	rows := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.Notification{
			UserID:   id,
			EventID:  event.Event.ID,
			Type:     string(event.Kind),
			Title:    title,
			Message:  message,
			Metadata: datatypes.JSON(metadata),
		})
	}
	if err := p.store.CreateNotifications(ctx, rows); err != nil {
		return fmt.Errorf("notify: store notifications: %w", err)
	}

	if p.hub != nil {
		for _, row := range rows {
			p.hub.BroadcastToUsers(realtime.StreamNotifications, []string{row.UserID}, realtime.Message{
				Event: realtime.EventNotification,
				Data:  row,
			})
		}
	}
	return nil
}
