package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/repository"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationDTO represents the API-friendly notification payload.
type NotificationDTO struct {
	ID        string         `json:"id"`
	EventID   string         `json:"event_id,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// NotificationOption customises NotificationService behaviour.
type NotificationOption func(*NotificationService)

// WithNotificationClock injects a custom clock primarily for testing.
func WithNotificationClock(clock func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NotificationService serves the persisted notification inbox.
type NotificationService struct {
	repo repository.Repository
	now  func() time.Time
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo repository.Repository, opts ...NotificationOption) (*NotificationService, error) {
	if repo == nil {
		return nil, errors.New("notification service: repository is required")
	}
	svc := &NotificationService{repo: repo, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// List returns the actor's notifications newest first.
func (s *NotificationService) List(ctx context.Context, actor Actor, unreadOnly bool, limit int) ([]NotificationDTO, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultNotificationLimit
	case limit > maxNotificationLimit:
		limit = maxNotificationLimit
	}

	rows, err := s.repo.ListNotifications(ctx, actor.UserID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("notification service: %w", err)
	}
	out := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toNotificationDTO(row))
	}
	return out, nil
}

// MarkRead marks one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, notificationID string) error {
	if err := actor.validate(); err != nil {
		return err
	}
	if err := s.repo.MarkNotificationRead(ctx, actor.UserID, notificationID, s.now()); err != nil {
		return fmt.Errorf("notification service: %w", err)
	}
	return nil
}

func toNotificationDTO(row models.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        row.ID,
		EventID:   row.EventID,
		Type:      row.Type,
		Title:     row.Title,
		Message:   row.Message,
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		ReadAt:    row.ReadAt,
	}
	if len(row.Metadata) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(row.Metadata, &meta); err == nil {
			dto.Metadata = meta
		}
	}
	return dto
}
