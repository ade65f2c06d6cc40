package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/calsched/internal/availability"
	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/models"
)

// GormStore implements Repository on gorm.
type GormStore struct {
	db    *gorm.DB
	locks *keyedMutex
}

var _ Repository = (*GormStore)(nil)

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("repository: db is required")
	}
	return &GormStore{db: db, locks: newKeyedMutex()}, nil
}

// DB exposes the underlying handle for health probes.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("repository: user %q exists: %w", user.Email, domain.ErrConflict)
		}
		return fmt.Errorf("repository: create user: %w", err)
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "email = ?", models.NormalizeEmail(email)).Error; err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}

// FindUsersByEmail returns the users matching emails keyed by normalised email. Missing emails are absent.
func (s *GormStore) FindUsersByEmail(ctx context.Context, emails []string) (map[string]models.User, error) {
	normalised := make([]string, 0, len(emails))
	for _, email := range emails {
		if email = models.NormalizeEmail(email); email != "" {
			normalised = append(normalised, email)
		}
	}
	out := make(map[string]models.User, len(normalised))
	if len(normalised) == 0 {
		return out, nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).Where("email IN ?", normalised).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("repository: find users: %w", err)
	}
	for _, user := range users {
		out[user.Email] = user
	}
	return out, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("email ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("repository: list users: %w", err)
	}
	return users, nil
}

// UpdateUserProfile writes the display name and timezone of user.
func (s *GormStore) UpdateUserProfile(ctx context.Context, user *models.User) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"display_name": user.DisplayName,
			"timezone":     user.Timezone,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("repository: update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repository: user: %w", domain.ErrNotFound)
	}
	return nil
}

// FrequentCollaborators ranks the registered users organizerID invited most often.
func (s *GormStore) FrequentCollaborators(ctx context.Context, organizerID string, limit int) ([]Collaborator, error) {
	if limit <= 0 {
		limit = DefaultCollaboratorLimit
	}
	var out []Collaborator
	err := s.db.WithContext(ctx).
		Table("users").
		Select("users.id AS user_id, users.email, users.display_name, users.timezone, COUNT(invitations.id) AS invitation_count").
		Joins("JOIN invitations ON invitations.recipient_email = users.email").
		Joins("JOIN events ON events.id = invitations.event_id").
		Where("events.organizer_id = ? AND users.id <> ?", organizerID, organizerID).
		Group("users.id, users.email, users.display_name, users.timezone").
		Order("invitation_count DESC").Order("users.email ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("repository: frequent collaborators: %w", err)
	}
	return out, nil
}

// CreateEvent stores the event and its invitations in one transaction.
func (s *GormStore) CreateEvent(ctx context.Context, event *models.Event, invitations []models.Invitation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(event).Error; err != nil {
			return fmt.Errorf("repository: create event: %w", err)
		}
		for i := range invitations {
			invitations[i].EventID = event.ID
		}
		if len(invitations) == 0 {
			return nil
		}
		if err := tx.Omit(clause.Associations).Create(&invitations).Error; err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("repository: duplicate invitation: %w", domain.ErrConflict)
			}
			return fmt.Errorf("repository: create invitations: %w", err)
		}
		event.Invitations = invitations
		return nil
	})
}

func (s *GormStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := s.db.WithContext(ctx).Preload("Organizer").Take(&event, "id = ?", id).Error; err != nil {
		return nil, notFound("event", err)
	}
	return &event, nil
}

// ListEventsForUser returns live events overlapping [start, end) that user organises or accepted.
func (s *GormStore) ListEventsForUser(ctx context.Context, user models.User, start, end time.Time) ([]models.Event, error) {
	var events []models.Event
	err := s.busyScope(s.db.WithContext(ctx), user, start, end).
		Preload("Organizer").
		Order("start_at ASC").Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list events: %w", err)
	}
	return events, nil
}

// BusyIntervals projects ListEventsForUser onto conflict-index intervals keyed by the user's email.
func (s *GormStore) BusyIntervals(ctx context.Context, user models.User, start, end time.Time) ([]availability.BusyInterval, error) {
	var events []models.Event
	err := s.busyScope(s.db.WithContext(ctx), user, start, end).
		Select("id", "title", "location", "start_at", "end_at").
		Order("start_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("repository: busy intervals for %s: %w", user.Email, err)
	}

	out := make([]availability.BusyInterval, 0, len(events))
	for _, event := range events {
		out = append(out, availability.BusyInterval{
			Participant: user.Email,
			Start:       event.StartAt.UTC(),
			End:         event.EndAt.UTC(),
			EventID:     event.ID,
			Title:       event.Title,
			Location:    event.Location,
		})
	}
	return out, nil
}

func (s *GormStore) busyScope(db *gorm.DB, user models.User, start, end time.Time) *gorm.DB {
	accepted := s.db.Model(&models.Invitation{}).
		Select("event_id").
		Where("recipient_email = ? AND status = ?", models.NormalizeEmail(user.Email), invitation.StatusAccepted)

	return db.Model(&models.Event{}).
		Where("cancelled_at IS NULL").
		Where("start_at < ? AND end_at > ?", end.UTC(), start.UTC()).
		Where(s.db.Where("organizer_id = ?", user.ID).Or("id IN (?)", accepted))
}

// PurgeCancelledEvents deletes tombstones older than cutoff together with their invitations.
func (s *GormStore) PurgeCancelledEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&models.Event{}).Select("id").Where("cancelled_at IS NOT NULL AND cancelled_at < ?", cutoff.UTC())
		if err := tx.Where("event_id IN (?)", stale).Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		result := tx.Where("cancelled_at IS NOT NULL AND cancelled_at < ?", cutoff.UTC()).Delete(&models.Event{})
		if result.Error != nil {
			return result.Error
		}
		purged = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("repository: purge cancelled events: %w", err)
	}
	return purged, nil
}

func (s *GormStore) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.db.WithContext(ctx).Preload("Event").Preload("Event.Organizer").Take(&inv, "id = ?", id).Error; err != nil {
		return nil, notFound("invitation", err)
	}
	return &inv, nil
}

func (s *GormStore) FindInvitation(ctx context.Context, eventID, email string) (*models.Invitation, error) {
	var inv models.Invitation
	err := s.db.WithContext(ctx).Take(&inv, "event_id = ? AND recipient_email = ?", eventID, models.NormalizeEmail(email)).Error
	if err != nil {
		return nil, notFound("invitation", err)
	}
	return &inv, nil
}

func (s *GormStore) ListInvitationsForEvent(ctx context.Context, eventID string, statuses ...invitation.Status) ([]models.Invitation, error) {
	query := s.db.WithContext(ctx).Where("event_id = ?", eventID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var out []models.Invitation
	if err := query.Order("created_at ASC").Order("recipient_email ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("repository: list invitations: %w", err)
	}
	return out, nil
}

func (s *GormStore) ListInvitationsForRecipient(ctx context.Context, email string, statuses ...invitation.Status) ([]models.Invitation, error) {
	query := s.db.WithContext(ctx).
		Preload("Event").
		Preload("Event.Organizer").
		Where("recipient_email = ?", models.NormalizeEmail(email))
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var out []models.Invitation
	if err := query.Order("created_at DESC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("repository: list recipient invitations: %w", err)
	}
	return out, nil
}

func (s *GormStore) CountInvitationsByStatus(ctx context.Context, eventID string) (map[invitation.Status]int64, error) {
	var rows []struct {
		Status invitation.Status
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Select("status, COUNT(*) AS total").
		Where("event_id = ?", eventID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("repository: count invitations: %w", err)
	}

	counts := make(map[invitation.Status]int64, len(invitation.Statuses))
	for _, status := range invitation.Statuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// DueReminders lists unreminded PENDING invitations of live events starting within (now, now+lead].
func (s *GormStore) DueReminders(ctx context.Context, now time.Time, lead time.Duration) ([]models.Invitation, error) {
	upcoming := s.db.Model(&models.Event{}).
		Select("id").
		Where("cancelled_at IS NULL AND start_at > ? AND start_at <= ?", now.UTC(), now.Add(lead).UTC())

	var out []models.Invitation
	err := s.db.WithContext(ctx).
		Preload("Event").
		Preload("Event.Organizer").
		Where("status = ? AND reminded_at IS NULL", invitation.StatusPending).
		Where("event_id IN (?)", upcoming).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("repository: due reminders: %w", err)
	}
	return out, nil
}

// MarkReminded sets reminded_at once. It reports false when another worker got there first.
func (s *GormStore) MarkReminded(ctx context.Context, invitationID string, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND reminded_at IS NULL", invitationID).
		Update("reminded_at", at.UTC())
	if result.Error != nil {
		return false, fmt.Errorf("repository: mark reminded: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return fmt.Errorf("repository: create notifications: %w", err)
	}
	return nil
}

func (s *GormStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var out []models.Notification
	if err := query.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("repository: list notifications: %w", err)
	}
	return out, nil
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Updates(map[string]any{"is_read": true, "read_at": at.UTC()})
	if result.Error != nil {
		return fmt.Errorf("repository: mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repository: notification %s: %w", notificationID, domain.ErrNotFound)
	}
	return nil
}

// WithinEvent runs fn inside the critical section of eventID: an in-process lock, a transaction
// and a row lock where the dialect supports one. Returning an error rolls everything back.
func (s *GormStore) WithinEvent(ctx context.Context, eventID string, fn func(tx EventTx) error) error {
	unlock := s.locks.Lock(eventID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() != "sqlite" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var event models.Event
		if err := query.Take(&event, "id = ?", eventID).Error; err != nil {
			return notFound("event", err)
		}
		return fn(&gormEventTx{tx: tx, event: &event})
	})
}

type gormEventTx struct {
	tx    *gorm.DB
	event *models.Event
}

func (t *gormEventTx) Event() *models.Event {
	return t.event
}

func (t *gormEventTx) Invitation(id string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := t.tx.Take(&inv, "id = ? AND event_id = ?", id, t.event.ID).Error; err != nil {
		return nil, notFound("invitation", err)
	}
	return &inv, nil
}

func (t *gormEventTx) Invitations(statuses ...invitation.Status) ([]models.Invitation, error) {
	query := t.tx.Where("event_id = ?", t.event.ID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var out []models.Invitation
	if err := query.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("repository: list invitations: %w", err)
	}
	return out, nil
}

func (t *gormEventTx) UpdateEventTime(start, end time.Time, now time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("repository: event start must precede end: %w", domain.ErrValidation)
	}
	result := t.tx.Model(&models.Event{}).
		Where("id = ? AND version = ? AND cancelled_at IS NULL", t.event.ID, t.event.Version).
		Updates(map[string]any{
			"start_at":   start.UTC(),
			"end_at":     end.UTC(),
			"version":    gorm.Expr("version + 1"),
			"sequence":   gorm.Expr("sequence + 1"),
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("repository: update event time: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repository: event %s changed concurrently: %w", t.event.ID, domain.ErrConflict)
	}
	t.event.StartAt, t.event.EndAt = start.UTC(), end.UTC()
	t.event.Version++
	t.event.Sequence++
	t.event.UpdatedAt = now.UTC()
	return nil
}

func (t *gormEventTx) UpdateEventDetails(details EventDetails, now time.Time) error {
	result := t.tx.Model(&models.Event{}).
		Where("id = ? AND version = ? AND cancelled_at IS NULL", t.event.ID, t.event.Version).
		Updates(map[string]any{
			"title":                 details.Title,
			"description":           details.Description,
			"location":              details.Location,
			"video_conference_link": details.VideoConferenceLink,
			"version":               gorm.Expr("version + 1"),
			"sequence":              gorm.Expr("sequence + 1"),
			"updated_at":            now.UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("repository: update event details: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repository: event %s changed concurrently: %w", t.event.ID, domain.ErrConflict)
	}
	t.event.Title = details.Title
	t.event.Description = details.Description
	t.event.Location = details.Location
	t.event.VideoConferenceLink = details.VideoConferenceLink
	t.event.Version++
	t.event.Sequence++
	t.event.UpdatedAt = now.UTC()
	return nil
}

func (t *gormEventTx) CancelEvent(at time.Time) error {
	result := t.tx.Model(&models.Event{}).
		Where("id = ? AND version = ? AND cancelled_at IS NULL", t.event.ID, t.event.Version).
		Updates(map[string]any{
			"cancelled_at": at.UTC(),
			"version":      gorm.Expr("version + 1"),
			"sequence":     gorm.Expr("sequence + 1"),
			"updated_at":   at.UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("repository: cancel event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repository: event %s changed concurrently: %w", t.event.ID, domain.ErrConflict)
	}
	cancelled := at.UTC()
	t.event.CancelledAt = &cancelled
	t.event.Version++
	t.event.Sequence++
	return nil
}

func (t *gormEventTx) SaveTransition(inv *models.Invitation, from invitation.Status) error {
	result := t.tx.Model(&models.Invitation{}).
		Where("id = ? AND event_id = ? AND status = ?", inv.ID, t.event.ID, from).
		Updates(map[string]any{
			"status":         inv.Status,
			"recipient_id":   inv.RecipientID,
			"proposed_start": inv.ProposedStart,
			"proposed_end":   inv.ProposedEnd,
			"response_note":  inv.ResponseNote,
			"responded_at":   inv.RespondedAt,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("repository: save invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repository: invitation %s left %s concurrently: %w", inv.ID, from, domain.ErrConflict)
	}
	return nil
}

func notFound(kind string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("repository: %s: %w", kind, domain.ErrNotFound)
	}
	return fmt.Errorf("repository: load %s: %w", kind, err)
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}
