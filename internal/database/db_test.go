package database

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "oracle"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	organizer := models.User{Email: "Owner@Example.com", Timezone: "UTC"}
	if err := db.Create(&organizer).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if organizer.Email != "owner@example.com" {
		t.Fatalf("expected normalised email, got %q", organizer.Email)
	}

	start := time.Date(2025, 10, 20, 16, 0, 0, 0, time.UTC)
	event := models.Event{OrganizerID: organizer.ID, Title: "Sync", StartAt: start, EndAt: start.Add(time.Hour), Timezone: "UTC"}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("create event: %v", err)
	}

	first := models.Invitation{EventID: event.ID, RecipientEmail: "guest@example.com", Status: invitation.StatusPending}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	duplicate := models.Invitation{EventID: event.ID, RecipientEmail: "guest@example.com", Status: invitation.StatusPending}
	if err := db.Create(&duplicate).Error; err == nil {
		t.Fatal("expected unique (event, recipient) violation")
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared&_foreign_keys=1"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
