package models

import "time"

// Event is a scheduled meeting owned by its organizer.
type Event struct {
	BaseModel

	OrganizerID string `gorm:"type:uuid;index;not null" json:"organizer_id"`
	Organizer   *User  `gorm:"foreignKey:OrganizerID" json:"organizer,omitempty"`

	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Location    string `gorm:"type:varchar(255)" json:"location"`
	// VideoConferenceLink is generated when the event is created without one.
	VideoConferenceLink string `gorm:"type:varchar(512)" json:"video_conference_link"`

	StartAt time.Time `gorm:"index;not null" json:"start_at"`
	EndAt   time.Time `gorm:"index;not null" json:"end_at"`
	// Timezone is the organizer's display zone and never takes part in conflict math.
	Timezone string `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`

	// Version guards every mutation with compare-and-set writes.
	Version int64 `gorm:"not null;default:1" json:"version"`
	// Sequence is the iCalendar SEQUENCE, bumped on every organizer revision.
	Sequence int `gorm:"not null;default:0" json:"sequence"`

	CancelledAt *time.Time `gorm:"index" json:"cancelled_at,omitempty"`

	Invitations []Invitation `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"invitations,omitempty"`
}

// Cancelled reports whether the event is tombstoned.
func (e *Event) Cancelled() bool {
	return e != nil && e.CancelledAt != nil
}
