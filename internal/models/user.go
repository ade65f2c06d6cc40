package models

import (
	"strings"

	"gorm.io/gorm"
)

// User is a directory entry that participant references resolve against.
type User struct {
	BaseModel

	Email       string `gorm:"type:varchar(320);uniqueIndex;not null" json:"email"`
	DisplayName string `gorm:"type:varchar(255)" json:"display_name"`
	// Timezone is an IANA zone; empty means UTC.
	Timezone string `gorm:"type:varchar(64)" json:"timezone"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// BeforeSave normalises the email so lookups stay case-insensitive.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// Name returns the display name, falling back to the email.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	return u.Email
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
