package models

import "time"

// SystemSetting is a key/value row for installation state such as the generated token signing secret.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name independently of gorm's pluralisation rules.
func (SystemSetting) TableName() string {
	return "system_settings"
}
