package models

import "time"

// Company represents an organization contacts and deals attach to.
type Company struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"` // User the record belongs to.

	Name     string `gorm:"type:text;not null"` // Company name.
	Domain   string `gorm:"type:text"`          // Web domain.
	Industry string `gorm:"type:text"`          // Industry label.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
