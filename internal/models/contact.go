package models

import (
	"time"

	"gorm.io/datatypes"
)

// Contact represents a CRM contact owned by a user.
type Contact struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"` // User the record belongs to.

	FirstName string `gorm:"type:text;not null"` // Given name.
	LastName  string `gorm:"type:text"`          // Family name.
	Email     string `gorm:"type:text;index"`    // Contact email.
	Phone     string `gorm:"type:text"`          // Contact phone number.

	CompanyID *uint64  `gorm:"index"`                  // Optional owning company.
	Company   *Company `gorm:"foreignKey:CompanyID"`   // Optional owning company.

	CustomFields datatypes.JSON `gorm:"type:jsonb"` // Free-form extra fields.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
