package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity types.
const (
	ActivityTypeCall    = "call"
	ActivityTypeEmail   = "email"
	ActivityTypeMeeting = "meeting"
	ActivityTypeNote    = "note"
)

// Activity represents a logged interaction owned by a user.
type Activity struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"` // User the record belongs to.

	Type    string  `gorm:"type:text;not null"` // call, email, meeting or note.
	Subject string  `gorm:"type:text;not null"` // Short summary line.
	Body    string  `gorm:"type:text"`          // Free-form details.
	ContactID *uint64 `gorm:"index"`            // Optional related contact.
	DealID    *uint64 `gorm:"index"`            // Optional related deal.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Structured extras (duration, direction, ...).

	OccurredAt time.Time `gorm:"not null;index"` // When the interaction happened.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
