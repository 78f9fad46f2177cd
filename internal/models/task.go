package models

import "time"

// Task statuses.
const (
	TaskStatusOpen = "open"
	TaskStatusDone = "done"
)

// Task represents a to-do item owned by a user.
type Task struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"` // User the record belongs to.

	Title   string     `gorm:"type:text;not null"`              // Task title.
	Status  string     `gorm:"type:text;not null;default:'open'"` // open or done.
	DueAt   *time.Time `gorm:"type:timestamp;index"`            // Optional due date.
	DealID  *uint64    `gorm:"index"`                           // Optional related deal.
	ContactID *uint64  `gorm:"index"`                           // Optional related contact.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
