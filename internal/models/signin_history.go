package models

import "time"

// SignInHistory is an append-only record of a sign-in attempt.
// Rows are never mutated or deleted; anomaly detection reads them
// as a rolling window.
type SignInHistory struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID        uint64 `gorm:"not null;index;default:0"` // Owning user, 0 when the account was not found.
	IP            string `gorm:"type:text"`                // Client IP of the attempt.
	UserAgent     string `gorm:"type:text"`                // Client user agent.
	Success       bool   `gorm:"not null"`                 // Whether the attempt succeeded.
	FailureReason string `gorm:"type:text"`                // Reason recorded for failed attempts.

	CreatedAt time.Time `gorm:"not null;index;autoCreateTime"` // Attempt timestamp.
}
