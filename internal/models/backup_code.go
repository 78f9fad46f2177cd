package models

import "time"

// BackupCode is one of a batch of single-use two-factor recovery codes.
type BackupCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`     // Owning user.
	Code   string `gorm:"type:text;not null"` // 8 uppercase hex characters.
	Used   bool   `gorm:"not null;default:false"` // Set once the code is consumed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
