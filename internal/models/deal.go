package models

import "time"

// Deal stages.
const (
	DealStageLead       = "lead"
	DealStageQualified  = "qualified"
	DealStageProposal   = "proposal"
	DealStageWon        = "won"
	DealStageLost       = "lost"
)

// Deal represents a sales opportunity owned by a user.
type Deal struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"` // User the record belongs to.

	Title      string  `gorm:"type:text;not null"`              // Deal title.
	Stage      string  `gorm:"type:text;not null;default:'lead'"` // Pipeline stage.
	ValueCents int64   `gorm:"not null;default:0"`              // Deal value in cents.
	Currency   string  `gorm:"type:text;not null;default:'USD'"` // ISO currency code.
	ContactID  *uint64 `gorm:"index"`                           // Optional primary contact.
	CompanyID  *uint64 `gorm:"index"`                           // Optional company.

	ClosedAt *time.Time `gorm:"type:timestamp"` // Set when the deal is won or lost.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
