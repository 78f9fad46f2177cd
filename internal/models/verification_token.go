package models

import "time"

// Purposes a verification token can serve.
const (
	// TokenPurposeEmailVerify marks tokens issued for signup email verification.
	TokenPurposeEmailVerify = "email_verify"
	// TokenPurposePasswordReset marks tokens issued for password resets.
	TokenPurposePasswordReset = "password_reset"
)

// VerificationToken is a single-use token bound to an account email.
type VerificationToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Token      string    `gorm:"type:text;not null;uniqueIndex"` // Opaque random token string.
	Identifier string    `gorm:"type:text;not null;index"`       // Account email the token is bound to.
	Purpose    string    `gorm:"type:text;not null"`             // email_verify or password_reset.
	ExpiresAt  time.Time `gorm:"not null"`                       // Hard expiry; expired tokens are deleted on read.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Expired reports whether the token is past its expiry at the given time.
func (t VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
