package models

import (
	"time"
)

// Roles assignable to a user account.
const (
	// RoleAdmin grants full access to every resource.
	RoleAdmin = "admin"
	// RoleManager grants full CRM access plus read-level user management.
	RoleManager = "manager"
	// RoleRep grants CRM access restricted to owned records.
	RoleRep = "rep"
)

// User represents a CRM account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:text;not null"`             // Display name.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Unique login email.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	Role   string `gorm:"type:text;not null;default:'rep'"` // admin, manager or rep.
	Active bool   `gorm:"not null;default:true"`            // Whether the account can sign in.

	EmailVerifiedAt *time.Time `gorm:"type:timestamp"` // Null until the email is verified.

	TwoFactorEnabled bool   `gorm:"not null;default:false"` // Whether TOTP is required at sign-in.
	TwoFactorSecret  string `gorm:"type:text"`              // TOTP secret, set only while enabled.

	LastSignInIP string     `gorm:"type:text"`      // IP of the most recent successful sign-in.
	LastSignInAt *time.Time `gorm:"type:timestamp"` // Time of the most recent successful sign-in.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// EmailVerified reports whether the account's email has been verified.
func (u User) EmailVerified() bool { return u.EmailVerifiedAt != nil }
