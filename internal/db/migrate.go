package db

import (
	"fmt"

	"github.com/compass-crm/compasscrm/internal/models"
	"gorm.io/gorm"
)

// Migrate applies the schema for all persisted models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.VerificationToken{},
		&models.BackupCode{},
		&models.SignInHistory{},
		&models.Company{},
		&models.Contact{},
		&models.Deal{},
		&models.Task{},
		&models.Activity{},
	)
}
