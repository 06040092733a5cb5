package database

import (
	"fmt"

	"github.com/lamontai/lamontai/pkg/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all application models
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Settings{},
		&models.BusinessProfile{},
		&models.Competitor{},
		&models.Article{},
		&models.ContentPlanItem{},
		&models.Subscription{},
		&models.UsageRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
