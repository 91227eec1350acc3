package db

import (
	"fmt"

	"github.com/toybot1981/heartsphere-billing/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the billing schema.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.AIProvider{},
		&models.AIModelPricing{},
		&models.UserQuota{},
		&models.QuotaTransaction{},
		&models.ProviderResourcePool{},
		&models.ResourcePoolRecharge{},
		&models.AIUsageRecord{},
		&models.AICostDaily{},
		&models.BillingAlert{},
	)
}
