package models

import "time"

// AIProvider identifies an upstream AI vendor the platform buys capacity from.
//
// The billing engine only reads provider rows; creation and management belong
// to the admin surface.
type AIProvider struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:text;not null;uniqueIndex"` // Machine name, e.g. "openai".
	DisplayName string `gorm:"type:text;not null"`             // Human-readable name.

	// No column default: gorm omits zero-valued fields that carry one on
	// Create, which would silently persist a disabled provider as enabled.
	IsEnabled bool `gorm:"not null"` // Whether the provider is in service.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (AIProvider) TableName() string {
	return "ai_providers"
}
