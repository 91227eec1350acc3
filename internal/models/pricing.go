package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pricing types understood by the calculator.
const (
	PricingTypeInputToken  = "input_token"
	PricingTypeOutputToken = "output_token"
	PricingTypeImage       = "image"
	PricingTypeAudioTTS    = "audio_tts"
	PricingTypeAudioMinute = "audio_minute"
	PricingTypeVideoSecond = "video_second"
)

// Pricing units. Token prices are quoted per block; the unit names the block size.
const (
	PricingUnitPer1KTokens = "per_1k_tokens"
	PricingUnitPer1MTokens = "per_1m_tokens"
	PricingUnitPerImage    = "per_image"
	PricingUnitPer10KChars = "per_10k_chars"
	PricingUnitPerMinute   = "per_minute"
	PricingUnitPerSecond   = "per_second"
)

// AIModelPricing is one catalog price row for (model, pricing type) within an
// effective-date window. Read-only for the billing engine.
type AIModelPricing struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ModelID     uint64 `gorm:"not null;index:idx_pricing_model_type"`                       // Priced model ID.
	PricingType string `gorm:"column:pricing_type;type:text;not null;index:idx_pricing_model_type"` // Unit kind, e.g. input_token.

	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,6);not null"`           // Price per unit block.
	Unit          string          `gorm:"type:text;not null"`                    // Unit descriptor, may carry a resolution suffix.
	MinChargeUnit decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"` // Minimum billable block count, 0 disables the floor.

	EffectiveDate time.Time  `gorm:"not null;index"` // Start of validity window.
	ExpiryDate    *time.Time // End of validity window, nil means open-ended.

	// No column default, same trap as AIProvider.IsEnabled: a row created
	// with IsActive false must not come back active.
	IsActive bool `gorm:"not null"` // Whether the row participates in lookups.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (AIModelPricing) TableName() string {
	return "ai_model_pricings"
}
