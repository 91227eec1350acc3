package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AICostDaily is one materialized rollup row per (date, provider, model,
// usage type). Rows are rebuildable from ai_usage_record and safe to delete
// and regenerate.
type AICostDaily struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	StatDate   time.Time `gorm:"type:date;not null;uniqueIndex:idx_cost_daily_key"`                 // Aggregated calendar day.
	ProviderID uint64    `gorm:"not null;uniqueIndex:idx_cost_daily_key"`                           // Serving provider.
	ModelID    uint64    `gorm:"not null;uniqueIndex:idx_cost_daily_key"`                           // Invoked model.
	UsageType  string    `gorm:"column:usage_type;type:text;not null;uniqueIndex:idx_cost_daily_key"` // Kind of call.

	TotalUsage int64           `gorm:"not null;default:0"`                    // Type-specific usage total.
	TotalCost  decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"` // Summed cost.
	CallCount  int64           `gorm:"not null;default:0"`                    // Number of successful calls.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (AICostDaily) TableName() string {
	return "ai_cost_daily"
}
