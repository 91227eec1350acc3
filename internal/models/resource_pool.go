package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProviderResourcePool tracks the platform's prepaid balance with one
// provider. AvailableBalance is stored redundantly for fast reads and must
// always equal TotalBalance - UsedAmount, clamped at zero on deduction.
type ProviderResourcePool struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID uint64 `gorm:"not null;uniqueIndex"` // Owning provider, one pool per provider.

	TotalBalance     decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"` // Lifetime recharged amount.
	UsedAmount       decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"` // Lifetime consumed amount.
	AvailableBalance decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"` // Remaining balance, never negative.

	WarningThreshold decimal.Decimal `gorm:"type:decimal(18,6);not null;default:20"` // Low-balance threshold in percent.
	IsLowBalance     bool            `gorm:"not null;default:false"`                 // Whether the pool is below threshold.

	LastRechargeAt *time.Time // Time of the most recent recharge.
	LastCheckAt    *time.Time // Time of the most recent monitor check.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (ProviderResourcePool) TableName() string {
	return "provider_resource_pool"
}
