package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recharge types.
const (
	RechargeTypeManual    = "manual"
	RechargeTypeAutomated = "automated"
)

// ResourcePoolRecharge is one append-only recharge ledger entry for a
// provider pool, the pool counterpart of QuotaTransaction.
type ResourcePoolRecharge struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID uint64 `gorm:"not null;index"` // Recharged provider.

	Amount        decimal.Decimal `gorm:"type:decimal(18,6);not null"` // Recharge amount.
	BalanceBefore decimal.Decimal `gorm:"type:decimal(18,6);not null"` // Available balance before.
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,6);not null"` // Available balance after.

	RechargeType string `gorm:"type:text;not null"` // manual or automated.
	OperatorID   uint64 `gorm:"not null;default:0"` // Admin who triggered a manual recharge.
	Remark       string `gorm:"type:text"`          // Free-form remark.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Event timestamp.
}

// TableName overrides the default table name.
func (ResourcePoolRecharge) TableName() string {
	return "resource_pool_recharge"
}
