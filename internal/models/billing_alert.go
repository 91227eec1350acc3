package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Alert types and levels.
const (
	AlertTypeLowBalance          = "low_balance"
	AlertTypeInsufficientBalance = "insufficient_balance"

	AlertLevelWarning  = "warning"
	AlertLevelCritical = "critical"
)

// BillingAlert records one low-balance condition observed on a provider
// pool. Alert history is never deleted; resolution only marks rows resolved.
type BillingAlert struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID uint64 `gorm:"not null;index"`     // Affected provider.
	AlertType  string `gorm:"type:text;not null"` // low_balance or insufficient_balance.
	AlertLevel string `gorm:"type:text;not null"` // warning or critical.

	BalancePercentage decimal.Decimal `gorm:"type:decimal(18,6);not null"` // Available/total percent at alert time.
	BalanceAmount     decimal.Decimal `gorm:"type:decimal(18,6);not null"` // Available balance at alert time.

	IsResolved bool       `gorm:"not null;default:false;index"` // Whether the alert has been resolved.
	ResolvedBy uint64     `gorm:"not null;default:0"`           // Admin who resolved the alert.
	ResolvedAt *time.Time // Resolution time, if resolved.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Alert creation time.
}

// TableName overrides the default table name.
func (BillingAlert) TableName() string {
	return "billing_alert"
}
