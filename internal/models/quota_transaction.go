package models

import "time"

// Quota transaction types.
const (
	QuotaTransactionGrant   = "grant"
	QuotaTransactionConsume = "consume"
)

// QuotaTransaction is one append-only quota ledger entry. Rows are never
// updated or deleted; the user_quota counters must stay reconstructible from
// this log.
type QuotaTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64 `gorm:"not null;index"`                       // Affected user.
	QuotaType string `gorm:"column:quota_type;type:text;not null"` // Resource kind.

	Amount          int64  `gorm:"not null"`           // Signed quota delta, positive for grants.
	TransactionType string `gorm:"type:text;not null"` // grant or consume.
	BalanceAfter    int64  `gorm:"not null"`           // Total available balance after the event.

	Source      string  `gorm:"type:text"` // Origin of a grant, e.g. "subscription".
	ReferenceID *uint64 ``                 // Related row in the source system, if any.
	Description string  `gorm:"type:text"` // Free-form remark.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Event timestamp.
}

// TableName overrides the default table name.
func (QuotaTransaction) TableName() string {
	return "quota_transaction"
}
