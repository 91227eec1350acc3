package models

import "time"

// Quota resource kinds.
const (
	QuotaKindTextToken = "text_token"
	QuotaKindImage     = "image"
	QuotaKindAudio     = "audio"
	QuotaKindVideo     = "video"
)

// QuotaKinds lists every resource kind a user quota row tracks.
var QuotaKinds = []string{QuotaKindTextToken, QuotaKindImage, QuotaKindAudio, QuotaKindVideo}

// UserQuota tracks the two-tier quota counters for one user across all
// resource kinds. The monthly tier is a renewable allowance; the permanent
// tier is banked credit that never resets.
//
// Invariant for every tier: 0 <= used <= quota.
type UserQuota struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user, one row per user.

	TextTokenMonthlyQuota int64 `gorm:"not null;default:0"` // Monthly text token allowance.
	TextTokenMonthlyUsed  int64 `gorm:"not null;default:0"` // Text tokens consumed from the monthly tier.
	TextTokenTotal        int64 `gorm:"not null;default:0"` // Banked text token credit.
	TextTokenUsed         int64 `gorm:"not null;default:0"` // Text tokens consumed from the bank.

	ImageMonthlyQuota int64 `gorm:"not null;default:0"` // Monthly image allowance.
	ImageMonthlyUsed  int64 `gorm:"not null;default:0"` // Images consumed from the monthly tier.
	ImageTotal        int64 `gorm:"not null;default:0"` // Banked image credit.
	ImageUsed         int64 `gorm:"not null;default:0"` // Images consumed from the bank.

	AudioMonthlyQuota int64 `gorm:"not null;default:0"` // Monthly audio allowance.
	AudioMonthlyUsed  int64 `gorm:"not null;default:0"` // Audio units consumed from the monthly tier.
	AudioTotal        int64 `gorm:"not null;default:0"` // Banked audio credit.
	AudioUsed         int64 `gorm:"not null;default:0"` // Audio units consumed from the bank.

	VideoMonthlyQuota int64 `gorm:"not null;default:0"` // Monthly video allowance.
	VideoMonthlyUsed  int64 `gorm:"not null;default:0"` // Video units consumed from the monthly tier.
	VideoTotal        int64 `gorm:"not null;default:0"` // Banked video credit.
	VideoUsed         int64 `gorm:"not null;default:0"` // Video units consumed from the bank.

	LastResetDate *time.Time // Date of the last monthly reset.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (UserQuota) TableName() string {
	return "user_quota"
}
