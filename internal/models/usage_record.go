package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Usage types a billable call reports.
const (
	UsageTypeTextGeneration  = "text_generation"
	UsageTypeImageGeneration = "image_generation"
	UsageTypeAudioTTS        = "audio_tts"
	UsageTypeAudioSTT        = "audio_stt"
	UsageTypeVideoGeneration = "video_generation"
)

// Usage record statuses.
const (
	UsageStatusSuccess = "success"
	UsageStatusFailed  = "failed"
)

// AIUsageRecord is the immutable record of one AI call attempt, billable or
// not. It is the single source of truth for the daily cost rollup.
type AIUsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID     uint64 `gorm:"not null;index"`                       // Calling user.
	ProviderID uint64 `gorm:"not null;index"`                       // Serving provider.
	ModelID    uint64 `gorm:"not null;index"`                       // Invoked model.
	UsageType  string `gorm:"column:usage_type;type:text;not null"` // Kind of call.

	InputTokens    int64 `gorm:"not null;default:0"` // Prompt tokens.
	OutputTokens   int64 `gorm:"not null;default:0"` // Completion tokens.
	TotalTokens    int64 `gorm:"not null;default:0"` // Total tokens.
	ImageCount     int64 `gorm:"not null;default:0"` // Generated image count.
	AudioDuration  int64 `gorm:"not null;default:0"` // Audio duration in seconds.
	VideoDuration  int64 `gorm:"not null;default:0"` // Video duration in seconds.
	CharacterCount int64 `gorm:"not null;default:0"` // Synthesized character count for TTS.

	CostAmount    decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0"` // Monetary cost of the call.
	TokenConsumed int64           `gorm:"not null;default:0"`                    // Quota units charged to the user.

	Status       string         `gorm:"type:text;not null;index"` // success or failed.
	RequestID    string         `gorm:"type:text;index"`          // Caller-supplied or generated request ID.
	ErrorMessage string         `gorm:"type:text"`                // Upstream error text for failed calls.
	ErrorDetail  datatypes.JSON `gorm:"type:jsonb"`               // Structured error detail JSON.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Call timestamp.
}

// TableName overrides the default table name.
func (AIUsageRecord) TableName() string {
	return "ai_usage_record"
}
