// Package usage appends the immutable record of every AI call attempt. The
// log is the system of record for audit and the sole input of the daily cost
// rollup.
package usage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/toybot1981/heartsphere-billing/internal/models"
	"github.com/toybot1981/heartsphere-billing/internal/pricing"
)

// Entry carries everything known about one call attempt.
type Entry struct {
	UserID     uint64
	ProviderID uint64
	ModelID    uint64
	UsageType  string

	Quantities pricing.Quantities

	CostAmount    decimal.Decimal
	TokenConsumed int64

	Status       string
	RequestID    string
	ErrorMessage string
	ErrorDetail  map[string]any

	RequestedAt time.Time
}

// Recorder persists usage entries.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a usage recorder.
func NewRecorder(conn *gorm.DB) *Recorder {
	return &Recorder{db: conn}
}

// Record appends one usage row. Rows are never updated afterwards. A missing
// request ID gets a generated UUID so every attempt stays addressable.
func (r *Recorder) Record(ctx context.Context, entry Entry) (*models.AIUsageRecord, error) {
	requestID := strings.TrimSpace(entry.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	status := entry.Status
	if status == "" {
		status = models.UsageStatusSuccess
	}

	totalTokens := entry.Quantities.InputTokens + entry.Quantities.OutputTokens

	var errorDetail datatypes.JSON
	if len(entry.ErrorDetail) > 0 {
		if raw, errMarshal := json.Marshal(entry.ErrorDetail); errMarshal == nil {
			errorDetail = raw
		}
	}

	createdAt := entry.RequestedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := models.AIUsageRecord{
		UserID:         entry.UserID,
		ProviderID:     entry.ProviderID,
		ModelID:        entry.ModelID,
		UsageType:      entry.UsageType,
		InputTokens:    entry.Quantities.InputTokens,
		OutputTokens:   entry.Quantities.OutputTokens,
		TotalTokens:    totalTokens,
		ImageCount:     entry.Quantities.ImageCount,
		AudioDuration:  entry.Quantities.AudioDuration,
		VideoDuration:  entry.Quantities.VideoDuration,
		CharacterCount: entry.Quantities.CharacterCount,
		CostAmount:     entry.CostAmount,
		TokenConsumed:  entry.TokenConsumed,
		Status:         status,
		RequestID:      requestID,
		ErrorMessage:   entry.ErrorMessage,
		ErrorDetail:    errorDetail,
		CreatedAt:      createdAt,
	}
	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, errCreate
	}
	return &row, nil
}
