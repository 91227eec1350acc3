// Package pricing resolves catalog prices and computes the monetary cost of
// one AI call. All arithmetic is fixed-point decimal; results carry six
// fractional digits rounded half-up.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/toybot1981/heartsphere-billing/internal/models"
)

// ErrPricingNotFound indicates no active catalog row exists for the
// requested (model, pricing type) at the current instant.
var ErrPricingNotFound = errors.New("pricing: no active pricing")

// moneyScale is the fractional digit count for all money values.
const moneyScale = 6

// Quantities carries the raw usage amounts of one call.
type Quantities struct {
	InputTokens    int64
	OutputTokens   int64
	ImageCount     int64
	AudioDuration  int64 // seconds
	CharacterCount int64
	VideoDuration  int64 // seconds
	Resolution     string
}

// Service reads the pricing catalog and computes costs. It never writes
// catalog rows.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs a pricing service.
func NewService(conn *gorm.DB) *Service {
	return &Service{db: conn, now: time.Now}
}

// ActivePricing returns the newest active catalog row for (modelID,
// pricingType). A row is active iff is_active, effective_date <= now and
// expiry_date is null or >= now. Duplicate active rows are resolved newest
// effective date first, then highest id.
func (s *Service) ActivePricing(ctx context.Context, modelID uint64, pricingType string) (*models.AIModelPricing, error) {
	var row models.AIModelPricing
	now := s.now()
	errFind := s.db.WithContext(ctx).
		Where("model_id = ? AND pricing_type = ? AND is_active = ?", modelID, pricingType, true).
		Where("effective_date <= ?", now).
		Where("expiry_date IS NULL OR expiry_date >= ?", now).
		Order("effective_date DESC, id DESC").
		First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: model=%d type=%s", ErrPricingNotFound, modelID, pricingType)
		}
		return nil, errFind
	}
	return &row, nil
}

// videoPricing prefers an active video row whose unit carries the requested
// resolution suffix, falling back to the plain per-second row.
func (s *Service) videoPricing(ctx context.Context, modelID uint64, resolution string) (*models.AIModelPricing, error) {
	resolution = strings.TrimSpace(strings.ToLower(resolution))
	if resolution != "" {
		var rows []models.AIModelPricing
		now := s.now()
		errFind := s.db.WithContext(ctx).
			Where("model_id = ? AND pricing_type = ? AND is_active = ?", modelID, models.PricingTypeVideoSecond, true).
			Where("effective_date <= ?", now).
			Where("expiry_date IS NULL OR expiry_date >= ?", now).
			Order("effective_date DESC, id DESC").
			Find(&rows).Error
		if errFind != nil {
			return nil, errFind
		}
		for i := range rows {
			if strings.Contains(strings.ToLower(rows[i].Unit), resolution) {
				return &rows[i], nil
			}
		}
	}
	return s.ActivePricing(ctx, modelID, models.PricingTypeVideoSecond)
}

// Cost computes the monetary cost of one call from its raw quantities.
// Unknown usage types cost zero; a missing catalog row is reported as
// ErrPricingNotFound and the call must not be charged.
func (s *Service) Cost(ctx context.Context, modelID uint64, usageType string, q Quantities) (decimal.Decimal, error) {
	switch usageType {
	case models.UsageTypeTextGeneration:
		return s.textCost(ctx, modelID, q.InputTokens, q.OutputTokens)
	case models.UsageTypeImageGeneration:
		return s.imageCost(ctx, modelID, q.ImageCount)
	case models.UsageTypeAudioTTS:
		return s.ttsCost(ctx, modelID, q.CharacterCount)
	case models.UsageTypeAudioSTT:
		return s.sttCost(ctx, modelID, q.AudioDuration)
	case models.UsageTypeVideoGeneration:
		return s.videoCost(ctx, modelID, q.VideoDuration, q.Resolution)
	default:
		log.Warnf("pricing: unknown usage type %q, charging zero", usageType)
		return decimal.Zero, nil
	}
}

// textCost prices input and output tokens independently and sums them.
func (s *Service) textCost(ctx context.Context, modelID uint64, inputTokens, outputTokens int64) (decimal.Decimal, error) {
	total := decimal.Zero

	if inputTokens > 0 {
		row, errPricing := s.ActivePricing(ctx, modelID, models.PricingTypeInputToken)
		if errPricing != nil {
			return decimal.Zero, errPricing
		}
		total = total.Add(tokenBlockCost(row, inputTokens))
	}
	if outputTokens > 0 {
		row, errPricing := s.ActivePricing(ctx, modelID, models.PricingTypeOutputToken)
		if errPricing != nil {
			return decimal.Zero, errPricing
		}
		total = total.Add(tokenBlockCost(row, outputTokens))
	}

	return total.Round(moneyScale), nil
}

// tokenBlockCost charges per full or partial token block, ceiling to the
// next block, then applies the catalog's minimum-charge floor.
func tokenBlockCost(row *models.AIModelPricing, tokens int64) decimal.Decimal {
	blockSize := int64(1000)
	if strings.HasPrefix(row.Unit, models.PricingUnitPer1MTokens) {
		blockSize = 1_000_000
	}
	blocks := decimal.NewFromInt(tokens).Div(decimal.NewFromInt(blockSize)).Ceil()
	blocks = applyMinCharge(blocks, row.MinChargeUnit)
	return row.UnitPrice.Mul(blocks)
}

// imageCost is linear per generated image.
func (s *Service) imageCost(ctx context.Context, modelID uint64, imageCount int64) (decimal.Decimal, error) {
	if imageCount <= 0 {
		return decimal.Zero, nil
	}
	row, errPricing := s.ActivePricing(ctx, modelID, models.PricingTypeImage)
	if errPricing != nil {
		return decimal.Zero, errPricing
	}
	return row.UnitPrice.Mul(decimal.NewFromInt(imageCount)).Round(moneyScale), nil
}

// ttsCost charges synthesized characters per full or partial 10k-character
// block with the minimum-charge floor applied.
func (s *Service) ttsCost(ctx context.Context, modelID uint64, characterCount int64) (decimal.Decimal, error) {
	if characterCount <= 0 {
		return decimal.Zero, nil
	}
	row, errPricing := s.ActivePricing(ctx, modelID, models.PricingTypeAudioTTS)
	if errPricing != nil {
		return decimal.Zero, errPricing
	}
	blocks := decimal.NewFromInt(characterCount).Div(decimal.NewFromInt(10_000)).Ceil()
	blocks = applyMinCharge(blocks, row.MinChargeUnit)
	return row.UnitPrice.Mul(blocks).Round(moneyScale), nil
}

// sttCost charges audio duration per whole minute, ceiling.
func (s *Service) sttCost(ctx context.Context, modelID uint64, durationSeconds int64) (decimal.Decimal, error) {
	if durationSeconds <= 0 {
		return decimal.Zero, nil
	}
	row, errPricing := s.ActivePricing(ctx, modelID, models.PricingTypeAudioMinute)
	if errPricing != nil {
		return decimal.Zero, errPricing
	}
	minutes := decimal.NewFromInt(durationSeconds).Div(decimal.NewFromInt(60)).Ceil()
	return row.UnitPrice.Mul(minutes).Round(moneyScale), nil
}

// videoCost is linear per second with no rounding of the duration.
func (s *Service) videoCost(ctx context.Context, modelID uint64, durationSeconds int64, resolution string) (decimal.Decimal, error) {
	if durationSeconds <= 0 {
		return decimal.Zero, nil
	}
	row, errPricing := s.videoPricing(ctx, modelID, resolution)
	if errPricing != nil {
		return decimal.Zero, errPricing
	}
	return row.UnitPrice.Mul(decimal.NewFromInt(durationSeconds)).Round(moneyScale), nil
}

func applyMinCharge(blocks, minCharge decimal.Decimal) decimal.Decimal {
	if minCharge.IsPositive() && blocks.LessThan(minCharge) {
		return minCharge
	}
	return blocks
}
