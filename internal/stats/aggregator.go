// Package stats rolls raw usage rows up into ai_cost_daily. The rollup is a
// derived materialization: re-running any date overwrites the prior rows
// instead of duplicating them, so backfills are always safe.
package stats

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/toybot1981/heartsphere-billing/internal/models"
)

// Aggregator computes daily cost statistics from the usage log.
type Aggregator struct {
	db *gorm.DB
}

// NewAggregator constructs a cost aggregator.
func NewAggregator(conn *gorm.DB) *Aggregator {
	return &Aggregator{db: conn}
}

// groupKey identifies one rollup row within a day.
type groupKey struct {
	ProviderID uint64
	ModelID    uint64
	UsageType  string
}

type groupTotals struct {
	usage     int64
	cost      decimal.Decimal
	callCount int64
}

// AggregateForDate rolls up all successful usage records of one UTC calendar
// day. The day window is closed on the left and open on the right, so
// in-flight writes for a later day never leak into a backfill.
func (a *Aggregator) AggregateForDate(ctx context.Context, date time.Time) error {
	day := startOfDay(date)
	next := day.Add(24 * time.Hour)

	var records []models.AIUsageRecord
	if errFind := a.db.WithContext(ctx).
		Where("status = ?", models.UsageStatusSuccess).
		Where("created_at >= ? AND created_at < ?", day, next).
		Find(&records).Error; errFind != nil {
		return errFind
	}
	if len(records) == 0 {
		log.Debugf("stats: no usage records for %s, skipping", day.Format("2006-01-02"))
		return nil
	}

	groups := make(map[groupKey]*groupTotals)
	for i := range records {
		record := &records[i]
		key := groupKey{ProviderID: record.ProviderID, ModelID: record.ModelID, UsageType: record.UsageType}
		totals, ok := groups[key]
		if !ok {
			totals = &groupTotals{cost: decimal.Zero}
			groups[key] = totals
		}
		totals.usage += usageAmount(record)
		totals.cost = totals.cost.Add(record.CostAmount)
		totals.callCount++
	}

	for key, totals := range groups {
		row := models.AICostDaily{
			StatDate:   day,
			ProviderID: key.ProviderID,
			ModelID:    key.ModelID,
			UsageType:  key.UsageType,
			TotalUsage: totals.usage,
			TotalCost:  totals.cost,
			CallCount:  totals.callCount,
		}
		if errUpsert := a.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "stat_date"}, {Name: "provider_id"}, {Name: "model_id"}, {Name: "usage_type"},
				},
				DoUpdates: clause.AssignmentColumns([]string{"total_usage", "total_cost", "call_count", "updated_at"}),
			}).
			Create(&row).Error; errUpsert != nil {
			return errUpsert
		}
	}

	log.Infof("stats: aggregated %s: %d records into %d rollup rows",
		day.Format("2006-01-02"), len(records), len(groups))
	return nil
}

// AggregateRange rolls up every day in [start, end]. A failed day is logged
// and skipped; the remaining days still run.
func (a *Aggregator) AggregateRange(ctx context.Context, start, end time.Time) error {
	for day := startOfDay(start); !day.After(startOfDay(end)); day = day.Add(24 * time.Hour) {
		if errDay := a.AggregateForDate(ctx, day); errDay != nil {
			log.WithError(errDay).Warnf("stats: aggregation failed for %s, continuing", day.Format("2006-01-02"))
		}
	}
	return nil
}

// AggregateRecentDays backfills the previous n calendar days.
func (a *Aggregator) AggregateRecentDays(ctx context.Context, days int) error {
	now := time.Now().UTC()
	return a.AggregateRange(ctx, now.AddDate(0, 0, -days), now.AddDate(0, 0, -1))
}

// usageAmount picks the type-specific usage measure of one record.
func usageAmount(record *models.AIUsageRecord) int64 {
	switch record.UsageType {
	case models.UsageTypeTextGeneration:
		return record.TotalTokens
	case models.UsageTypeImageGeneration:
		return record.ImageCount
	case models.UsageTypeAudioTTS, models.UsageTypeAudioSTT:
		return record.AudioDuration
	case models.UsageTypeVideoGeneration:
		return record.VideoDuration
	default:
		return record.TotalTokens
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
