// Package alert derives low-balance alerts from pool state. Repeated monitor
// ticks against the same condition reuse the open alert instead of creating
// a storm of duplicates.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/toybot1981/heartsphere-billing/internal/models"
)

// Engine creates and resolves billing alerts.
type Engine struct {
	db *gorm.DB
}

// NewEngine constructs an alert engine.
func NewEngine(conn *gorm.DB) *Engine {
	return &Engine{db: conn}
}

// CreateLowBalanceAlert raises an alert for the pool's current balance
// percentage. A percentage at or below zero is insufficient_balance/critical,
// anything else low_balance/warning. When an unresolved alert of the same
// type is already open for the provider, that alert is returned and nothing
// new is written.
func (e *Engine) CreateLowBalanceAlert(ctx context.Context, p *models.ProviderResourcePool, percentage decimal.Decimal) (*models.BillingAlert, error) {
	if p == nil {
		return nil, fmt.Errorf("alert: nil pool")
	}

	alertType := models.AlertTypeLowBalance
	alertLevel := models.AlertLevelWarning
	if percentage.LessThanOrEqual(decimal.Zero) {
		alertType = models.AlertTypeInsufficientBalance
		alertLevel = models.AlertLevelCritical
	}

	var open models.BillingAlert
	errFind := e.db.WithContext(ctx).
		Where("provider_id = ? AND is_resolved = ?", p.ProviderID, false).
		Order("created_at DESC, id DESC").
		First(&open).Error
	if errFind == nil && open.AlertType == alertType {
		return &open, nil
	}
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	fresh := models.BillingAlert{
		ProviderID:        p.ProviderID,
		AlertType:         alertType,
		AlertLevel:        alertLevel,
		BalancePercentage: percentage,
		BalanceAmount:     p.AvailableBalance,
	}
	if errCreate := e.db.WithContext(ctx).Create(&fresh).Error; errCreate != nil {
		return nil, errCreate
	}
	log.Warnf("alert: %s raised for provider=%d balance=%s (%s%%)",
		alertType, p.ProviderID, p.AvailableBalance, percentage)
	return &fresh, nil
}

// ResolveAlert marks one alert resolved. Alert history is never deleted.
func (e *Engine) ResolveAlert(ctx context.Context, alertID, resolvedBy uint64) error {
	now := time.Now().UTC()
	res := e.db.WithContext(ctx).
		Model(&models.BillingAlert{}).
		Where("id = ? AND is_resolved = ?", alertID, false).
		Updates(map[string]any{
			"is_resolved": true,
			"resolved_by": resolvedBy,
			"resolved_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
