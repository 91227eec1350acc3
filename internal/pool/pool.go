// Package pool tracks each provider's prepaid balance. Deduction is a
// best-effort additive update clamped at zero; a depleted pool never blocks
// the originating call, it only feeds the monitor/alert loop.
package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbutil "github.com/toybot1981/heartsphere-billing/internal/db"
	"github.com/toybot1981/heartsphere-billing/internal/models"
)

// DefaultWarningThreshold is the low-balance threshold percent applied to
// lazily created pools.
var DefaultWarningThreshold = decimal.NewFromInt(20)

// Service maintains provider resource pools and their recharge ledger.
type Service struct {
	db               *gorm.DB
	warningThreshold decimal.Decimal
}

// NewService constructs a pool service. A zero warningThreshold falls back
// to DefaultWarningThreshold.
func NewService(conn *gorm.DB, warningThreshold decimal.Decimal) *Service {
	if warningThreshold.IsZero() {
		warningThreshold = DefaultWarningThreshold
	}
	return &Service{db: conn, warningThreshold: warningThreshold}
}

// GetPool returns the pool for providerID, or nil when none exists yet.
func (s *Service) GetPool(ctx context.Context, providerID uint64) (*models.ProviderResourcePool, error) {
	var row models.ProviderResourcePool
	errFind := s.db.WithContext(ctx).Where("provider_id = ?", providerID).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errFind
	}
	return &row, nil
}

// GetOrCreatePool returns the pool for providerID, creating an empty one on
// first use. Creation races resolve through the unique provider_id
// constraint and a re-read.
func (s *Service) GetOrCreatePool(ctx context.Context, providerID uint64) (*models.ProviderResourcePool, error) {
	existing, errGet := s.GetPool(ctx, providerID)
	if errGet != nil {
		return nil, errGet
	}
	if existing != nil {
		return existing, nil
	}

	fresh := models.ProviderResourcePool{
		ProviderID:       providerID,
		WarningThreshold: s.warningThreshold,
	}
	if errCreate := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "provider_id"}}, DoNothing: true}).
		Create(&fresh).Error; errCreate != nil {
		return nil, errCreate
	}

	var row models.ProviderResourcePool
	if errReread := s.db.WithContext(ctx).Where("provider_id = ?", providerID).First(&row).Error; errReread != nil {
		return nil, errReread
	}
	return &row, nil
}

// Recharge adds amount to the pool, clears the low-balance flag, and writes
// one recharge ledger row with before/after snapshots.
func (s *Service) Recharge(ctx context.Context, providerID uint64, amount decimal.Decimal, operatorID uint64, remark string) (*models.ResourcePoolRecharge, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("pool: recharge amount must be positive, got %s", amount)
	}

	if _, errEnsure := s.GetOrCreatePool(ctx, providerID); errEnsure != nil {
		return nil, errEnsure
	}

	var record models.ResourcePoolRecharge
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.ProviderResourcePool
		if errLock := dbutil.ForUpdate(tx.WithContext(ctx)).
			Where("provider_id = ?", providerID).
			First(&locked).Error; errLock != nil {
			return errLock
		}

		now := time.Now().UTC()
		balanceBefore := locked.AvailableBalance
		balanceAfter := balanceBefore.Add(amount)

		if errUpdate := tx.WithContext(ctx).
			Model(&models.ProviderResourcePool{}).
			Where("id = ?", locked.ID).
			Updates(map[string]any{
				"total_balance":     locked.TotalBalance.Add(amount),
				"available_balance": balanceAfter,
				"is_low_balance":    false,
				"last_recharge_at":  now,
				"updated_at":        now,
			}).Error; errUpdate != nil {
			return errUpdate
		}

		record = models.ResourcePoolRecharge{
			ProviderID:    providerID,
			Amount:        amount,
			BalanceBefore: balanceBefore,
			BalanceAfter:  balanceAfter,
			RechargeType:  models.RechargeTypeManual,
			OperatorID:    operatorID,
			Remark:        remark,
		}
		return tx.WithContext(ctx).Create(&record).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &record, nil
}

// DeductBalance charges amount against the pool. The update is a single
// additive statement, so concurrent deductions cannot lose each other's
// deltas. An already-depleted pool clamps at zero instead of going negative;
// the call is never rejected at this layer.
func (s *Service) DeductBalance(ctx context.Context, providerID uint64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}

	pool, errEnsure := s.GetOrCreatePool(ctx, providerID)
	if errEnsure != nil {
		return errEnsure
	}
	if pool.AvailableBalance.LessThan(amount) {
		log.Warnf("pool: deduction underflow clamped to zero: provider=%d available=%s amount=%s",
			providerID, pool.AvailableBalance, amount)
	}

	clampExpr := dbutil.GreatestExpr(s.db, "available_balance - ?", "0")
	return s.db.WithContext(ctx).
		Model(&models.ProviderResourcePool{}).
		Where("provider_id = ?", providerID).
		Updates(map[string]any{
			"used_amount":       gorm.Expr("used_amount + ?", amount),
			"available_balance": gorm.Expr(clampExpr, amount),
			"updated_at":        time.Now().UTC(),
		}).Error
}

// BalancePercentage is available/total as a percent, zero when the pool has
// never been funded. The ratio is returned unrounded: zero must mean a truly
// depleted pool, not a tiny residual rounded away. Callers round for display.
func (s *Service) BalancePercentage(p *models.ProviderResourcePool) decimal.Decimal {
	if p == nil || p.TotalBalance.IsZero() {
		return decimal.Zero
	}
	return p.AvailableBalance.Div(p.TotalBalance).Mul(decimal.NewFromInt(100))
}

// CheckBalanceStatus recomputes the low-balance state and persists the flag
// only when it differs from the stored one, stamping the check time with the
// flip. Returns the computed state.
func (s *Service) CheckBalanceStatus(ctx context.Context, p *models.ProviderResourcePool) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("pool: nil pool")
	}
	isLow := s.BalancePercentage(p).LessThanOrEqual(p.WarningThreshold)
	if isLow == p.IsLowBalance {
		return isLow, nil
	}

	now := time.Now().UTC()
	if errUpdate := s.db.WithContext(ctx).
		Model(&models.ProviderResourcePool{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"is_low_balance": isLow,
			"last_check_at":  now,
			"updated_at":     now,
		}).Error; errUpdate != nil {
		return isLow, errUpdate
	}
	p.IsLowBalance = isLow
	p.LastCheckAt = &now
	return isLow, nil
}
