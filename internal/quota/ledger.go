// Package quota implements the per-user two-tier quota ledger. Consumption
// drains the monthly allowance first and spills into banked permanent credit;
// every grant and consume event lands in the append-only transaction log.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbutil "github.com/toybot1981/heartsphere-billing/internal/db"
	"github.com/toybot1981/heartsphere-billing/internal/models"
)

// ErrUnknownQuotaKind indicates a resource kind the ledger does not track.
var ErrUnknownQuotaKind = errors.New("quota: unknown resource kind")

// Ledger maintains user quota rows and their transaction log.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a quota ledger.
func NewLedger(conn *gorm.DB) *Ledger {
	return &Ledger{db: conn}
}

// counters points at the four tier counters of one resource kind inside a
// UserQuota row.
type counters struct {
	monthlyQuota *int64
	monthlyUsed  *int64
	total        *int64
	used         *int64
}

func countersFor(quota *models.UserQuota, kind string) (counters, error) {
	switch kind {
	case models.QuotaKindTextToken:
		return counters{&quota.TextTokenMonthlyQuota, &quota.TextTokenMonthlyUsed, &quota.TextTokenTotal, &quota.TextTokenUsed}, nil
	case models.QuotaKindImage:
		return counters{&quota.ImageMonthlyQuota, &quota.ImageMonthlyUsed, &quota.ImageTotal, &quota.ImageUsed}, nil
	case models.QuotaKindAudio:
		return counters{&quota.AudioMonthlyQuota, &quota.AudioMonthlyUsed, &quota.AudioTotal, &quota.AudioUsed}, nil
	case models.QuotaKindVideo:
		return counters{&quota.VideoMonthlyQuota, &quota.VideoMonthlyUsed, &quota.VideoTotal, &quota.VideoUsed}, nil
	default:
		return counters{}, fmt.Errorf("%w: %s", ErrUnknownQuotaKind, kind)
	}
}

func (c counters) monthlyRemaining() int64 {
	return *c.monthlyQuota - *c.monthlyUsed
}

func (c counters) permanentRemaining() int64 {
	return *c.total - *c.used
}

func (c counters) available() int64 {
	return c.monthlyRemaining() + c.permanentRemaining()
}

// GetOrCreate returns the quota row for userID, creating an empty one on
// first use. Creation races are resolved by the unique user_id constraint:
// the loser's insert is a no-op and the winner's row is re-read.
func (l *Ledger) GetOrCreate(ctx context.Context, userID uint64) (*models.UserQuota, error) {
	return getOrCreate(ctx, l.db, userID)
}

func getOrCreate(ctx context.Context, tx *gorm.DB, userID uint64) (*models.UserQuota, error) {
	var quota models.UserQuota
	errFind := tx.WithContext(ctx).Where("user_id = ?", userID).First(&quota).Error
	if errFind == nil {
		return &quota, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	now := time.Now().UTC()
	resetDate := now
	fresh := models.UserQuota{UserID: userID, LastResetDate: &resetDate}
	if errCreate := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&fresh).Error; errCreate != nil {
		return nil, errCreate
	}

	if errReread := tx.WithContext(ctx).Where("user_id = ?", userID).First(&quota).Error; errReread != nil {
		return nil, errReread
	}
	return &quota, nil
}

// HasEnoughQuota reports whether the summed monthly and permanent remainder
// covers amount. The answer is advisory; ConsumeQuota re-validates under the
// row lock.
func (l *Ledger) HasEnoughQuota(ctx context.Context, userID uint64, kind string, amount int64) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	quota, errGet := l.GetOrCreate(ctx, userID)
	if errGet != nil {
		return false, errGet
	}
	c, errKind := countersFor(quota, kind)
	if errKind != nil {
		return false, errKind
	}
	return c.available() >= amount, nil
}

// ConsumeQuota deducts amount from the user's quota, monthly tier first.
// The availability check and the deduction run under an exclusive lock on
// the user's row, so concurrent consumers cannot both spend the same
// balance. Returns false without error when the balance is short; nothing
// is applied partially.
func (l *Ledger) ConsumeQuota(ctx context.Context, userID uint64, kind string, amount int64) (bool, error) {
	if amount <= 0 {
		return true, nil
	}

	consumed := false
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quota, errLock := lockQuotaRow(ctx, tx, userID)
		if errLock != nil {
			return errLock
		}

		c, errKind := countersFor(quota, kind)
		if errKind != nil {
			return errKind
		}

		// Re-check under the lock: a concurrent consumer may have drained
		// the balance since the caller's advisory check.
		if c.available() < amount {
			log.Warnf("quota: insufficient balance: user=%d kind=%s requested=%d available=%d",
				userID, kind, amount, c.available())
			return nil
		}

		monthlyRemaining := c.monthlyRemaining()
		if monthlyRemaining >= amount {
			*c.monthlyUsed += amount
		} else {
			*c.monthlyUsed = *c.monthlyQuota
			*c.used += amount - monthlyRemaining
		}

		if errSave := saveCounters(ctx, tx, quota); errSave != nil {
			return errSave
		}

		if errRecord := appendTransaction(ctx, tx, &models.QuotaTransaction{
			UserID:          userID,
			QuotaType:       kind,
			Amount:          amount,
			TransactionType: models.QuotaTransactionConsume,
			BalanceAfter:    c.available(),
			Description:     "AI service usage",
		}); errRecord != nil {
			return errRecord
		}

		consumed = true
		return nil
	})
	if errTx != nil {
		return false, errTx
	}
	return consumed, nil
}

// GrantQuota adds amount to the permanent tier and records a grant
// transaction. Monthly allowances are replenished by the reset path, never
// by grants.
func (l *Ledger) GrantQuota(ctx context.Context, userID uint64, kind string, amount int64, source string, referenceID *uint64, description string) error {
	if amount <= 0 {
		return fmt.Errorf("quota: grant amount must be positive, got %d", amount)
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quota, errLock := lockQuotaRow(ctx, tx, userID)
		if errLock != nil {
			return errLock
		}

		c, errKind := countersFor(quota, kind)
		if errKind != nil {
			return errKind
		}

		*c.total += amount

		if errSave := saveCounters(ctx, tx, quota); errSave != nil {
			return errSave
		}

		return appendTransaction(ctx, tx, &models.QuotaTransaction{
			UserID:          userID,
			QuotaType:       kind,
			Amount:          amount,
			TransactionType: models.QuotaTransactionGrant,
			BalanceAfter:    c.available(),
			Source:          source,
			ReferenceID:     referenceID,
			Description:     description,
		})
	})
}

// ResetMonthlyUsed zeroes every monthly-tier used counter for the user and
// stamps the reset date. Permanent-tier counters are untouched.
func (l *Ledger) ResetMonthlyUsed(ctx context.Context, userID uint64) error {
	now := time.Now().UTC()
	res := l.db.WithContext(ctx).
		Model(&models.UserQuota{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"text_token_monthly_used": 0,
			"image_monthly_used":      0,
			"audio_monthly_used":      0,
			"video_monthly_used":      0,
			"last_reset_date":         now,
			"updated_at":              now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// lockQuotaRow reads the user's quota row for update, creating it first when
// absent so the lock always lands on a real row.
func lockQuotaRow(ctx context.Context, tx *gorm.DB, userID uint64) (*models.UserQuota, error) {
	var quota models.UserQuota
	errFind := dbutil.ForUpdate(tx.WithContext(ctx)).
		Where("user_id = ?", userID).
		First(&quota).Error
	if errFind == nil {
		return &quota, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	if _, errCreate := getOrCreate(ctx, tx, userID); errCreate != nil {
		return nil, errCreate
	}
	if errReread := dbutil.ForUpdate(tx.WithContext(ctx)).
		Where("user_id = ?", userID).
		First(&quota).Error; errReread != nil {
		return nil, errReread
	}
	return &quota, nil
}

func saveCounters(ctx context.Context, tx *gorm.DB, quota *models.UserQuota) error {
	return tx.WithContext(ctx).
		Model(&models.UserQuota{}).
		Where("id = ?", quota.ID).
		Updates(map[string]any{
			"text_token_monthly_used":  quota.TextTokenMonthlyUsed,
			"text_token_monthly_quota": quota.TextTokenMonthlyQuota,
			"text_token_total":         quota.TextTokenTotal,
			"text_token_used":          quota.TextTokenUsed,
			"image_monthly_used":       quota.ImageMonthlyUsed,
			"image_monthly_quota":      quota.ImageMonthlyQuota,
			"image_total":              quota.ImageTotal,
			"image_used":               quota.ImageUsed,
			"audio_monthly_used":       quota.AudioMonthlyUsed,
			"audio_monthly_quota":      quota.AudioMonthlyQuota,
			"audio_total":              quota.AudioTotal,
			"audio_used":               quota.AudioUsed,
			"video_monthly_used":       quota.VideoMonthlyUsed,
			"video_monthly_quota":      quota.VideoMonthlyQuota,
			"video_total":              quota.VideoTotal,
			"video_used":               quota.VideoUsed,
			"updated_at":               time.Now().UTC(),
		}).Error
}

func appendTransaction(ctx context.Context, tx *gorm.DB, row *models.QuotaTransaction) error {
	return tx.WithContext(ctx).Create(row).Error
}
