// Package billing wires the quota ledger, pricing calculator, usage log,
// resource pools, alerting and schedulers into one engine. The admin/API
// layer calls into this package; the engine itself exposes no network
// surface.
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/toybot1981/heartsphere-billing/internal/alert"
	"github.com/toybot1981/heartsphere-billing/internal/models"
	"github.com/toybot1981/heartsphere-billing/internal/monitor"
	"github.com/toybot1981/heartsphere-billing/internal/pool"
	"github.com/toybot1981/heartsphere-billing/internal/pricing"
	"github.com/toybot1981/heartsphere-billing/internal/quota"
	"github.com/toybot1981/heartsphere-billing/internal/stats"
	"github.com/toybot1981/heartsphere-billing/internal/usage"
)

// Options tunes engine construction. Zero values select defaults.
type Options struct {
	// MonitorInterval is the pool sweep period. Defaults to 5 minutes.
	MonitorInterval time.Duration
	// WarningThreshold is the low-balance percent applied to new pools.
	WarningThreshold decimal.Decimal
}

// Engine is the billing core. All state lives in the database; the engine
// itself is safe for concurrent use.
type Engine struct {
	db *gorm.DB

	pricing    *pricing.Service
	ledger     *quota.Ledger
	pools      *pool.Service
	alerts     *alert.Engine
	recorder   *usage.Recorder
	aggregator *stats.Aggregator
	monitor    *monitor.Monitor
}

// New constructs a billing engine on an opened database connection.
func New(conn *gorm.DB, opts Options) *Engine {
	pools := pool.NewService(conn, opts.WarningThreshold)
	alerts := alert.NewEngine(conn)
	return &Engine{
		db:         conn,
		pricing:    pricing.NewService(conn),
		ledger:     quota.NewLedger(conn),
		pools:      pools,
		alerts:     alerts,
		recorder:   usage.NewRecorder(conn),
		aggregator: stats.NewAggregator(conn),
		monitor:    monitor.NewMonitor(conn, pools, alerts, opts.MonitorInterval),
	}
}

// StartMonitor launches the background pool sweep. It stops when ctx is
// cancelled.
func (e *Engine) StartMonitor(ctx context.Context) {
	e.monitor.Start(ctx)
}

// CheckQuota reports whether the user can afford amount units of kind.
func (e *Engine) CheckQuota(ctx context.Context, userID uint64, kind string, amount int64) (bool, error) {
	return e.ledger.HasEnoughQuota(ctx, userID, kind, amount)
}

// ConsumeQuota deducts amount units from the user's quota, monthly tier
// first. Returns false when the balance is short; nothing is applied then.
func (e *Engine) ConsumeQuota(ctx context.Context, userID uint64, kind string, amount int64) (bool, error) {
	return e.ledger.ConsumeQuota(ctx, userID, kind, amount)
}

// GrantQuota adds amount units of banked credit to the user.
func (e *Engine) GrantQuota(ctx context.Context, userID uint64, kind string, amount int64, source string, referenceID *uint64, description string) error {
	return e.ledger.GrantQuota(ctx, userID, kind, amount, source, referenceID, description)
}

// ResetMonthlyUsed zeroes the user's monthly-tier consumption.
func (e *Engine) ResetMonthlyUsed(ctx context.Context, userID uint64) error {
	return e.ledger.ResetMonthlyUsed(ctx, userID)
}

// CalculateCost prices raw usage quantities against the catalog.
func (e *Engine) CalculateCost(ctx context.Context, modelID uint64, usageType string, q pricing.Quantities) (decimal.Decimal, error) {
	return e.pricing.Cost(ctx, modelID, usageType, q)
}

// RecordUsage appends one usage row.
func (e *Engine) RecordUsage(ctx context.Context, entry usage.Entry) (*models.AIUsageRecord, error) {
	return e.recorder.Record(ctx, entry)
}

// Recharge funds a provider's resource pool.
func (e *Engine) Recharge(ctx context.Context, providerID uint64, amount decimal.Decimal, operatorID uint64, remark string) (*models.ResourcePoolRecharge, error) {
	return e.pools.Recharge(ctx, providerID, amount, operatorID, remark)
}

// GetPool returns a provider's pool, or nil when none exists yet.
func (e *Engine) GetPool(ctx context.Context, providerID uint64) (*models.ProviderResourcePool, error) {
	return e.pools.GetPool(ctx, providerID)
}

// ResolveAlert marks one billing alert resolved.
func (e *Engine) ResolveAlert(ctx context.Context, alertID, resolvedBy uint64) error {
	return e.alerts.ResolveAlert(ctx, alertID, resolvedBy)
}

// ManualCheck runs one synchronous monitor sweep.
func (e *Engine) ManualCheck(ctx context.Context) error {
	return e.monitor.ManualCheck(ctx)
}

// AggregateForDate rolls up one day of usage into ai_cost_daily.
func (e *Engine) AggregateForDate(ctx context.Context, date time.Time) error {
	return e.aggregator.AggregateForDate(ctx, date)
}

// AggregateRange rolls up every day in [start, end].
func (e *Engine) AggregateRange(ctx context.Context, start, end time.Time) error {
	return e.aggregator.AggregateRange(ctx, start, end)
}

// AggregateYesterday is the nightly scheduler entry point.
func (e *Engine) AggregateYesterday(ctx context.Context) error {
	return e.aggregator.AggregateForDate(ctx, time.Now().UTC().AddDate(0, 0, -1))
}

// ChargeRequest describes a finished AI call to settle.
type ChargeRequest struct {
	UserID     uint64
	ProviderID uint64
	ModelID    uint64
	UsageType  string
	Quantities pricing.Quantities

	Failed       bool
	RequestID    string
	ErrorMessage string
}

// ChargeUsage settles one finished call: price it, log it, consume the
// user's quota and deduct the provider pool. Quota and pool settlement are
// best effort once the call has succeeded upstream; their failures are
// logged, not surfaced. A missing catalog price is surfaced and the call is
// logged as failed with zero cost, never charged.
func (e *Engine) ChargeUsage(ctx context.Context, req ChargeRequest) (*models.AIUsageRecord, error) {
	status := models.UsageStatusSuccess
	if req.Failed {
		status = models.UsageStatusFailed
	}

	cost := decimal.Zero
	var errPricing error
	if !req.Failed {
		cost, errPricing = e.pricing.Cost(ctx, req.ModelID, req.UsageType, req.Quantities)
		if errPricing != nil {
			if !errors.Is(errPricing, pricing.ErrPricingNotFound) {
				return nil, errPricing
			}
			status = models.UsageStatusFailed
			cost = decimal.Zero
		}
	}

	units := quotaUnits(req.UsageType, req.Quantities)
	errorMessage := req.ErrorMessage
	if errPricing != nil && errorMessage == "" {
		errorMessage = errPricing.Error()
	}

	record, errRecord := e.recorder.Record(ctx, usage.Entry{
		UserID:        req.UserID,
		ProviderID:    req.ProviderID,
		ModelID:       req.ModelID,
		UsageType:     req.UsageType,
		Quantities:    req.Quantities,
		CostAmount:    cost,
		TokenConsumed: units,
		Status:        status,
		RequestID:     req.RequestID,
		ErrorMessage:  errorMessage,
	})
	if errRecord != nil {
		return nil, errRecord
	}
	if errPricing != nil {
		return record, errPricing
	}
	if req.Failed {
		return record, nil
	}

	if units > 0 {
		kind, errKind := quotaKindForUsage(req.UsageType)
		if errKind != nil {
			log.WithError(errKind).Warnf("billing: cannot map usage type %q to a quota kind", req.UsageType)
		} else if consumed, errConsume := e.ledger.ConsumeQuota(ctx, req.UserID, kind, units); errConsume != nil {
			log.WithError(errConsume).Warnf("billing: quota consumption failed: user=%d kind=%s units=%d", req.UserID, kind, units)
		} else if !consumed {
			log.Warnf("billing: user quota exhausted, call settled against the pool only: user=%d kind=%s units=%d", req.UserID, kind, units)
		}
	}

	if cost.IsPositive() {
		if errDeduct := e.pools.DeductBalance(ctx, req.ProviderID, cost); errDeduct != nil {
			log.WithError(errDeduct).Warnf("billing: pool deduction failed: provider=%d cost=%s", req.ProviderID, cost)
		}
	}

	return record, nil
}

// quotaUnits derives the quota units one call consumes from its raw
// quantities. Audio bills one unit per call; video bills per second.
func quotaUnits(usageType string, q pricing.Quantities) int64 {
	switch usageType {
	case models.UsageTypeTextGeneration:
		return q.InputTokens + q.OutputTokens
	case models.UsageTypeImageGeneration:
		return q.ImageCount
	case models.UsageTypeAudioTTS, models.UsageTypeAudioSTT:
		return 1
	case models.UsageTypeVideoGeneration:
		return q.VideoDuration
	default:
		return 0
	}
}

// quotaKindForUsage maps a usage type onto the resource kind it draws from.
func quotaKindForUsage(usageType string) (string, error) {
	switch usageType {
	case models.UsageTypeTextGeneration:
		return models.QuotaKindTextToken, nil
	case models.UsageTypeImageGeneration:
		return models.QuotaKindImage, nil
	case models.UsageTypeAudioTTS, models.UsageTypeAudioSTT:
		return models.QuotaKindAudio, nil
	case models.UsageTypeVideoGeneration:
		return models.QuotaKindVideo, nil
	default:
		return "", quota.ErrUnknownQuotaKind
	}
}
