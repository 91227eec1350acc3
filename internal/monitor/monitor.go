// Package monitor periodically re-evaluates every provider's resource pool
// and feeds the alert engine. One provider's failure never starves the rest
// of the sweep.
package monitor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/toybot1981/heartsphere-billing/internal/alert"
	"github.com/toybot1981/heartsphere-billing/internal/models"
	"github.com/toybot1981/heartsphere-billing/internal/pool"
)

const defaultCheckInterval = 5 * time.Minute

// Monitor sweeps provider pools on a fixed interval.
type Monitor struct {
	db       *gorm.DB
	pools    *pool.Service
	alerts   *alert.Engine
	interval time.Duration
}

// NewMonitor constructs a billing monitor. A non-positive interval falls
// back to the default.
func NewMonitor(conn *gorm.DB, pools *pool.Service, alerts *alert.Engine, interval time.Duration) *Monitor {
	if conn == nil || pools == nil || alerts == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Monitor{db: conn, pools: pools, alerts: alerts, interval: interval}
}

// Start launches the sweep loop in a background goroutine. The loop exits
// when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go m.run(ctx)
	log.Infof("billing monitor started (interval=%s)", m.interval)
}

func (m *Monitor) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if errSweep := m.ManualCheck(ctx); errSweep != nil {
			log.WithError(errSweep).Warn("billing monitor: sweep failed")
		}
		timer := time.NewTimer(m.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// ManualCheck runs one synchronous sweep over every enabled provider. It is
// the same code path the timer uses, exposed for admin "check now" actions
// and tests. Per-provider failures are logged and skipped; only listing the
// providers can fail the sweep as a whole.
func (m *Monitor) ManualCheck(ctx context.Context) error {
	var providers []models.AIProvider
	if errFind := m.db.WithContext(ctx).
		Where("is_enabled = ?", true).
		Order("id ASC").
		Find(&providers).Error; errFind != nil {
		return errFind
	}

	for i := range providers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errCheck := m.checkProvider(ctx, &providers[i]); errCheck != nil {
			log.WithError(errCheck).Warnf("billing monitor: check failed for provider=%d (%s), continuing",
				providers[i].ID, providers[i].Name)
		}
	}
	return nil
}

func (m *Monitor) checkProvider(ctx context.Context, provider *models.AIProvider) error {
	poolRow, errPool := m.pools.GetOrCreatePool(ctx, provider.ID)
	if errPool != nil {
		return errPool
	}

	percentage := m.pools.BalancePercentage(poolRow)
	isLow, errStatus := m.pools.CheckBalanceStatus(ctx, poolRow)
	if errStatus != nil {
		return errStatus
	}
	if !isLow {
		return nil
	}

	_, errAlert := m.alerts.CreateLowBalanceAlert(ctx, poolRow, percentage)
	return errAlert
}
