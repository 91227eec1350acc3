package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/toybot1981/heartsphere-billing/internal/models"
	"github.com/toybot1981/heartsphere-billing/internal/pricing"
)

// CatalogProvider seeds one upstream provider and its pricing rows.
type CatalogProvider struct {
	Name        string
	DisplayName string
	Pricing     []CatalogPricing
}

// CatalogPricing seeds one price row for a model that already exists in the
// caller's model registry.
type CatalogPricing struct {
	ModelID       uint64
	PricingType   string
	UnitPrice     decimal.Decimal
	Unit          string
	MinChargeUnit decimal.Decimal
}

// Catalog is the explicit seed set handed to SeedCatalog. There is no
// built-in default provider list; callers own the catalog.
type Catalog struct {
	Providers []CatalogProvider
}

// SeedCatalog idempotently creates providers, their resource pools and any
// pricing rows that have no active counterpart. Existing rows are left
// untouched, so re-running at every boot is safe.
func (e *Engine) SeedCatalog(ctx context.Context, catalog Catalog) error {
	for _, provider := range catalog.Providers {
		row, errProvider := e.ensureProvider(ctx, provider.Name, provider.DisplayName)
		if errProvider != nil {
			return errProvider
		}
		if _, errPool := e.pools.GetOrCreatePool(ctx, row.ID); errPool != nil {
			return errPool
		}
		for _, price := range provider.Pricing {
			if errPricing := e.ensurePricing(ctx, price); errPricing != nil {
				return errPricing
			}
		}
	}
	return nil
}

func (e *Engine) ensureProvider(ctx context.Context, name, displayName string) (*models.AIProvider, error) {
	var row models.AIProvider
	errFind := e.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errFind == nil {
		return &row, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	row = models.AIProvider{Name: name, DisplayName: displayName, IsEnabled: true}
	if errCreate := e.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, errCreate
	}
	log.Infof("billing: seeded provider %s (%s)", displayName, name)
	return &row, nil
}

func (e *Engine) ensurePricing(ctx context.Context, price CatalogPricing) error {
	_, errActive := e.pricing.ActivePricing(ctx, price.ModelID, price.PricingType)
	if errActive == nil {
		return nil
	}
	if !errors.Is(errActive, pricing.ErrPricingNotFound) {
		return errActive
	}

	row := models.AIModelPricing{
		ModelID:       price.ModelID,
		PricingType:   price.PricingType,
		UnitPrice:     price.UnitPrice,
		Unit:          price.Unit,
		MinChargeUnit: price.MinChargeUnit,
		EffectiveDate: time.Now().UTC(),
		IsActive:      true,
	}
	if errCreate := e.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return errCreate
	}
	log.Infof("billing: seeded pricing model=%d type=%s price=%s/%s",
		price.ModelID, price.PricingType, price.UnitPrice, price.Unit)
	return nil
}
