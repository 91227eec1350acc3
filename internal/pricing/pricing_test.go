package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/toybot1981/heartsphere-billing/internal/db"
	"github.com/toybot1981/heartsphere-billing/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	sqlDB.SetMaxOpenConns(1)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func seedPrice(t *testing.T, conn *gorm.DB, row models.AIModelPricing) {
	t.Helper()
	if row.EffectiveDate.IsZero() {
		row.EffectiveDate = time.Now().UTC().Add(-24 * time.Hour)
	}
	row.IsActive = true
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed pricing: %v", errCreate)
	}
}

func mustCost(t *testing.T, svc *Service, modelID uint64, usageType string, q Quantities) decimal.Decimal {
	t.Helper()
	cost, errCost := svc.Cost(context.Background(), modelID, usageType, q)
	if errCost != nil {
		t.Fatalf("cost(%s): %v", usageType, errCost)
	}
	return cost
}

func TestTokenCostCeilsToBlock(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:     1,
		PricingType: models.PricingTypeInputToken,
		UnitPrice:   decimal.RequireFromString("0.002"),
		Unit:        models.PricingUnitPer1KTokens,
	})

	one := mustCost(t, svc, 1, models.UsageTypeTextGeneration, Quantities{InputTokens: 1})
	most := mustCost(t, svc, 1, models.UsageTypeTextGeneration, Quantities{InputTokens: 999})
	full := mustCost(t, svc, 1, models.UsageTypeTextGeneration, Quantities{InputTokens: 1000})
	over := mustCost(t, svc, 1, models.UsageTypeTextGeneration, Quantities{InputTokens: 1001})

	if !one.Equal(most) || !most.Equal(full) {
		t.Fatalf("1, 999 and 1000 tokens must price identically: %s %s %s", one, most, full)
	}
	if !one.Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("one block = %s, want 0.002", one)
	}
	if !over.Equal(decimal.RequireFromString("0.004")) {
		t.Fatalf("1001 tokens = %s, want 0.004 (two blocks)", over)
	}
}

func TestZeroQuantityCostsNothing(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:     1,
		PricingType: models.PricingTypeInputToken,
		UnitPrice:   decimal.RequireFromString("0.002"),
		Unit:        models.PricingUnitPer1KTokens,
	})

	cost := mustCost(t, svc, 1, models.UsageTypeTextGeneration, Quantities{})
	if !cost.IsZero() {
		t.Fatalf("zero tokens cost %s, want 0", cost)
	}
}

func TestTextCostSumsInputAndOutput(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:     1,
		PricingType: models.PricingTypeInputToken,
		UnitPrice:   decimal.RequireFromString("0.002"),
		Unit:        models.PricingUnitPer1KTokens,
	})
	seedPrice(t, conn, models.AIModelPricing{
		ModelID:     1,
		PricingType: models.PricingTypeOutputToken,
		UnitPrice:   decimal.RequireFromString("0.006"),
		Unit:        models.PricingUnitPer1KTokens,
	})

	cost := mustCost(t, svc, 1, models.UsageTypeTextGeneration, Quantities{InputTokens: 1500, OutputTokens: 500})
	// 2 input blocks * 0.002 + 1 output block * 0.006.
	if !cost.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("cost = %s, want 0.01", cost)
	}
}

func TestMillionTokenUnitUsesLargeBlock(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:     2,
		PricingType: models.PricingTypeInputToken,
		UnitPrice:   decimal.RequireFromString("1.25"),
		Unit:        models.PricingUnitPer1MTokens,
	})

	cost := mustCost(t, svc, 2, models.UsageTypeTextGeneration, Quantities{InputTokens: 1_000_001})
	if !cost.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("cost = %s, want 2.5 (two million-token blocks)", cost)
	}
}

func TestMinChargeFloorApplies(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:       3,
		PricingType:   models.PricingTypeInputToken,
		UnitPrice:     decimal.RequireFromString("0.002"),
		Unit:          models.PricingUnitPer1KTokens,
		MinChargeUnit: decimal.NewFromInt(5),
	})

	small := mustCost(t, svc, 3, models.UsageTypeTextGeneration, Quantities{InputTokens: 100})
	if !small.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("floored cost = %s, want 0.01 (5 blocks)", small)
	}

	large := mustCost(t, svc, 3, models.UsageTypeTextGeneration, Quantities{InputTokens: 9001})
	if !large.Equal(decimal.RequireFromString("0.02")) {
		t.Fatalf("above-floor cost = %s, want 0.02 (10 blocks)", large)
	}
}

func TestImageCostIsLinear(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:     4,
		PricingType: models.PricingTypeImage,
		UnitPrice:   decimal.RequireFromString("0.04"),
		Unit:        models.PricingUnitPerImage,
	})

	cost := mustCost(t, svc, 4, models.UsageTypeImageGeneration, Quantities{ImageCount: 3})
	if !cost.Equal(decimal.RequireFromString("0.12")) {
		t.Fatalf("cost = %s, want 0.12", cost)
	}
}

func TestTTSCostCeilsCharacterBlocks(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:     5,
		PricingType: models.PricingTypeAudioTTS,
		UnitPrice:   decimal.RequireFromString("0.15"),
		Unit:        models.PricingUnitPer10KChars,
	})

	cost := mustCost(t, svc, 5, models.UsageTypeAudioTTS, Quantities{CharacterCount: 10_001})
	if !cost.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("cost = %s, want 0.3 (two character blocks)", cost)
	}
}

func TestSTTCostCeilsToWholeMinutes(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:     6,
		PricingType: models.PricingTypeAudioMinute,
		UnitPrice:   decimal.RequireFromString("0.006"),
		Unit:        models.PricingUnitPerMinute,
	})

	cost := mustCost(t, svc, 6, models.UsageTypeAudioSTT, Quantities{AudioDuration: 61})
	if !cost.Equal(decimal.RequireFromString("0.012")) {
		t.Fatalf("cost = %s, want 0.012 (two minutes)", cost)
	}
}

func TestVideoCostPrefersResolutionRow(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	// The plain row carries the newer effective date so the resolution
	// preference, not lookup order, is what selects the 1080p row.
	seedPrice(t, conn, models.AIModelPricing{
		ModelID:       7,
		PricingType:   models.PricingTypeVideoSecond,
		UnitPrice:     decimal.RequireFromString("0.05"),
		Unit:          models.PricingUnitPerSecond,
		EffectiveDate: time.Now().UTC().Add(-1 * time.Hour),
	})
	seedPrice(t, conn, models.AIModelPricing{
		ModelID:       7,
		PricingType:   models.PricingTypeVideoSecond,
		UnitPrice:     decimal.RequireFromString("0.2"),
		Unit:          models.PricingUnitPerSecond + "_1080p",
		EffectiveDate: time.Now().UTC().Add(-24 * time.Hour),
	})

	hd := mustCost(t, svc, 7, models.UsageTypeVideoGeneration, Quantities{VideoDuration: 10, Resolution: "1080p"})
	if !hd.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("1080p cost = %s, want 2", hd)
	}

	plain := mustCost(t, svc, 7, models.UsageTypeVideoGeneration, Quantities{VideoDuration: 10, Resolution: "720p"})
	if !plain.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("fallback cost = %s, want 0.5 (plain per-second row)", plain)
	}
}

func TestExpiredAndFuturePricingIgnored(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	past := time.Now().UTC().Add(-48 * time.Hour)
	expired := time.Now().UTC().Add(-24 * time.Hour)
	seedPrice(t, conn, models.AIModelPricing{
		ModelID:       8,
		PricingType:   models.PricingTypeInputToken,
		UnitPrice:     decimal.RequireFromString("9.99"),
		Unit:          models.PricingUnitPer1KTokens,
		EffectiveDate: past,
		ExpiryDate:    &expired,
	})
	seedPrice(t, conn, models.AIModelPricing{
		ModelID:       8,
		PricingType:   models.PricingTypeInputToken,
		UnitPrice:     decimal.RequireFromString("8.88"),
		Unit:          models.PricingUnitPer1KTokens,
		EffectiveDate: time.Now().UTC().Add(24 * time.Hour),
	})

	_, errCost := svc.Cost(context.Background(), 8, models.UsageTypeTextGeneration, Quantities{InputTokens: 10})
	if !errors.Is(errCost, ErrPricingNotFound) {
		t.Fatalf("expected ErrPricingNotFound, got %v", errCost)
	}
}

func TestInactivePricingRowIgnored(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	row := models.AIModelPricing{
		ModelID:       12,
		PricingType:   models.PricingTypeInputToken,
		UnitPrice:     decimal.RequireFromString("0.002"),
		Unit:          models.PricingUnitPer1KTokens,
		EffectiveDate: time.Now().UTC().Add(-24 * time.Hour),
		IsActive:      false,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("create pricing: %v", errCreate)
	}

	var persisted models.AIModelPricing
	if errFind := conn.First(&persisted, row.ID).Error; errFind != nil {
		t.Fatalf("load pricing: %v", errFind)
	}
	if persisted.IsActive {
		t.Fatal("row created with is_active=false came back active")
	}

	if _, errActive := svc.ActivePricing(context.Background(), 12, models.PricingTypeInputToken); !errors.Is(errActive, ErrPricingNotFound) {
		t.Fatalf("expected ErrPricingNotFound, got %v", errActive)
	}
}

func TestNewestEffectiveRowWins(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	seedPrice(t, conn, models.AIModelPricing{
		ModelID:       9,
		PricingType:   models.PricingTypeInputToken,
		UnitPrice:     decimal.RequireFromString("0.01"),
		Unit:          models.PricingUnitPer1KTokens,
		EffectiveDate: time.Now().UTC().Add(-72 * time.Hour),
	})
	seedPrice(t, conn, models.AIModelPricing{
		ModelID:       9,
		PricingType:   models.PricingTypeInputToken,
		UnitPrice:     decimal.RequireFromString("0.005"),
		Unit:          models.PricingUnitPer1KTokens,
		EffectiveDate: time.Now().UTC().Add(-1 * time.Hour),
	})

	cost := mustCost(t, svc, 9, models.UsageTypeTextGeneration, Quantities{InputTokens: 1000})
	if !cost.Equal(decimal.RequireFromString("0.005")) {
		t.Fatalf("cost = %s, want the newer 0.005 price", cost)
	}
}

func TestUnknownUsageTypeCostsZero(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn)

	cost := mustCost(t, svc, 10, "telepathy", Quantities{InputTokens: 1000})
	if !cost.IsZero() {
		t.Fatalf("unknown usage type cost %s, want 0", cost)
	}
}
