package pool

import (
	"context"
	"testing"

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

func TestGetOrCreatePoolStartsEmpty(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn, decimal.Zero)
	ctx := context.Background()

	p, errGet := svc.GetOrCreatePool(ctx, 1)
	if errGet != nil {
		t.Fatalf("get or create: %v", errGet)
	}
	if !p.TotalBalance.IsZero() || !p.AvailableBalance.IsZero() || !p.UsedAmount.IsZero() {
		t.Fatalf("fresh pool not empty: %+v", p)
	}
	if !p.WarningThreshold.Equal(DefaultWarningThreshold) {
		t.Fatalf("warning threshold = %s, want default %s", p.WarningThreshold, DefaultWarningThreshold)
	}

	again, errAgain := svc.GetOrCreatePool(ctx, 1)
	if errAgain != nil {
		t.Fatalf("second get: %v", errAgain)
	}
	if again.ID != p.ID {
		t.Fatalf("expected a single pool row, got ids %d and %d", p.ID, again.ID)
	}
}

func TestRechargeWritesSnapshotsAndClearsFlag(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn, decimal.Zero)
	ctx := context.Background()

	if _, errFirst := svc.Recharge(ctx, 2, decimal.RequireFromString("40"), 9, "initial funding"); errFirst != nil {
		t.Fatalf("first recharge: %v", errFirst)
	}
	if errFlag := conn.Model(&models.ProviderResourcePool{}).
		Where("provider_id = ?", 2).
		Update("is_low_balance", true).Error; errFlag != nil {
		t.Fatalf("force flag: %v", errFlag)
	}

	record, errSecond := svc.Recharge(ctx, 2, decimal.RequireFromString("60"), 9, "top up")
	if errSecond != nil {
		t.Fatalf("second recharge: %v", errSecond)
	}
	if !record.BalanceBefore.Equal(decimal.RequireFromString("40")) ||
		!record.BalanceAfter.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("snapshots before=%s after=%s, want 40/100", record.BalanceBefore, record.BalanceAfter)
	}
	if record.RechargeType != models.RechargeTypeManual || record.OperatorID != 9 {
		t.Fatalf("unexpected recharge ledger row: %+v", record)
	}

	p, _ := svc.GetPool(ctx, 2)
	if !p.TotalBalance.Equal(decimal.RequireFromString("100")) ||
		!p.AvailableBalance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("pool total=%s available=%s, want 100/100", p.TotalBalance, p.AvailableBalance)
	}
	if p.IsLowBalance {
		t.Fatal("recharge must clear the low-balance flag")
	}
	if p.LastRechargeAt == nil {
		t.Fatal("recharge must stamp last_recharge_at")
	}
}

func TestRechargeRejectsNonPositiveAmount(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn, decimal.Zero)

	if _, errZero := svc.Recharge(context.Background(), 3, decimal.Zero, 1, ""); errZero == nil {
		t.Fatal("expected zero recharge to be rejected")
	}
	if _, errNeg := svc.Recharge(context.Background(), 3, decimal.RequireFromString("-5"), 1, ""); errNeg == nil {
		t.Fatal("expected negative recharge to be rejected")
	}
}

func TestDeductBalanceIsAdditive(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn, decimal.Zero)
	ctx := context.Background()

	if _, errRecharge := svc.Recharge(ctx, 4, decimal.RequireFromString("10"), 1, ""); errRecharge != nil {
		t.Fatalf("recharge: %v", errRecharge)
	}
	if errDeduct := svc.DeductBalance(ctx, 4, decimal.RequireFromString("2.5")); errDeduct != nil {
		t.Fatalf("first deduct: %v", errDeduct)
	}
	if errDeduct := svc.DeductBalance(ctx, 4, decimal.RequireFromString("1.5")); errDeduct != nil {
		t.Fatalf("second deduct: %v", errDeduct)
	}

	p, _ := svc.GetPool(ctx, 4)
	if !p.UsedAmount.Equal(decimal.RequireFromString("4")) {
		t.Fatalf("used = %s, want 4", p.UsedAmount)
	}
	if !p.AvailableBalance.Equal(decimal.RequireFromString("6")) {
		t.Fatalf("available = %s, want 6", p.AvailableBalance)
	}
}

func TestDeductBalanceClampsAtZero(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn, decimal.Zero)
	ctx := context.Background()

	if _, errRecharge := svc.Recharge(ctx, 5, decimal.RequireFromString("3"), 1, ""); errRecharge != nil {
		t.Fatalf("recharge: %v", errRecharge)
	}
	if errDeduct := svc.DeductBalance(ctx, 5, decimal.RequireFromString("8")); errDeduct != nil {
		t.Fatalf("deduct: %v", errDeduct)
	}

	p, _ := svc.GetPool(ctx, 5)
	if !p.AvailableBalance.IsZero() {
		t.Fatalf("available = %s, want clamp at 0", p.AvailableBalance)
	}
	if !p.UsedAmount.Equal(decimal.RequireFromString("8")) {
		t.Fatalf("used = %s, want the full 8 recorded", p.UsedAmount)
	}
}

func TestDeductBalanceIgnoresNonPositiveAmount(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn, decimal.Zero)
	ctx := context.Background()

	if errDeduct := svc.DeductBalance(ctx, 6, decimal.Zero); errDeduct != nil {
		t.Fatalf("zero deduct: %v", errDeduct)
	}
	p, errGet := svc.GetPool(ctx, 6)
	if errGet != nil {
		t.Fatalf("get pool: %v", errGet)
	}
	if p != nil {
		t.Fatal("zero deduction must not create a pool")
	}
}

func TestBalancePercentage(t *testing.T) {
	svc := NewService(nil, decimal.Zero)

	empty := &models.ProviderResourcePool{}
	if !svc.BalancePercentage(empty).IsZero() {
		t.Fatal("unfunded pool must report zero percent")
	}

	funded := &models.ProviderResourcePool{
		TotalBalance:     decimal.RequireFromString("200"),
		AvailableBalance: decimal.RequireFromString("30"),
	}
	if got := svc.BalancePercentage(funded); !got.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("percentage = %s, want 15", got)
	}
}

func TestBalancePercentageKeepsTinyResidualPositive(t *testing.T) {
	svc := NewService(nil, decimal.Zero)

	residual := &models.ProviderResourcePool{
		TotalBalance:     decimal.RequireFromString("100"),
		AvailableBalance: decimal.RequireFromString("0.004"),
	}
	got := svc.BalancePercentage(residual)
	if !got.IsPositive() {
		t.Fatalf("percentage = %s, a non-zero balance must never report 0", got)
	}
	if !got.Equal(decimal.RequireFromString("0.004")) {
		t.Fatalf("percentage = %s, want 0.004", got)
	}
}

func TestCheckBalanceStatusFlipsOnlyOnChange(t *testing.T) {
	conn := openTestDB(t)
	svc := NewService(conn, decimal.Zero)
	ctx := context.Background()

	if _, errRecharge := svc.Recharge(ctx, 7, decimal.RequireFromString("100"), 1, ""); errRecharge != nil {
		t.Fatalf("recharge: %v", errRecharge)
	}

	p, _ := svc.GetPool(ctx, 7)
	isLow, errCheck := svc.CheckBalanceStatus(ctx, p)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if isLow {
		t.Fatal("full pool must not be low")
	}
	if p.LastCheckAt != nil {
		t.Fatal("unchanged state must not stamp last_check_at")
	}

	if errDeduct := svc.DeductBalance(ctx, 7, decimal.RequireFromString("85")); errDeduct != nil {
		t.Fatalf("deduct: %v", errDeduct)
	}
	p, _ = svc.GetPool(ctx, 7)
	isLow, errCheck = svc.CheckBalanceStatus(ctx, p)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if !isLow {
		t.Fatal("15% of balance with a 20% threshold must be low")
	}
	if !p.IsLowBalance || p.LastCheckAt == nil {
		t.Fatal("flip must persist the flag and stamp last_check_at")
	}

	persisted, _ := svc.GetPool(ctx, 7)
	if !persisted.IsLowBalance {
		t.Fatal("low-balance flag not persisted")
	}
}
