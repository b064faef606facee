package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flashmart-next/internal/constants"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupUsageLedgerTest(t *testing.T, ttl time.Duration) (*UsageLedger, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:usage_ledger_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Coupon{}, &models.CouponUsage{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	ledger := NewUsageLedger(repository.NewCouponRepository(db), repository.NewCouponUsageRepository(db), ttl)
	return ledger, db
}

func createLedgerTestCoupon(t *testing.T, db *gorm.DB, usageLimit, perUserLimit int) *models.Coupon {
	t.Helper()
	coupon := &models.Coupon{
		Code:         fmt.Sprintf("LEDGER-%d", time.Now().UnixNano()),
		Name:         "测试券",
		Type:         constants.CouponTypeFixed,
		Value:        money(10),
		UsageLimit:   usageLimit,
		PerUserLimit: perUserLimit,
		IsActive:     true,
	}
	if err := db.Create(coupon).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	return coupon
}

func TestUsageLedgerCommitPersists(t *testing.T) {
	ledger, db := setupUsageLedgerTest(t, time.Minute)
	coupon := createLedgerTestCoupon(t, db, 10, 0)

	res, err := ledger.TryReserve(coupon.ID, 1)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := ledger.Commit(res, 55, money(10), money(90)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	var reloaded models.Coupon
	if err := db.First(&reloaded, coupon.ID).Error; err != nil {
		t.Fatalf("reload coupon failed: %v", err)
	}
	if reloaded.UsedCount != 1 {
		t.Fatalf("used_count want 1 got %d", reloaded.UsedCount)
	}

	var usages []models.CouponUsage
	if err := db.Where("coupon_id = ?", coupon.ID).Find(&usages).Error; err != nil {
		t.Fatalf("load usages failed: %v", err)
	}
	if len(usages) != 1 {
		t.Fatalf("usage rows want 1 got %d", len(usages))
	}
	if usages[0].OrderID != 55 || usages[0].UserID != 1 {
		t.Fatalf("usage row mismatch: %+v", usages[0])
	}
}

func TestUsageLedgerPerUserLimit(t *testing.T) {
	ledger, db := setupUsageLedgerTest(t, time.Minute)
	coupon := createLedgerTestCoupon(t, db, 0, 1)

	res, err := ledger.TryReserve(coupon.ID, 7)
	if err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}

	// 未决预留也计入每人限额
	if _, err := ledger.TryReserve(coupon.ID, 7); !errors.Is(err, ErrCouponPerUserLimit) {
		t.Fatalf("pending reserve should deny, got %v", err)
	}

	if err := ledger.Commit(res, 100, money(10), money(40)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// 已提交用量同样计入
	if _, err := ledger.TryReserve(coupon.ID, 7); !errors.Is(err, ErrCouponPerUserLimit) {
		t.Fatalf("committed usage should deny, got %v", err)
	}

	// 其他用户不受影响
	if _, err := ledger.TryReserve(coupon.ID, 8); err != nil {
		t.Fatalf("other user reserve failed: %v", err)
	}
}

func TestUsageLedgerConcurrentReserves(t *testing.T) {
	ledger, db := setupUsageLedgerTest(t, time.Minute)
	coupon := createLedgerTestCoupon(t, db, 3, 0)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	denied := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := ledger.TryReserve(coupon.ID, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrCouponUsageLimit):
				denied++
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	if succeeded != 3 {
		t.Fatalf("successful reserves want 3 got %d", succeeded)
	}
	if denied != workers-3 {
		t.Fatalf("denied reserves want %d got %d", workers-3, denied)
	}
}

func TestUsageLedgerReleaseIdempotent(t *testing.T) {
	ledger, db := setupUsageLedgerTest(t, time.Minute)
	coupon := createLedgerTestCoupon(t, db, 1, 0)

	res, err := ledger.TryReserve(coupon.ID, 1)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	ledger.Release(res)
	ledger.Release(res)

	// 重复释放不应把占用减成负数，名额恰好恢复一个
	if _, err := ledger.TryReserve(coupon.ID, 2); err != nil {
		t.Fatalf("reserve after release failed: %v", err)
	}
	if _, err := ledger.TryReserve(coupon.ID, 3); !errors.Is(err, ErrCouponUsageLimit) {
		t.Fatalf("capacity should be exhausted again, got %v", err)
	}

	// 已释放的预留不可再提交
	if err := ledger.Commit(res, 1, money(10), money(40)); !errors.Is(err, ErrReservationExpired) {
		t.Fatalf("commit of released reservation want ErrReservationExpired got %v", err)
	}
}

func TestUsageLedgerSweepExpired(t *testing.T) {
	ledger, db := setupUsageLedgerTest(t, time.Minute)
	coupon := createLedgerTestCoupon(t, db, 1, 0)

	res, err := ledger.TryReserve(coupon.ID, 1)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// 时钟前进越过 TTL
	ledger.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if swept := ledger.SweepExpired(); swept != 1 {
		t.Fatalf("swept want 1 got %d", swept)
	}
	if err := ledger.Commit(res, 1, money(10), money(40)); !errors.Is(err, ErrReservationExpired) {
		t.Fatalf("commit after sweep want ErrReservationExpired got %v", err)
	}

	// 名额已被回收，可再次预留
	if _, err := ledger.TryReserve(coupon.ID, 2); err != nil {
		t.Fatalf("reserve after sweep failed: %v", err)
	}
}
