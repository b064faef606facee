package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupInventoryArbiterTest(t *testing.T) (*InventoryArbiter, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:inventory_arbiter_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.FlashSale{}, &models.FlashSaleItem{}, &models.FlashSalePurchase{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	arbiter := NewInventoryArbiter(repository.NewFlashSaleRepository(db), repository.NewFlashSalePurchaseRepository(db), time.Minute)
	return arbiter, db
}

func createArbiterTestSale(t *testing.T, db *gorm.DB, totalQuantity, perUserLimit int) (*models.FlashSale, *models.FlashSaleItem) {
	t.Helper()
	now := time.Now()
	sale := &models.FlashSale{
		Name:     "测试闪购",
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(time.Hour),
	}
	if err := db.Create(sale).Error; err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	item := &models.FlashSaleItem{
		SaleID:        sale.ID,
		ProductID:     1,
		OriginalPrice: money(100),
		SalePrice:     money(60),
		TotalQuantity: totalQuantity,
		PerUserLimit:  perUserLimit,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("create sale item failed: %v", err)
	}
	return sale, item
}

func TestInventoryArbiterCommitPersists(t *testing.T) {
	arbiter, db := setupInventoryArbiterTest(t)
	sale, item := createArbiterTestSale(t, db, 10, 0)

	res, err := arbiter.Reserve(sale.ID, item.ProductID, 1, 2)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := arbiter.Commit(res, 77); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	var reloaded models.FlashSaleItem
	if err := db.First(&reloaded, item.ID).Error; err != nil {
		t.Fatalf("reload item failed: %v", err)
	}
	if reloaded.SoldQuantity != 2 {
		t.Fatalf("sold_quantity want 2 got %d", reloaded.SoldQuantity)
	}

	var purchases []models.FlashSalePurchase
	if err := db.Where("sale_id = ?", sale.ID).Find(&purchases).Error; err != nil {
		t.Fatalf("load purchases failed: %v", err)
	}
	if len(purchases) != 1 {
		t.Fatalf("purchase rows want 1 got %d", len(purchases))
	}
	p := purchases[0]
	if p.OrderID != 77 || p.Quantity != 2 {
		t.Fatalf("purchase row mismatch: %+v", p)
	}
	if p.SinceStartSeconds <= 0 || p.ToEndSeconds <= 0 {
		t.Fatalf("time offsets should be positive: %+v", p)
	}
}

func TestInventoryArbiterConcurrentReserves(t *testing.T) {
	arbiter, db := setupInventoryArbiterTest(t)
	sale, item := createArbiterTestSale(t, db, 3, 0)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	soldOut := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := arbiter.Reserve(sale.ID, item.ProductID, userID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrFlashSaleSoldOut):
				soldOut++
			default:
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(uint(i + 1))
	}
	wg.Wait()

	// 剩余 3 件，8 个并发请求恰好 3 个成功
	if succeeded != 3 {
		t.Fatalf("successful reserves want 3 got %d", succeeded)
	}
	if soldOut != workers-3 {
		t.Fatalf("sold out denials want %d got %d", workers-3, soldOut)
	}
}

func TestInventoryArbiterPerUserLimit(t *testing.T) {
	arbiter, db := setupInventoryArbiterTest(t)
	sale, item := createArbiterTestSale(t, db, 100, 2)

	// 用户已购 1 件
	purchase := &models.FlashSalePurchase{
		SaleID:    sale.ID,
		ProductID: item.ProductID,
		UserID:    5,
		OrderID:   1,
		Quantity:  1,
		SalePrice: item.SalePrice,
	}
	if err := db.Create(purchase).Error; err != nil {
		t.Fatalf("create purchase failed: %v", err)
	}

	// 已购 1 + 请求 2 > 限购 2
	if _, err := arbiter.Reserve(sale.ID, item.ProductID, 5, 2); !errors.Is(err, ErrFlashSalePerUserLimit) {
		t.Fatalf("over-limit reserve want ErrFlashSalePerUserLimit got %v", err)
	}
	// 已购 1 + 请求 1 = 限购 2
	if _, err := arbiter.Reserve(sale.ID, item.ProductID, 5, 1); err != nil {
		t.Fatalf("within-limit reserve failed: %v", err)
	}
	// 未决预留填满限额后再次请求被拒
	if _, err := arbiter.Reserve(sale.ID, item.ProductID, 5, 1); !errors.Is(err, ErrFlashSalePerUserLimit) {
		t.Fatalf("pending-filled reserve want ErrFlashSalePerUserLimit got %v", err)
	}
}

func TestInventoryArbiterReleaseIdempotent(t *testing.T) {
	arbiter, db := setupInventoryArbiterTest(t)
	sale, item := createArbiterTestSale(t, db, 1, 0)

	res, err := arbiter.Reserve(sale.ID, item.ProductID, 1, 1)
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	arbiter.Release(res)
	arbiter.Release(res)

	// 重复释放只归还一次库存
	if _, err := arbiter.Reserve(sale.ID, item.ProductID, 2, 1); err != nil {
		t.Fatalf("reserve after release failed: %v", err)
	}
	if _, err := arbiter.Reserve(sale.ID, item.ProductID, 3, 1); !errors.Is(err, ErrFlashSaleSoldOut) {
		t.Fatalf("stock should be exhausted again, got %v", err)
	}

	if err := arbiter.Commit(res, 1); !errors.Is(err, ErrReservationExpired) {
		t.Fatalf("commit of released reservation want ErrReservationExpired got %v", err)
	}
}

func TestInventoryArbiterUncappedItem(t *testing.T) {
	arbiter, db := setupInventoryArbiterTest(t)
	sale, item := createArbiterTestSale(t, db, -1, 0)

	// 不限量条目可以任意数量预留
	if _, err := arbiter.Reserve(sale.ID, item.ProductID, 1, 1000); err != nil {
		t.Fatalf("uncapped reserve failed: %v", err)
	}
}

func TestInventoryArbiterSaleWindow(t *testing.T) {
	arbiter, db := setupInventoryArbiterTest(t)

	now := time.Now()
	future := &models.FlashSale{
		Name:     "未开始",
		StartsAt: now.Add(time.Hour),
		EndsAt:   now.Add(2 * time.Hour),
	}
	if err := db.Create(future).Error; err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	item := &models.FlashSaleItem{SaleID: future.ID, ProductID: 1, SalePrice: money(10), TotalQuantity: 5}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("create item failed: %v", err)
	}

	if _, err := arbiter.Reserve(future.ID, 1, 1, 1); !errors.Is(err, ErrFlashSaleNotActive) {
		t.Fatalf("future sale reserve want ErrFlashSaleNotActive got %v", err)
	}

	canceled := &models.FlashSale{
		Name:       "已取消",
		StartsAt:   now.Add(-time.Hour),
		EndsAt:     now.Add(time.Hour),
		IsCanceled: true,
	}
	if err := db.Create(canceled).Error; err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	item2 := &models.FlashSaleItem{SaleID: canceled.ID, ProductID: 2, SalePrice: money(10), TotalQuantity: 5}
	if err := db.Create(item2).Error; err != nil {
		t.Fatalf("create item failed: %v", err)
	}

	if _, err := arbiter.Reserve(canceled.ID, 2, 1, 1); !errors.Is(err, ErrFlashSaleNotActive) {
		t.Fatalf("canceled sale reserve want ErrFlashSaleNotActive got %v", err)
	}
}
