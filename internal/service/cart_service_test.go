package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupCartServiceTest(t *testing.T) (*CartService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:cart_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.CartItem{},
		&models.FlashSale{},
		&models.FlashSaleItem{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	svc := NewCartService(
		repository.NewCartRepository(db),
		repository.NewProductRepository(db),
		repository.NewFlashSaleRepository(db),
	)
	return svc, db
}

func createCartTestProduct(t *testing.T, db *gorm.DB, slug string, price float64, active bool) *models.Product {
	t.Helper()
	product := &models.Product{
		CategoryID:  1,
		Slug:        slug,
		Name:        slug,
		PriceAmount: money(price),
		IsActive:    active,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestCartAddAccumulatesQuantity(t *testing.T) {
	svc, db := setupCartServiceTest(t)
	product := createCartTestProduct(t, db, "earphones", 99.99, true)

	if err := svc.Add(1, product.ID, 2); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := svc.Add(1, product.ID, 3); err != nil {
		t.Fatalf("second add failed: %v", err)
	}

	items, err := svc.List(1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items want 1 got %d", len(items))
	}
	if items[0].Quantity != 5 {
		t.Fatalf("quantity want 5 got %d", items[0].Quantity)
	}
}

func TestCartAddRejectsUnavailableProduct(t *testing.T) {
	svc, db := setupCartServiceTest(t)
	inactive := createCartTestProduct(t, db, "retired", 10, false)

	if err := svc.Add(1, inactive.ID, 1); !errors.Is(err, ErrProductInactive) {
		t.Fatalf("want ErrProductInactive got %v", err)
	}
	if err := svc.Add(1, 9999, 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("want ErrProductNotFound got %v", err)
	}
	if err := svc.Add(1, inactive.ID, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput got %v", err)
	}
}

func TestCartUpdateQuantityZeroRemoves(t *testing.T) {
	svc, db := setupCartServiceTest(t)
	product := createCartTestProduct(t, db, "cable", 9.9, true)

	if err := svc.Add(1, product.ID, 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := svc.UpdateQuantity(1, product.ID, 0); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	items, err := svc.List(1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("items want 0 got %d", len(items))
	}
}

func TestBuildCheckoutLinesEmptyCart(t *testing.T) {
	svc, _ := setupCartServiceTest(t)

	if _, err := svc.BuildCheckoutLines(1); !errors.Is(err, ErrCartEmpty) {
		t.Fatalf("want ErrCartEmpty got %v", err)
	}
}

func TestBuildCheckoutLinesAppliesFlashSalePrice(t *testing.T) {
	svc, db := setupCartServiceTest(t)
	regular := createCartTestProduct(t, db, "watch", 199, true)
	flash := createCartTestProduct(t, db, "earphones", 99.99, true)

	sale := &models.FlashSale{
		Name:     "周末闪购",
		StartsAt: time.Now().Add(-time.Hour),
		EndsAt:   time.Now().Add(time.Hour),
	}
	if err := db.Create(sale).Error; err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	item := &models.FlashSaleItem{
		SaleID:        sale.ID,
		ProductID:     flash.ID,
		OriginalPrice: money(99.99),
		SalePrice:     money(69.99),
		TotalQuantity: 100,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("create sale item failed: %v", err)
	}

	if err := svc.Add(1, regular.ID, 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := svc.Add(1, flash.ID, 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	lines, err := svc.BuildCheckoutLines(1)
	if err != nil {
		t.Fatalf("build lines failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines want 2 got %d", len(lines))
	}
	for _, line := range lines {
		switch line.ProductID {
		case regular.ID:
			if line.IsFlashSale {
				t.Fatalf("regular line should not be flash sale")
			}
			if !line.UnitPrice.Decimal.Equal(money(199).Decimal) {
				t.Fatalf("regular unit price want 199 got %s", line.UnitPrice.String())
			}
		case flash.ID:
			if !line.IsFlashSale || line.FlashSaleID != sale.ID {
				t.Fatalf("flash line not tagged: %+v", line)
			}
			if !line.UnitPrice.Decimal.Equal(money(69.99).Decimal) {
				t.Fatalf("flash unit price want 69.99 got %s", line.UnitPrice.String())
			}
		default:
			t.Fatalf("unexpected line product %d", line.ProductID)
		}
	}
}
