package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flashmart-next/internal/constants"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupResolverTest(t *testing.T) (*PromotionResolver, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:promotion_resolver_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Coupon{},
		&models.CouponUsage{},
		&models.FlashSale{},
		&models.FlashSaleItem{},
		&models.FlashSalePurchase{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	couponRepo := repository.NewCouponRepository(db)
	ledger := NewUsageLedger(couponRepo, repository.NewCouponUsageRepository(db), time.Minute)
	arbiter := NewInventoryArbiter(repository.NewFlashSaleRepository(db), repository.NewFlashSalePurchaseRepository(db), time.Minute)
	resolver := NewPromotionResolver(couponRepo, NewEligibilityEvaluator(), NewDiscountCalculator(), ledger, arbiter, 0)
	return resolver, db
}

func resolverTestUser() UserProfile {
	return UserProfile{ID: 1, CreatedAt: time.Now().AddDate(-1, 0, 0)}
}

func TestResolveNonStackableConflict(t *testing.T) {
	resolver, db := setupResolverTest(t)

	low := &models.Coupon{
		Code: "LOW5", Name: "低优先级", Type: constants.CouponTypeFixed,
		Value: money(5), IsActive: true, IsPublic: true, AutoApply: true, Priority: 5,
	}
	high := &models.Coupon{
		Code: "HIGH10", Name: "高优先级", Type: constants.CouponTypeFixed,
		Value: money(10), IsActive: true, IsPublic: true, AutoApply: true, Priority: 10,
	}
	if err := db.Create(low).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	if err := db.Create(high).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	lines := []CartLine{{ProductID: 1, UnitPrice: money(100), Quantity: 1}}
	result, err := resolver.Resolve(resolverTestUser(), lines, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if len(result.Applied) != 1 || result.Applied[0].Code != "HIGH10" {
		t.Fatalf("applied want [HIGH10] got %+v", result.Applied)
	}
	found := false
	for _, rejection := range result.Rejections {
		if rejection.Code == "LOW5" {
			found = true
			if rejection.Reason != ReasonStackingConflict {
				t.Fatalf("rejection reason want %q got %q", ReasonStackingConflict, rejection.Reason)
			}
		}
	}
	if !found {
		t.Fatalf("expected rejection for LOW5, got %+v", result.Rejections)
	}
	if !result.PayableTotal.Decimal.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("payable want 90 got %s", result.PayableTotal.Decimal)
	}
}

func TestResolveStackableSequential(t *testing.T) {
	resolver, db := setupResolverTest(t)

	percent := &models.Coupon{
		Code: "PCT10", Name: "九折", Type: constants.CouponTypePercentage,
		Value: money(10), IsActive: true, IsPublic: true, AutoApply: true,
		IsStackable: true, Priority: 10,
	}
	fixed := &models.Coupon{
		Code: "OFF20", Name: "立减", Type: constants.CouponTypeFixed,
		Value: money(20), IsActive: true, IsPublic: true, AutoApply: true,
		IsStackable: true, Priority: 5,
	}
	if err := db.Create(percent).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	if err := db.Create(fixed).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	lines := []CartLine{{ProductID: 1, UnitPrice: money(100), Quantity: 2}}
	result, err := resolver.Resolve(resolverTestUser(), lines, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if len(result.Applied) != 2 {
		t.Fatalf("applied want 2 got %+v", result.Applied)
	}
	// 200 先九折减 20，余 180 再立减 20
	if !result.Applied[0].Discount.Decimal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("first discount want 20 got %s", result.Applied[0].Discount.Decimal)
	}
	if !result.TotalDiscount.Decimal.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("total discount want 40 got %s", result.TotalDiscount.Decimal)
	}
	if !result.PayableTotal.Decimal.Equal(decimal.NewFromInt(160)) {
		t.Fatalf("payable want 160 got %s", result.PayableTotal.Decimal)
	}
}

func TestResolveUnknownCodeBecomesRejection(t *testing.T) {
	resolver, _ := setupResolverTest(t)

	lines := []CartLine{{ProductID: 1, UnitPrice: money(50), Quantity: 1}}
	result, err := resolver.Resolve(resolverTestUser(), lines, "NOPE")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(result.Applied) != 0 {
		t.Fatalf("applied want empty got %+v", result.Applied)
	}
	if len(result.Rejections) != 1 || result.Rejections[0].Reason != ReasonCouponNotFound {
		t.Fatalf("rejections want [coupon not found] got %+v", result.Rejections)
	}
	if !result.PayableTotal.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("payable want 50 got %s", result.PayableTotal.Decimal)
	}
}

func TestResolveFlashLinesAllOrNothing(t *testing.T) {
	resolver, db := setupResolverTest(t)

	now := time.Now()
	sale := &models.FlashSale{Name: "闪购", StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}
	if err := db.Create(sale).Error; err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	inStock := &models.FlashSaleItem{SaleID: sale.ID, ProductID: 1, SalePrice: money(10), TotalQuantity: 5}
	soldOut := &models.FlashSaleItem{SaleID: sale.ID, ProductID: 2, SalePrice: money(20), TotalQuantity: 1, SoldQuantity: 1}
	if err := db.Create(inStock).Error; err != nil {
		t.Fatalf("create item failed: %v", err)
	}
	if err := db.Create(soldOut).Error; err != nil {
		t.Fatalf("create item failed: %v", err)
	}

	user := resolverTestUser()
	lines := []CartLine{
		{ProductID: 1, UnitPrice: money(10), Quantity: 1, IsFlashSale: true, FlashSaleID: sale.ID},
		{ProductID: 2, UnitPrice: money(20), Quantity: 1, IsFlashSale: true, FlashSaleID: sale.ID},
	}

	_, err := resolver.Resolve(user, lines, "")
	var lineErr *FlashSaleLineError
	if !errors.As(err, &lineErr) {
		t.Fatalf("want FlashSaleLineError got %v", err)
	}
	if lineErr.ProductID != 2 || !errors.Is(err, ErrFlashSaleSoldOut) {
		t.Fatalf("line error mismatch: %+v", lineErr)
	}

	// 失败后已建立的预留必须回滚：仅有货的行可以立即重新预留
	okLines := []CartLine{
		{ProductID: 1, UnitPrice: money(10), Quantity: 5, IsFlashSale: true, FlashSaleID: sale.ID},
	}
	if _, err := resolver.Resolve(user, okLines, ""); err != nil {
		t.Fatalf("resolve after rollback failed: %v", err)
	}
}

func TestPreviewHoldsNothing(t *testing.T) {
	resolver, db := setupResolverTest(t)

	coupon := &models.Coupon{
		Code: "ONCE", Name: "单次", Type: constants.CouponTypeFixed,
		Value: money(5), UsageLimit: 1, IsActive: true, IsPublic: true, AutoApply: true,
	}
	if err := db.Create(coupon).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	user := resolverTestUser()
	lines := []CartLine{{ProductID: 1, UnitPrice: money(50), Quantity: 1}}

	for i := 0; i < 3; i++ {
		result, err := resolver.Preview(user, lines, "")
		if err != nil {
			t.Fatalf("preview %d failed: %v", i, err)
		}
		if len(result.Applied) != 1 {
			t.Fatalf("preview %d applied want 1 got %+v", i, result.Applied)
		}
	}

	// 试算不占名额，正式结算仍可预留
	result, err := resolver.Resolve(user, lines, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(result.Applied) != 1 {
		t.Fatalf("resolve applied want 1 got %+v", result.Applied)
	}
}

func TestResolveExplicitCapacityFailure(t *testing.T) {
	resolver, db := setupResolverTest(t)

	coupon := &models.Coupon{
		Code: "TIGHT", Name: "限量", Type: constants.CouponTypeFixed,
		Value: money(5), UsageLimit: 1, UsedCount: 0, IsActive: true, IsPublic: true,
	}
	if err := db.Create(coupon).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	user := resolverTestUser()
	lines := []CartLine{{ProductID: 1, UnitPrice: money(50), Quantity: 1}}

	first, err := resolver.Resolve(user, lines, "TIGHT")
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	if len(first.Applied) != 1 {
		t.Fatalf("first applied want 1 got %+v", first.Applied)
	}

	// 名额被未决预留占满，显式请求整体失败
	other := UserProfile{ID: 2, CreatedAt: time.Now().AddDate(-1, 0, 0)}
	if _, err := resolver.Resolve(other, lines, "TIGHT"); !errors.Is(err, ErrCouponUsageLimit) {
		t.Fatalf("second resolve want ErrCouponUsageLimit got %v", err)
	}
}

func TestResolveBuyXGetYNeverStacks(t *testing.T) {
	resolver, db := setupResolverTest(t)

	bxgy := &models.Coupon{
		Code: "B2G1", Name: "买二赠一", Type: constants.CouponTypeBuyXGetY,
		BuyQuantity: 2, GetQuantity: 1, GetDiscountPercent: 100,
		IsActive: true, IsPublic: true, AutoApply: true, IsStackable: true, Priority: 10,
	}
	off := &models.Coupon{
		Code: "OFF5", Name: "立减", Type: constants.CouponTypeFixed,
		Value: money(5), IsActive: true, IsPublic: true, AutoApply: true, IsStackable: true, Priority: 5,
	}
	if err := db.Create(bxgy).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	if err := db.Create(off).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	lines := []CartLine{{ProductID: 1, UnitPrice: money(30), Quantity: 3}}
	result, err := resolver.Resolve(resolverTestUser(), lines, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// 买赠券无视叠加标记，策略上整体退化为单券
	if len(result.Applied) != 1 || result.Applied[0].Code != "B2G1" {
		t.Fatalf("applied want [B2G1] got %+v", result.Applied)
	}
	if result.TotalDiscount.MinorUnits() != 3000 {
		t.Fatalf("discount want 30.00 got %s", result.TotalDiscount.String())
	}
	found := false
	for _, rejection := range result.Rejections {
		if rejection.Code == "OFF5" && rejection.Reason == ReasonStackingConflict {
			found = true
		}
	}
	if !found {
		t.Fatalf("OFF5 stacking rejection missing: %+v", result.Rejections)
	}
}

func TestResolveFreeShippingPropagates(t *testing.T) {
	resolver, db := setupResolverTest(t)

	freeShip := &models.Coupon{
		Code: "FREESHIP", Name: "免运费", Type: constants.CouponTypeFreeShipping,
		IsActive: true, IsPublic: true, AutoApply: true, IsStackable: true, Priority: 5,
	}
	fixed := &models.Coupon{
		Code: "OFF10", Name: "立减", Type: constants.CouponTypeFixed,
		Value: money(10), IsActive: true, IsPublic: true, AutoApply: true, IsStackable: true, Priority: 10,
	}
	if err := db.Create(freeShip).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	if err := db.Create(fixed).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	lines := []CartLine{{ProductID: 1, UnitPrice: money(100), Quantity: 1}}
	result, err := resolver.Resolve(resolverTestUser(), lines, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// 免运费标记上提到整体结果，金额不变
	if !result.FreeShipping {
		t.Fatalf("result free shipping want true, applied %+v", result.Applied)
	}
	if len(result.Applied) != 2 {
		t.Fatalf("applied want 2 got %+v", result.Applied)
	}
	for _, applied := range result.Applied {
		if applied.Code == "FREESHIP" {
			if !applied.FreeShipping {
				t.Fatalf("FREESHIP entry free shipping want true")
			}
			if applied.Discount.MinorUnits() != 0 {
				t.Fatalf("FREESHIP discount want 0 got %s", applied.Discount.String())
			}
		}
	}
	if !result.PayableTotal.Decimal.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("payable want 90 got %s", result.PayableTotal.Decimal)
	}

	preview, err := resolver.Preview(resolverTestUser(), lines, "")
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if !preview.FreeShipping {
		t.Fatalf("preview free shipping want true")
	}
}

func TestResolveDropsCouponBelowRunningMinimum(t *testing.T) {
	resolver, db := setupResolverTest(t)

	big := &models.Coupon{
		Code: "BIG60", Name: "大额立减", Type: constants.CouponTypeFixed,
		Value: money(60), IsActive: true, IsPublic: true, AutoApply: true,
		IsStackable: true, Priority: 10,
	}
	min := &models.Coupon{
		Code: "MIN10", Name: "满减", Type: constants.CouponTypeFixed,
		Value: money(10), MinOrderAmount: money(50), UsageLimit: 1,
		IsActive: true, IsPublic: true, AutoApply: true, IsStackable: true, Priority: 5,
	}
	if err := db.Create(big).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	if err := db.Create(min).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	// 小计 100 满足 MIN10 门槛，但 BIG60 先扣后剩 40 已不满足
	lines := []CartLine{{ProductID: 1, UnitPrice: money(100), Quantity: 1}}
	result, err := resolver.Resolve(resolverTestUser(), lines, "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if len(result.Applied) != 1 || result.Applied[0].Code != "BIG60" {
		t.Fatalf("applied want [BIG60] got %+v", result.Applied)
	}
	found := false
	for _, rejection := range result.Rejections {
		if rejection.Code == "MIN10" {
			found = true
			if rejection.Reason != ErrCouponMinimumNotMet.Error() {
				t.Fatalf("rejection reason want %q got %q", ErrCouponMinimumNotMet.Error(), rejection.Reason)
			}
		}
	}
	if !found {
		t.Fatalf("MIN10 rejection missing: %+v", result.Rejections)
	}
	if !result.PayableTotal.Decimal.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("payable want 40 got %s", result.PayableTotal.Decimal)
	}

	// 被弃用的券不得占用名额：总上限 1 的预留仍可成功
	res, err := resolver.ledger.TryReserve(min.ID, 2)
	if err != nil {
		t.Fatalf("reserve after drop failed: %v", err)
	}
	resolver.ledger.Release(res)
}
