package service

import (
	"sort"

	"github.com/flashmart-next/internal/constants"
	"github.com/flashmart-next/internal/models"

	"github.com/shopspring/decimal"
)

// DiscountResult 折扣计算结果
type DiscountResult struct {
	Amount       models.Money `json:"amount"`        // 折扣金额（2 位小数）
	FreeShipping bool         `json:"free_shipping"` // 免运费标记，金额为 0，由外部运费计算消费
}

// DiscountCalculator 折扣计算器。
// 纯函数式：资格判定通过后调用，但仍防御性复查最低门槛，
// 应对判定与计算之间购物车被并发修改的竞态。
type DiscountCalculator struct{}

// NewDiscountCalculator 创建折扣计算器
func NewDiscountCalculator() *DiscountCalculator {
	return &DiscountCalculator{}
}

// Calculate 按优惠券类型计算折扣金额。
// cartTotal 为计算基数（叠加应用时传入扣减后的剩余总额）。
func (c *DiscountCalculator) Calculate(coupon *models.Coupon, lines []CartLine, cartTotal models.Money) (DiscountResult, error) {
	if coupon == nil {
		return DiscountResult{}, ErrCouponNotFound
	}
	if cartTotal.Decimal.IsNegative() {
		return DiscountResult{}, ErrInvalidInput
	}

	// 防御性复查最低门槛
	subtotal := cartSubtotal(lines)
	if subtotal.Decimal.Cmp(coupon.MinOrderAmount.Decimal) < 0 {
		return DiscountResult{}, ErrCouponMinimumNotMet
	}
	if coupon.MinQuantity > 0 && cartQuantity(lines) < coupon.MinQuantity {
		return DiscountResult{}, ErrCouponMinimumNotMet
	}

	var discount models.Money
	switch coupon.Type {
	case constants.CouponTypePercentage:
		discount = c.percentageDiscount(coupon, cartTotal)
	case constants.CouponTypeFixed:
		discount = c.fixedDiscount(coupon, cartTotal)
	case constants.CouponTypeFreeShipping:
		return DiscountResult{Amount: models.NewMoneyFromMinorUnits(0), FreeShipping: true}, nil
	case constants.CouponTypeBuyXGetY:
		discount = c.buyXGetYDiscount(coupon, lines)
	default:
		return DiscountResult{}, ErrInvalidInput
	}

	// 折扣永不超过计算基数，避免负总额
	if discount.Decimal.GreaterThan(cartTotal.Decimal) {
		discount = cartTotal
	}
	return DiscountResult{Amount: discount}, nil
}

// percentageDiscount 百分比折扣，受最大优惠金额封顶
func (c *DiscountCalculator) percentageDiscount(coupon *models.Coupon, cartTotal models.Money) models.Money {
	raw := cartTotal.Decimal.Mul(coupon.Value.Decimal).Div(decimal.NewFromInt(100))
	discount := models.NewMoneyFromDecimal(raw)
	if coupon.MaxDiscount.Decimal.GreaterThan(decimal.Zero) && discount.Decimal.GreaterThan(coupon.MaxDiscount.Decimal) {
		discount = models.NewMoneyFromDecimal(coupon.MaxDiscount.Decimal)
	}
	return discount
}

// fixedDiscount 固定金额折扣，不超过计算基数
func (c *DiscountCalculator) fixedDiscount(coupon *models.Coupon, cartTotal models.Money) models.Money {
	if coupon.Value.Decimal.GreaterThan(cartTotal.Decimal) {
		return cartTotal
	}
	return coupon.Value
}

// buyXGetYDiscount 买X赠Y：
// 将命中范围的行展开为按件单价列表，升序排序后对最便宜的
// sets*getQuantity 件按赠品折扣率减免。优惠最便宜的件数是
// 确定性的取舍，对顾客最有利。金额以最小货币单位整型运算。
func (c *DiscountCalculator) buyXGetYDiscount(coupon *models.Coupon, lines []CartLine) models.Money {
	if coupon.BuyQuantity <= 0 || coupon.GetQuantity <= 0 {
		return models.NewMoneyFromMinorUnits(0)
	}

	var unitCents []int64
	for _, line := range lines {
		if !lineEligible(coupon, line) {
			continue
		}
		cents := line.UnitPrice.MinorUnits()
		for i := 0; i < line.Quantity; i++ {
			unitCents = append(unitCents, cents)
		}
	}
	if len(unitCents) == 0 {
		return models.NewMoneyFromMinorUnits(0)
	}

	sort.Slice(unitCents, func(i, j int) bool { return unitCents[i] < unitCents[j] })

	sets := len(unitCents) / coupon.BuyQuantity
	freeUnits := sets * coupon.GetQuantity
	if freeUnits > len(unitCents) {
		freeUnits = len(unitCents)
	}

	percent := int64(coupon.GetDiscountPercent)
	if percent <= 0 {
		return models.NewMoneyFromMinorUnits(0)
	}
	if percent > 100 {
		percent = 100
	}

	var totalCents int64
	for i := 0; i < freeUnits; i++ {
		// 逐件四舍五入到分
		totalCents += (unitCents[i]*percent + 50) / 100
	}
	return models.NewMoneyFromMinorUnits(totalCents)
}
