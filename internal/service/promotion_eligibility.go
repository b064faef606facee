package service

import (
	"time"

	"github.com/flashmart-next/internal/models"
)

// 资格判定失败原因，随拒绝结果返回给调用方展示
const (
	ReasonCouponInactive    = "coupon is not active"
	ReasonCouponNotStarted  = "coupon is not yet valid"
	ReasonCouponExpired     = "coupon has expired"
	ReasonUsageExhausted    = "coupon usage limit reached"
	ReasonUserExcluded      = "user is excluded from this coupon"
	ReasonUserTagMismatch   = "user type is not eligible"
	ReasonNoEligibleItems   = "no eligible items in cart"
	ReasonMinOrderNotMet    = "order total below coupon minimum"
	ReasonMinQuantityNotMet = "order quantity below coupon minimum"
)

// EligibilityResult 资格判定结果；不通过时 Reason 说明原因
type EligibilityResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func eligible() EligibilityResult {
	return EligibilityResult{OK: true}
}

func ineligible(reason string) EligibilityResult {
	return EligibilityResult{OK: false, Reason: reason}
}

// EligibilityEvaluator 优惠券资格判定器。
// 纯函数式：只读入参，不访问存储、不产生副作用。
type EligibilityEvaluator struct{}

// NewEligibilityEvaluator 创建资格判定器
func NewEligibilityEvaluator() *EligibilityEvaluator {
	return &EligibilityEvaluator{}
}

// IsApplicable 判断优惠券对当前用户与购物车是否适用
func (e *EligibilityEvaluator) IsApplicable(coupon *models.Coupon, user UserProfile, lines []CartLine, now time.Time) EligibilityResult {
	if coupon == nil {
		return ineligible(ReasonCouponInactive)
	}

	// 全局门槛：启用状态、有效期（左闭右开）、总用量
	if !coupon.IsActive {
		return ineligible(ReasonCouponInactive)
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return ineligible(ReasonCouponNotStarted)
	}
	if coupon.EndsAt != nil && !now.Before(*coupon.EndsAt) {
		return ineligible(ReasonCouponExpired)
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return ineligible(ReasonUsageExhausted)
	}

	// 用户门槛
	if coupon.ExcludedUserIDs.Contains(user.ID) {
		return ineligible(ReasonUserExcluded)
	}
	if !user.MatchesAnyTag(coupon.ApplicableUserTags, now) {
		return ineligible(ReasonUserTagMismatch)
	}

	// 商品/分类门槛：未配置范围时全部通过，否则至少一行命中
	if coupon.HasScopeFilter() {
		matched := false
		for _, line := range lines {
			if lineEligible(coupon, line) {
				matched = true
				break
			}
		}
		if !matched {
			return ineligible(ReasonNoEligibleItems)
		}
	}

	// 订单门槛
	subtotal := cartSubtotal(lines)
	if subtotal.Decimal.Cmp(coupon.MinOrderAmount.Decimal) < 0 {
		return ineligible(ReasonMinOrderNotMet)
	}
	if coupon.MinQuantity > 0 && cartQuantity(lines) < coupon.MinQuantity {
		return ineligible(ReasonMinQuantityNotMet)
	}

	return eligible()
}

// lineEligible 单行商品是否命中优惠券的商品/分类范围。
// 排除集合优先；适用集合为空表示不限。
func lineEligible(coupon *models.Coupon, line CartLine) bool {
	if coupon.ExcludedProductIDs.Contains(line.ProductID) {
		return false
	}
	if line.CategoryID > 0 && coupon.ExcludedCategoryIDs.Contains(line.CategoryID) {
		return false
	}
	if len(coupon.ApplicableProductIDs) > 0 && !coupon.ApplicableProductIDs.Contains(line.ProductID) {
		return false
	}
	if len(coupon.ApplicableCategoryIDs) > 0 && !coupon.ApplicableCategoryIDs.Contains(line.CategoryID) {
		return false
	}
	return true
}
