package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flashmart-next/internal/constants"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"

	"github.com/shopspring/decimal"
)

// 编排阶段的拒绝原因
const (
	ReasonCouponNotFound   = "coupon not found"
	ReasonCouponNotPublic  = "coupon is not publicly redeemable"
	ReasonStackingConflict = "non-stackable conflict"
	ReasonStackingLimit    = "stacking limit reached"
	ReasonUsageCapacity    = "coupon usage capacity exhausted"
	ReasonPerUserCapacity  = "coupon per-user capacity exhausted"
)

// AppliedPromotion 一条已应用的优惠
type AppliedPromotion struct {
	CouponID     uint         `json:"coupon_id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Discount     models.Money `json:"discount"`
	FreeShipping bool         `json:"free_shipping"`

	reservation *UsageReservation
}

// PromotionRejection 一条被拒绝的优惠及原因，用于前端展示
type PromotionRejection struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// ResolutionResult 促销编排结果。
// 预留凭证由调用方（订单流程）在支付确认后提交、失败后释放。
type ResolutionResult struct {
	Applied       []AppliedPromotion   `json:"applied"`
	Rejections    []PromotionRejection `json:"rejections"`
	Subtotal      models.Money         `json:"subtotal"`
	TotalDiscount models.Money         `json:"total_discount"`
	PayableTotal  models.Money         `json:"payable_total"`
	FreeShipping  bool                 `json:"free_shipping"`

	usageReservations     []*UsageReservation
	inventoryReservations []*InventoryReservation
}

// FlashSaleLineError 闪购行预留失败，指明出错的行
type FlashSaleLineError struct {
	SaleID    uint
	ProductID uint
	Quantity  int
	Err       error
}

func (e *FlashSaleLineError) Error() string {
	return fmt.Sprintf("闪购条目预留失败 sale=%d product=%d qty=%d: %v", e.SaleID, e.ProductID, e.Quantity, e.Err)
}

func (e *FlashSaleLineError) Unwrap() error {
	return e.Err
}

// PromotionResolver 促销编排器。
// 汇集候选优惠券、执行资格判定与折扣计算、落实叠加策略，
// 并在结算路径上为闪购行与优惠券用量建立预留。
type PromotionResolver struct {
	couponRepo repository.CouponRepository
	evaluator  *EligibilityEvaluator
	calculator *DiscountCalculator
	ledger     *UsageLedger
	arbiter    *InventoryArbiter
	maxStacked int
	now        func() time.Time
}

// NewPromotionResolver 创建促销编排器
func NewPromotionResolver(
	couponRepo repository.CouponRepository,
	evaluator *EligibilityEvaluator,
	calculator *DiscountCalculator,
	ledger *UsageLedger,
	arbiter *InventoryArbiter,
	maxStacked int,
) *PromotionResolver {
	return &PromotionResolver{
		couponRepo: couponRepo,
		evaluator:  evaluator,
		calculator: calculator,
		ledger:     ledger,
		arbiter:    arbiter,
		maxStacked: maxStacked,
		now:        time.Now,
	}
}

// candidate 候选优惠券及编排中间状态
type candidate struct {
	coupon    *models.Coupon
	explicit  bool
	tentative models.Money
}

// Resolve 编排一次结算：选出生效优惠并建立全部预留。
// 闪购行预留是全或无：任一行被拒则整体失败并回滚已持有的预留。
// 显式请求的优惠券在预留容量不足时同样使整体失败；
// 自动应用的优惠券容量不足只降级为一条拒绝记录。
func (r *PromotionResolver) Resolve(user UserProfile, lines []CartLine, requestedCode string) (*ResolutionResult, error) {
	return r.resolve(user, lines, requestedCode, false)
}

// Preview 只读编排：不建立任何预留，用于结算前展示
func (r *PromotionResolver) Preview(user UserProfile, lines []CartLine, requestedCode string) (*ResolutionResult, error) {
	return r.resolve(user, lines, requestedCode, true)
}

func (r *PromotionResolver) resolve(user UserProfile, lines []CartLine, requestedCode string, dryRun bool) (*ResolutionResult, error) {
	if err := validateCartLines(lines); err != nil {
		return nil, err
	}

	now := r.now()
	subtotal := cartSubtotal(lines)
	result := &ResolutionResult{
		Applied:    []AppliedPromotion{},
		Rejections: []PromotionRejection{},
		Subtotal:   subtotal,
	}

	candidates, err := r.collectCandidates(requestedCode, now, result)
	if err != nil {
		return nil, err
	}

	// 资格过滤，拒绝原因透出给调用方
	eligibleCandidates := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		verdict := r.evaluator.IsApplicable(c.coupon, user, lines, now)
		if !verdict.OK {
			result.Rejections = append(result.Rejections, PromotionRejection{Code: c.coupon.Code, Reason: verdict.Reason})
			continue
		}
		// 基于全量小计的试算折扣，仅用于排序与平手裁决
		calc, err := r.calculator.Calculate(c.coupon, lines, subtotal)
		if err != nil {
			result.Rejections = append(result.Rejections, PromotionRejection{Code: c.coupon.Code, Reason: err.Error()})
			continue
		}
		c.tentative = calc.Amount
		eligibleCandidates = append(eligibleCandidates, c)
	}

	selected := r.applyStackingPolicy(eligibleCandidates, result)

	// 逐个应用：预留用量后基于滚动余额计算折扣
	running := subtotal
	for _, c := range selected {
		var res *UsageReservation
		if !dryRun {
			reserved, err := r.ledger.TryReserve(c.coupon.ID, user.ID)
			if err != nil {
				switch {
				case c.explicit:
					// 显式请求的优惠券容量不足，整体失败
					r.releaseAll(result)
					return nil, err
				case errors.Is(err, ErrCouponUsageLimit):
					result.Rejections = append(result.Rejections, PromotionRejection{Code: c.coupon.Code, Reason: ReasonUsageCapacity})
					continue
				case errors.Is(err, ErrCouponPerUserLimit):
					result.Rejections = append(result.Rejections, PromotionRejection{Code: c.coupon.Code, Reason: ReasonPerUserCapacity})
					continue
				default:
					r.releaseAll(result)
					return nil, err
				}
			}
			res = reserved
		}

		applied, err := r.applyOne(c, lines, &running)
		if err != nil {
			// 滚动余额已低于该券门槛：让出名额，不产生零折扣用量
			if res != nil {
				r.ledger.Release(res)
			}
			result.Rejections = append(result.Rejections, PromotionRejection{Code: c.coupon.Code, Reason: err.Error()})
			continue
		}
		applied.reservation = res
		if res != nil {
			result.usageReservations = append(result.usageReservations, res)
		}
		result.Applied = append(result.Applied, applied)
		result.FreeShipping = result.FreeShipping || applied.FreeShipping
	}

	// 闪购行全或无预留
	if !dryRun {
		if err := r.reserveFlashLines(user, lines, result); err != nil {
			r.releaseAll(result)
			return nil, err
		}
	}

	result.TotalDiscount = models.NewMoneyFromDecimal(subtotal.Decimal.Sub(running.Decimal))
	result.PayableTotal = running
	return result, nil
}

// collectCandidates 汇集候选：显式请求的优惠码 + 当前有效的自动应用券
func (r *PromotionResolver) collectCandidates(requestedCode string, now time.Time, result *ResolutionResult) ([]*candidate, error) {
	candidates := make([]*candidate, 0, 4)
	seen := make(map[uint]bool)

	trimmed := strings.TrimSpace(requestedCode)
	if trimmed != "" {
		coupon, err := r.couponRepo.GetByCode(trimmed)
		if err != nil {
			return nil, err
		}
		switch {
		case coupon == nil:
			result.Rejections = append(result.Rejections, PromotionRejection{Code: trimmed, Reason: ReasonCouponNotFound})
		case !coupon.IsPublic:
			result.Rejections = append(result.Rejections, PromotionRejection{Code: coupon.Code, Reason: ReasonCouponNotPublic})
		default:
			candidates = append(candidates, &candidate{coupon: coupon, explicit: true})
			seen[coupon.ID] = true
		}
	}

	autoApply, err := r.couponRepo.ListAutoApply(now)
	if err != nil {
		return nil, err
	}
	for i := range autoApply {
		coupon := &autoApply[i]
		if seen[coupon.ID] {
			continue
		}
		seen[coupon.ID] = true
		candidates = append(candidates, &candidate{coupon: coupon})
	}
	return candidates, nil
}

// applyStackingPolicy 落实叠加策略：
// 任一候选不可叠加时只保留最高优先级一张（平手先比试算折扣大小，
// 再比创建时间早晚），其余记为 non-stackable conflict；
// 全部可叠加时按优先级降序全数保留，受可叠加上限约束。
func (r *PromotionResolver) applyStackingPolicy(candidates []*candidate, result *ResolutionResult) []*candidate {
	if len(candidates) == 0 {
		return candidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.coupon.Priority != b.coupon.Priority {
			return a.coupon.Priority > b.coupon.Priority
		}
		if !a.tentative.Decimal.Equal(b.tentative.Decimal) {
			return a.tentative.Decimal.GreaterThan(b.tentative.Decimal)
		}
		return a.coupon.CreatedAt.Before(b.coupon.CreatedAt)
	})

	hasNonStackable := false
	for _, c := range candidates {
		if !isStackableCoupon(c.coupon) {
			hasNonStackable = true
			break
		}
	}
	if hasNonStackable && len(candidates) > 1 {
		for _, loser := range candidates[1:] {
			result.Rejections = append(result.Rejections, PromotionRejection{Code: loser.coupon.Code, Reason: ReasonStackingConflict})
		}
		return candidates[:1]
	}

	if r.maxStacked > 0 && len(candidates) > r.maxStacked {
		for _, overflow := range candidates[r.maxStacked:] {
			result.Rejections = append(result.Rejections, PromotionRejection{Code: overflow.coupon.Code, Reason: ReasonStackingLimit})
		}
		return candidates[:r.maxStacked]
	}
	return candidates
}

// isStackableCoupon 判断优惠券是否参与叠加。
// 多张买赠券对同一批行叠加的扣减语义未定义，买赠类型一律按不可叠加处理。
func isStackableCoupon(c *models.Coupon) bool {
	return c.IsStackable && c.Type != constants.CouponTypeBuyXGetY
}

// applyOne 基于滚动余额计算并累积一张券的折扣。
// 前序扣减后剩余金额不再满足门槛、或算出的折扣为零时返回错误，
// 由调用方弃用该券，避免写入零折扣的用量记录。
func (r *PromotionResolver) applyOne(c *candidate, lines []CartLine, running *models.Money) (AppliedPromotion, error) {
	if c.coupon.MinOrderAmount.Decimal.GreaterThan(decimal.Zero) && running.Decimal.LessThan(c.coupon.MinOrderAmount.Decimal) {
		return AppliedPromotion{}, ErrCouponMinimumNotMet
	}
	calc, err := r.calculator.Calculate(c.coupon, lines, *running)
	if err != nil {
		return AppliedPromotion{}, err
	}
	if !calc.FreeShipping && !calc.Amount.Decimal.IsPositive() {
		return AppliedPromotion{}, ErrCouponNoEffect
	}

	applied := AppliedPromotion{
		CouponID:     c.coupon.ID,
		Code:         c.coupon.Code,
		Name:         c.coupon.Name,
		Discount:     calc.Amount,
		FreeShipping: calc.FreeShipping,
	}
	next := running.Decimal.Sub(calc.Amount.Decimal)
	if next.IsNegative() {
		next = decimal.Zero
	}
	*running = models.NewMoneyFromDecimal(next)
	return applied, nil
}

// reserveFlashLines 为购物车中的闪购行建立库存预留，全或无
func (r *PromotionResolver) reserveFlashLines(user UserProfile, lines []CartLine, result *ResolutionResult) error {
	// 同一 (sale, product) 的行合并为一次预留
	type flashKey struct {
		saleID    uint
		productID uint
	}
	quantities := make(map[flashKey]int)
	order := make([]flashKey, 0)
	for _, line := range lines {
		if !line.IsFlashSale {
			continue
		}
		key := flashKey{line.FlashSaleID, line.ProductID}
		if _, ok := quantities[key]; !ok {
			order = append(order, key)
		}
		quantities[key] += line.Quantity
	}

	for _, key := range order {
		res, err := r.arbiter.Reserve(key.saleID, key.productID, user.ID, quantities[key])
		if err != nil {
			return &FlashSaleLineError{
				SaleID:    key.saleID,
				ProductID: key.productID,
				Quantity:  quantities[key],
				Err:       err,
			}
		}
		result.inventoryReservations = append(result.inventoryReservations, res)
	}
	return nil
}

// CommitAll 支付确认后提交结果持有的全部预留
func (r *PromotionResolver) CommitAll(result *ResolutionResult, orderID uint) error {
	if result == nil {
		return nil
	}
	var firstErr error
	for _, res := range result.inventoryReservations {
		if err := r.arbiter.Commit(res, orderID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, applied := range result.Applied {
		if applied.reservation == nil {
			continue
		}
		if err := r.ledger.Commit(applied.reservation, orderID, applied.Discount, result.PayableTotal); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReleaseAll 支付失败或订单取消时释放结果持有的全部预留。幂等。
func (r *PromotionResolver) ReleaseAll(result *ResolutionResult) {
	r.releaseAll(result)
}

func (r *PromotionResolver) releaseAll(result *ResolutionResult) {
	if result == nil {
		return
	}
	for _, res := range result.usageReservations {
		r.ledger.Release(res)
	}
	for _, res := range result.inventoryReservations {
		r.arbiter.Release(res)
	}
}
