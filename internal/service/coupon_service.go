package service

import (
	"strings"
	"time"

	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"
)

// CouponService 优惠券查询与试算服务
type CouponService struct {
	couponRepo repository.CouponRepository
	resolver   *PromotionResolver
}

// NewCouponService 创建优惠券服务
func NewCouponService(couponRepo repository.CouponRepository, resolver *PromotionResolver) *CouponService {
	return &CouponService{
		couponRepo: couponRepo,
		resolver:   resolver,
	}
}

// CouponView 暴露给前端的优惠券视图，隐藏内部计数与排除名单
type CouponView struct {
	ID             uint         `json:"id"`
	Code           string       `json:"code"`
	Name           string       `json:"name"`
	Type           string       `json:"type"`
	Value          models.Money `json:"value"`
	MaxDiscount    models.Money `json:"max_discount"`
	MinOrderAmount models.Money `json:"min_order_amount"`
	MinQuantity    int          `json:"min_quantity"`
	IsStackable    bool         `json:"is_stackable"`
	AutoApply      bool         `json:"auto_apply"`
	StartsAt       *time.Time   `json:"starts_at"`
	EndsAt         *time.Time   `json:"ends_at"`
	Remaining      int          `json:"remaining"` // -1 表示不限量
}

func newCouponView(coupon *models.Coupon) CouponView {
	return CouponView{
		ID:             coupon.ID,
		Code:           coupon.Code,
		Name:           coupon.Name,
		Type:           coupon.Type,
		Value:          coupon.Value,
		MaxDiscount:    coupon.MaxDiscount,
		MinOrderAmount: coupon.MinOrderAmount,
		MinQuantity:    coupon.MinQuantity,
		IsStackable:    coupon.IsStackable,
		AutoApply:      coupon.AutoApply,
		StartsAt:       coupon.StartsAt,
		EndsAt:         coupon.EndsAt,
		Remaining:      coupon.RemainingUsage(),
	}
}

// ListPublic 获取公开可用的优惠券列表
func (s *CouponService) ListPublic(page, pageSize int) ([]CouponView, int64, error) {
	active := true
	coupons, total, err := s.couponRepo.List(repository.CouponListFilter{
		Page:       page,
		PageSize:   pageSize,
		IsActive:   &active,
		OnlyPublic: true,
	})
	if err != nil {
		return nil, 0, err
	}
	views := make([]CouponView, 0, len(coupons))
	for i := range coupons {
		views = append(views, newCouponView(&coupons[i]))
	}
	return views, total, nil
}

// GetByCode 按优惠码获取公开优惠券
func (s *CouponService) GetByCode(code string) (*CouponView, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, ErrInvalidInput
	}
	coupon, err := s.couponRepo.GetByCode(trimmed)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}
	if !coupon.IsPublic {
		return nil, ErrCouponNotPublic
	}
	view := newCouponView(coupon)
	return &view, nil
}

// Preview 只读试算：对给定购物车与用户评估优惠码，不建立预留
func (s *CouponService) Preview(user UserProfile, lines []CartLine, code string) (*ResolutionResult, error) {
	return s.resolver.Preview(user, lines, code)
}
