package public

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/flashmart-next/internal/http/handlers/shared"
	"github.com/flashmart-next/internal/http/response"
	"github.com/flashmart-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CouponPreviewRequest 优惠试算请求
type CouponPreviewRequest struct {
	Code string `json:"code"`
}

// ListCoupons 公开优惠券列表
func (h *Handler) ListCoupons(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	coupons, total, err := h.CouponService.ListPublic(page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "获取优惠券列表失败", err)
		return
	}

	response.SuccessWithPage(c, gin.H{"items": coupons}, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// GetCoupon 按券码查询优惠券
func (h *Handler) GetCoupon(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		respondError(c, response.CodeBadRequest, "券码不能为空", nil)
		return
	}

	coupon, err := h.CouponService.GetByCode(code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCouponNotFound):
			respondError(c, response.CodeNotFound, "优惠券不存在", nil)
		case errors.Is(err, service.ErrCouponNotPublic):
			respondError(c, response.CodeForbidden, "优惠券不可公开使用", nil)
		default:
			respondError(c, response.CodeInternal, "获取优惠券失败", err)
		}
		return
	}

	response.Success(c, coupon)
}

// PreviewPromotions 基于当前购物车试算优惠，不建立任何预留
func (h *Handler) PreviewPromotions(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	// 请求体可省略，省略时仅试算自动应用的优惠
	var req CouponPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	user, err := h.UserAuthService.GetProfile(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "获取用户信息失败", err)
		return
	}

	lines, err := h.CartService.BuildCheckoutLines(uid)
	if err != nil {
		respondWithMappedError(c, err, checkoutErrorRules, response.CodeInternal, "构建结算明细失败")
		return
	}

	result, err := h.CouponService.Preview(service.NewUserProfile(user), lines, strings.TrimSpace(req.Code))
	if err != nil {
		respondWithMappedError(c, err, checkoutErrorRules, response.CodeInternal, "优惠试算失败")
		return
	}

	response.Success(c, result)
}
