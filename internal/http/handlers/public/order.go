package public

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/flashmart-next/internal/http/handlers/shared"
	"github.com/flashmart-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// CheckoutRequest 结算请求
type CheckoutRequest struct {
	CouponCode string `json:"coupon_code"`
}

// Checkout 结算下单：编排促销、建立预留并创建待支付订单
func (h *Handler) Checkout(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	// 结算请求体可省略，省略时不指定券码
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	order, result, err := h.OrderService.Checkout(uid, strings.TrimSpace(req.CouponCode), c.ClientIP())
	if err != nil {
		respondWithMappedError(c, err, checkoutErrorRules, response.CodeInternal, "下单失败")
		return
	}

	response.Success(c, gin.H{
		"order":      order,
		"promotions": result,
	})
}

// ConfirmPayment 确认支付：提交全部预留并将订单置为已支付
func (h *Handler) ConfirmPayment(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "订单ID无效", nil)
		return
	}

	order, err := h.OrderService.ConfirmPayment(uid, uint(orderID))
	if err != nil {
		respondWithMappedError(c, err, orderErrorRules, response.CodeInternal, "支付确认失败")
		return
	}

	response.Success(c, order)
}

// CancelOrder 取消待支付订单并释放全部预留
func (h *Handler) CancelOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "订单ID无效", nil)
		return
	}

	if err := h.OrderService.Cancel(uid, uint(orderID)); err != nil {
		respondWithMappedError(c, err, orderErrorRules, response.CodeInternal, "取消订单失败")
		return
	}

	response.Success(c, gin.H{"canceled": true})
}

// GetOrder 订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "订单ID无效", nil)
		return
	}

	order, err := h.OrderService.GetByID(uid, uint(orderID))
	if err != nil {
		respondWithMappedError(c, err, orderErrorRules, response.CodeInternal, "获取订单失败")
		return
	}

	response.Success(c, order)
}

// ListOrders 用户订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)
	status := c.Query("status")

	orders, total, err := h.OrderService.ListByUser(uid, status, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "获取订单列表失败", err)
		return
	}

	response.SuccessWithPage(c, gin.H{"items": orders}, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}
