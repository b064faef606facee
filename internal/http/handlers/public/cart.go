package public

import (
	"errors"
	"strconv"

	"github.com/flashmart-next/internal/http/response"
	"github.com/flashmart-next/internal/service"

	"github.com/gin-gonic/gin"
)

// CartItemRequest 购物车项请求
type CartItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// UpdateCartItemRequest 购物车项数量设置请求，数量允许为 0
type UpdateCartItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

// GetCart 获取购物车
func (h *Handler) GetCart(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	items, err := h.CartService.List(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "获取购物车失败", err)
		return
	}

	response.Success(c, gin.H{"items": items})
}

// AddCartItem 添加购物车项（已存在时累加数量）
func (h *Handler) AddCartItem(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	if err := h.CartService.Add(uid, req.ProductID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			respondError(c, response.CodeBadRequest, "数量无效", nil)
		case errors.Is(err, service.ErrProductNotFound):
			respondError(c, response.CodeBadRequest, "商品不存在", nil)
		case errors.Is(err, service.ErrProductInactive):
			respondError(c, response.CodeBadRequest, "商品已下架", nil)
		default:
			respondError(c, response.CodeInternal, "更新购物车失败", err)
		}
		return
	}

	response.Success(c, gin.H{"updated": true})
}

// UpdateCartItem 设置购物车项数量，数量为 0 时移除
func (h *Handler) UpdateCartItem(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	if err := h.CartService.UpdateQuantity(uid, req.ProductID, req.Quantity); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			respondError(c, response.CodeBadRequest, "数量无效", nil)
		case errors.Is(err, service.ErrProductNotFound):
			respondError(c, response.CodeBadRequest, "商品不存在", nil)
		case errors.Is(err, service.ErrProductInactive):
			respondError(c, response.CodeBadRequest, "商品已下架", nil)
		default:
			respondError(c, response.CodeInternal, "更新购物车失败", err)
		}
		return
	}

	response.Success(c, gin.H{"updated": true})
}

// RemoveCartItem 移除购物车项
func (h *Handler) RemoveCartItem(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	productID, err := strconv.ParseUint(c.Param("product_id"), 10, 64)
	if err != nil || productID == 0 {
		respondError(c, response.CodeBadRequest, "商品ID无效", nil)
		return
	}

	if err := h.CartService.Remove(uid, uint(productID)); err != nil {
		respondError(c, response.CodeInternal, "更新购物车失败", err)
		return
	}

	response.Success(c, gin.H{"removed": true})
}

// ClearCart 清空购物车
func (h *Handler) ClearCart(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	if err := h.CartService.Clear(uid); err != nil {
		respondError(c, response.CodeInternal, "清空购物车失败", err)
		return
	}

	response.Success(c, gin.H{"cleared": true})
}
