package public

import (
	"errors"
	"strconv"

	"github.com/flashmart-next/internal/http/response"
	"github.com/flashmart-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListFlashSales 进行中的闪购活动列表
func (h *Handler) ListFlashSales(c *gin.Context) {
	sales, err := h.FlashSaleService.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "获取闪购活动失败", err)
		return
	}

	response.Success(c, gin.H{"items": sales})
}

// GetFlashSale 闪购活动详情
func (h *Handler) GetFlashSale(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "活动ID无效", nil)
		return
	}

	sale, err := h.FlashSaleService.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, service.ErrFlashSaleNotFound) {
			respondError(c, response.CodeNotFound, "闪购活动不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "获取闪购活动失败", err)
		return
	}

	response.Success(c, sale)
}
