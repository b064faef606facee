package public

import (
	"errors"
	"strconv"

	"github.com/flashmart-next/internal/http/handlers/shared"
	"github.com/flashmart-next/internal/http/response"
	"github.com/flashmart-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListProducts 商品列表
func (h *Handler) ListProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	categoryID, _ := strconv.ParseUint(c.Query("category_id"), 10, 64)
	search := c.Query("search")

	products, total, err := h.ProductService.List(page, pageSize, uint(categoryID), search)
	if err != nil {
		respondError(c, response.CodeInternal, "获取商品列表失败", err)
		return
	}

	response.SuccessWithPage(c, gin.H{"items": products}, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// GetProduct 商品详情
func (h *Handler) GetProduct(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		respondError(c, response.CodeBadRequest, "商品标识不能为空", nil)
		return
	}

	product, err := h.ProductService.GetBySlug(slug)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			respondError(c, response.CodeNotFound, "商品不存在", nil)
			return
		}
		respondError(c, response.CodeInternal, "获取商品失败", err)
		return
	}

	response.Success(c, product)
}

// ListCategories 分类列表
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.ProductService.ListCategories()
	if err != nil {
		respondError(c, response.CodeInternal, "获取分类列表失败", err)
		return
	}

	response.Success(c, gin.H{"items": categories})
}
