package service

import (
	"context"
	"time"

	"github.com/flashmart-next/internal/cache"
	"github.com/flashmart-next/internal/logger"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"
)

// FlashSaleService 闪购活动查询服务
type FlashSaleService struct {
	saleRepo repository.FlashSaleRepository
}

// NewFlashSaleService 创建闪购服务
func NewFlashSaleService(saleRepo repository.FlashSaleRepository) *FlashSaleService {
	return &FlashSaleService{saleRepo: saleRepo}
}

// FlashSaleItemView 闪购条目视图，剩余量与折扣率按当前计数推导
type FlashSaleItemView struct {
	ProductID       uint         `json:"product_id"`
	OriginalPrice   models.Money `json:"original_price"`
	SalePrice       models.Money `json:"sale_price"`
	DiscountPercent string       `json:"discount_percent"`
	TotalQuantity   int          `json:"total_quantity"` // -1 表示不限量
	SoldQuantity    int          `json:"sold_quantity"`
	Remaining       int          `json:"remaining"` // -1 表示不限量
	PerUserLimit    int          `json:"per_user_limit"`
}

// FlashSaleView 闪购活动视图，状态由时间窗口与取消标记推导
type FlashSaleView struct {
	ID       uint                `json:"id"`
	Name     string              `json:"name"`
	Status   string              `json:"status"`
	StartsAt time.Time           `json:"starts_at"`
	EndsAt   time.Time           `json:"ends_at"`
	Items    []FlashSaleItemView `json:"items"`
}

func newFlashSaleView(sale *models.FlashSale, now time.Time) FlashSaleView {
	view := FlashSaleView{
		ID:       sale.ID,
		Name:     sale.Name,
		Status:   sale.Status(now),
		StartsAt: sale.StartsAt,
		EndsAt:   sale.EndsAt,
		Items:    make([]FlashSaleItemView, 0, len(sale.Items)),
	}
	for i := range sale.Items {
		item := &sale.Items[i]
		view.Items = append(view.Items, FlashSaleItemView{
			ProductID:       item.ProductID,
			OriginalPrice:   item.OriginalPrice,
			SalePrice:       item.SalePrice,
			DiscountPercent: item.DiscountPercent().StringFixed(2),
			TotalQuantity:   item.TotalQuantity,
			SoldQuantity:    item.SoldQuantity,
			Remaining:       item.RemainingQuantity(),
			PerUserLimit:    item.PerUserLimit,
		})
	}
	return view
}

// ListActive 获取进行中的闪购活动；短 TTL 缓存挡住列表页热点读
func (s *FlashSaleService) ListActive(ctx context.Context) ([]FlashSaleView, error) {
	var cached []FlashSaleView
	if hit, err := cache.GetActiveSales(ctx, &cached); err == nil && hit {
		return cached, nil
	}

	now := time.Now()
	sales, err := s.saleRepo.ListActive(now)
	if err != nil {
		return nil, err
	}
	views := make([]FlashSaleView, 0, len(sales))
	for i := range sales {
		views = append(views, newFlashSaleView(&sales[i], now))
	}
	if err := cache.SetActiveSales(ctx, views); err != nil {
		logger.Warnw("flash_sale_cache_write_failed", "error", err)
	}
	return views, nil
}

// GetByID 获取闪购活动详情
func (s *FlashSaleService) GetByID(id uint) (*FlashSaleView, error) {
	sale, err := s.saleRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrFlashSaleNotFound
	}
	view := newFlashSaleView(sale, time.Now())
	return &view, nil
}
