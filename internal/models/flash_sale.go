package models

import (
	"time"

	"github.com/flashmart-next/internal/constants"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FlashSale 闪购活动（限时限量特价）
type FlashSale struct {
	ID         uint           `gorm:"primarykey" json:"id"`                        // 主键
	Name       string         `gorm:"not null" json:"name"`                        // 活动名称
	StartsAt   time.Time      `gorm:"index;not null" json:"starts_at"`             // 开始时间
	EndsAt     time.Time      `gorm:"index;not null" json:"ends_at"`               // 结束时间
	IsCanceled bool           `gorm:"not null;default:false" json:"is_canceled"`   // 管理端取消标记
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`                     // 创建时间
	UpdatedAt  time.Time      `gorm:"index" json:"updated_at"`                     // 更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                              // 软删除时间

	Items []FlashSaleItem `gorm:"foreignKey:SaleID" json:"items,omitempty"` // 活动条目
}

// TableName 指定表名
func (FlashSale) TableName() string {
	return "flash_sales"
}

// Status 按时间窗口和取消标记派生活动状态（不落库，调用时计算）
func (s *FlashSale) Status(now time.Time) string {
	if s == nil {
		return constants.FlashSaleStatusEnded
	}
	if s.IsCanceled {
		return constants.FlashSaleStatusCanceled
	}
	if now.Before(s.StartsAt) {
		return constants.FlashSaleStatusScheduled
	}
	if !now.Before(s.EndsAt) {
		return constants.FlashSaleStatusEnded
	}
	return constants.FlashSaleStatusActive
}

// IsRunning 判断活动当前是否进行中
func (s *FlashSale) IsRunning(now time.Time) bool {
	return s.Status(now) == constants.FlashSaleStatusActive
}

// FlashSaleItem 闪购条目（单个商品的特价与限量）
type FlashSaleItem struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                             // 主键
	SaleID        uint           `gorm:"not null;uniqueIndex:idx_sale_product" json:"sale_id"`             // 活动ID
	ProductID     uint           `gorm:"not null;uniqueIndex:idx_sale_product" json:"product_id"`          // 商品ID
	OriginalPrice Money          `gorm:"type:decimal(20,2);not null;default:0" json:"original_price"`      // 原价
	SalePrice     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"sale_price"`          // 特价（不高于原价）
	TotalQuantity int            `gorm:"not null;default:-1" json:"total_quantity"`                        // 限量总数（-1 表示不限量）
	SoldQuantity  int            `gorm:"not null;default:0" json:"sold_quantity"`                          // 已售数量（仅由库存仲裁器更新）
	PerUserLimit  int            `gorm:"not null;default:0" json:"per_user_limit"`                         // 每人限购（0 表示不限制）
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                          // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                                          // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                                   // 软删除时间
}

// TableName 指定表名
func (FlashSaleItem) TableName() string {
	return "flash_sale_items"
}

// IsCapped 判断是否限量
func (i *FlashSaleItem) IsCapped() bool {
	return i != nil && i.TotalQuantity != constants.FlashSaleUncapped
}

// RemainingQuantity 返回剩余可售数量；不限量时返回 -1
func (i *FlashSaleItem) RemainingQuantity() int {
	if i == nil {
		return 0
	}
	if !i.IsCapped() {
		return constants.FlashSaleUncapped
	}
	remaining := i.TotalQuantity - i.SoldQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DiscountPercent 返回相对原价的折扣百分比（保留 2 位小数）
func (i *FlashSaleItem) DiscountPercent() decimal.Decimal {
	if i == nil || !i.OriginalPrice.Decimal.IsPositive() {
		return decimal.Zero
	}
	saved := i.OriginalPrice.Decimal.Sub(i.SalePrice.Decimal)
	return saved.Div(i.OriginalPrice.Decimal).Mul(decimal.NewFromInt(100)).Round(2)
}
