package models

import (
	"time"

	"gorm.io/gorm"
)

// Coupon 优惠券
type Coupon struct {
	ID                    uint           `gorm:"primarykey" json:"id"`                                         // 主键
	Code                  string         `gorm:"uniqueIndex;not null" json:"code"`                             // 优惠码
	Name                  string         `gorm:"not null" json:"name"`                                         // 名称
	Type                  string         `gorm:"not null" json:"type"`                                         // 类型（percentage/fixed/buy_x_get_y/free_shipping）
	Value                 Money          `gorm:"type:decimal(20,2);not null;default:0" json:"value"`           // 数值（百分比或固定金额）
	MaxDiscount           Money          `gorm:"type:decimal(20,2);not null;default:0" json:"max_discount"`    // 最大优惠金额（0 表示不封顶）
	MinOrderAmount        Money          `gorm:"type:decimal(20,2);not null;default:0" json:"min_order_amount"` // 最低订单金额
	MinQuantity           int            `gorm:"not null;default:0" json:"min_quantity"`                       // 最低商品件数
	UsageLimit            int            `gorm:"not null;default:0" json:"usage_limit"`                        // 总使用上限（0 表示不限制）
	UsedCount             int            `gorm:"not null;default:0" json:"used_count"`                         // 已使用次数（仅由用量账本更新）
	PerUserLimit          int            `gorm:"not null;default:0" json:"per_user_limit"`                     // 每人使用上限（0 表示不限制）
	ApplicableProductIDs  UintArray      `gorm:"type:text" json:"applicable_product_ids"`                      // 适用商品ID集合（空表示不限）
	ExcludedProductIDs    UintArray      `gorm:"type:text" json:"excluded_product_ids"`                        // 排除商品ID集合
	ApplicableCategoryIDs UintArray      `gorm:"type:text" json:"applicable_category_ids"`                     // 适用分类ID集合（空表示不限）
	ExcludedCategoryIDs   UintArray      `gorm:"type:text" json:"excluded_category_ids"`                       // 排除分类ID集合
	ApplicableUserTags    StringArray    `gorm:"type:text" json:"applicable_user_tags"`                        // 适用用户标签（空表示不限）
	ExcludedUserIDs       UintArray      `gorm:"type:text" json:"excluded_user_ids"`                           // 排除用户ID集合
	BuyQuantity           int            `gorm:"not null;default:0" json:"buy_quantity"`                       // 买X参数
	GetQuantity           int            `gorm:"not null;default:0" json:"get_quantity"`                       // 赠Y参数
	GetDiscountPercent    int            `gorm:"not null;default:100" json:"get_discount_percent"`             // 赠品折扣百分比（100 表示全免）
	IsActive              bool           `gorm:"not null;default:true" json:"is_active"`                       // 是否启用
	IsPublic              bool           `gorm:"not null;default:true" json:"is_public"`                       // 是否公开可用
	AutoApply             bool           `gorm:"not null;default:false" json:"auto_apply"`                     // 是否自动应用
	IsStackable           bool           `gorm:"not null;default:false" json:"is_stackable"`                   // 是否可叠加
	Priority              int            `gorm:"not null;default:0;index" json:"priority"`                     // 优先级（越大越先应用）
	StartsAt              *time.Time     `gorm:"index" json:"starts_at"`                                       // 生效时间
	EndsAt                *time.Time     `gorm:"index" json:"ends_at"`                                         // 失效时间
	CreatedAt             time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt             time.Time      `gorm:"index" json:"updated_at"`                                      // 更新时间
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间
}

// TableName 指定表名
func (Coupon) TableName() string {
	return "coupons"
}

// IsWithinWindow 判断当前时间是否在有效期内（左闭右开）
func (c *Coupon) IsWithinWindow(now time.Time) bool {
	if c == nil {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && !now.Before(*c.EndsAt) {
		return false
	}
	return true
}

// RemainingUsage 返回剩余可用次数；不限制时返回 -1
func (c *Coupon) RemainingUsage() int {
	if c == nil {
		return 0
	}
	if c.UsageLimit <= 0 {
		return -1
	}
	remaining := c.UsageLimit - c.UsedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasScopeFilter 判断是否配置了商品/分类范围限制
func (c *Coupon) HasScopeFilter() bool {
	return c != nil && (len(c.ApplicableProductIDs) > 0 || len(c.ApplicableCategoryIDs) > 0)
}
