package models

import (
	"time"

	"gorm.io/gorm"
)

// FlashSalePurchase 闪购成交记录（不可变事实，附带用于报表的时间偏移）
type FlashSalePurchase struct {
	ID                uint           `gorm:"primarykey" json:"id"`                                      // 主键
	SaleID            uint           `gorm:"index:idx_purchase_sale_product_user;not null" json:"sale_id"`    // 活动ID
	ProductID         uint           `gorm:"index:idx_purchase_sale_product_user;not null" json:"product_id"` // 商品ID
	UserID            uint           `gorm:"index:idx_purchase_sale_product_user;not null" json:"user_id"`    // 用户ID
	OrderID           uint           `gorm:"index;not null" json:"order_id"`                            // 订单ID
	Quantity          int            `gorm:"not null" json:"quantity"`                                  // 购买数量
	SalePrice         Money          `gorm:"type:decimal(20,2);not null;default:0" json:"sale_price"`   // 成交特价
	SinceStartSeconds int64          `gorm:"not null;default:0" json:"since_start_seconds"`             // 距活动开始秒数
	ToEndSeconds      int64          `gorm:"not null;default:0" json:"to_end_seconds"`                  // 距活动结束秒数
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间
}

// TableName 指定表名
func (FlashSalePurchase) TableName() string {
	return "flash_sale_purchases"
}
