package repository

import (
	"github.com/flashmart-next/internal/models"

	"gorm.io/gorm"
)

// FlashSalePurchaseRepository 闪购购买记录数据访问接口
type FlashSalePurchaseRepository interface {
	Create(purchase *models.FlashSalePurchase) error
	SumQuantityByUserItem(saleID, productID, userID uint) (int, error)
	ListBySale(saleID uint, page, pageSize int) ([]models.FlashSalePurchase, int64, error)
	DeleteByOrderID(orderID uint) error
	WithTx(tx *gorm.DB) *GormFlashSalePurchaseRepository
}

// GormFlashSalePurchaseRepository GORM 实现
type GormFlashSalePurchaseRepository struct {
	db *gorm.DB
}

// NewFlashSalePurchaseRepository 创建闪购购买记录仓库
func NewFlashSalePurchaseRepository(db *gorm.DB) *GormFlashSalePurchaseRepository {
	return &GormFlashSalePurchaseRepository{db: db}
}

// WithTx 绑定事务
func (r *GormFlashSalePurchaseRepository) WithTx(tx *gorm.DB) *GormFlashSalePurchaseRepository {
	if tx == nil {
		return r
	}
	return &GormFlashSalePurchaseRepository{db: tx}
}

// Create 创建购买记录
func (r *GormFlashSalePurchaseRepository) Create(purchase *models.FlashSalePurchase) error {
	return r.db.Create(purchase).Error
}

// SumQuantityByUserItem 统计某用户在某活动商品上的累计购买件数
func (r *GormFlashSalePurchaseRepository) SumQuantityByUserItem(saleID, productID, userID uint) (int, error) {
	var total int64
	err := r.db.Model(&models.FlashSalePurchase{}).
		Where("sale_id = ? AND product_id = ? AND user_id = ?", saleID, productID, userID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// ListBySale 按活动获取购买记录列表
func (r *GormFlashSalePurchaseRepository) ListBySale(saleID uint, page, pageSize int) ([]models.FlashSalePurchase, int64, error) {
	var purchases []models.FlashSalePurchase
	query := r.db.Model(&models.FlashSalePurchase{}).Where("sale_id = ?", saleID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, page, pageSize)

	if err := query.Order("id desc").Find(&purchases).Error; err != nil {
		return nil, 0, err
	}
	return purchases, total, nil
}

// DeleteByOrderID 按订单删除购买记录（订单取消时回收额度）
func (r *GormFlashSalePurchaseRepository) DeleteByOrderID(orderID uint) error {
	return r.db.Where("order_id = ?", orderID).Delete(&models.FlashSalePurchase{}).Error
}
