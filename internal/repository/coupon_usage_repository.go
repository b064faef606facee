package repository

import (
	"github.com/flashmart-next/internal/models"

	"gorm.io/gorm"
)

// CouponUsageRepository 优惠券使用记录数据访问接口
type CouponUsageRepository interface {
	Create(usage *models.CouponUsage) error
	CountByCouponUser(couponID, userID uint) (int64, error)
	ListByOrderID(orderID uint) ([]models.CouponUsage, error)
	DeleteByOrderID(orderID uint) error
	List(filter CouponUsageListFilter) ([]models.CouponUsage, int64, error)
	WithTx(tx *gorm.DB) *GormCouponUsageRepository
}

// GormCouponUsageRepository GORM 实现
type GormCouponUsageRepository struct {
	db *gorm.DB
}

// NewCouponUsageRepository 创建优惠券使用记录仓库
func NewCouponUsageRepository(db *gorm.DB) *GormCouponUsageRepository {
	return &GormCouponUsageRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCouponUsageRepository) WithTx(tx *gorm.DB) *GormCouponUsageRepository {
	if tx == nil {
		return r
	}
	return &GormCouponUsageRepository{db: tx}
}

// Create 创建使用记录
func (r *GormCouponUsageRepository) Create(usage *models.CouponUsage) error {
	return r.db.Create(usage).Error
}

// CountByCouponUser 统计某用户对某优惠券的已用次数
func (r *GormCouponUsageRepository) CountByCouponUser(couponID, userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", couponID, userID).
		Count(&count).Error
	return count, err
}

// ListByOrderID 按订单获取使用记录
func (r *GormCouponUsageRepository) ListByOrderID(orderID uint) ([]models.CouponUsage, error) {
	var usages []models.CouponUsage
	if err := r.db.Where("order_id = ?", orderID).Find(&usages).Error; err != nil {
		return nil, err
	}
	return usages, nil
}

// DeleteByOrderID 按订单删除使用记录（订单取消时回收用量）
func (r *GormCouponUsageRepository) DeleteByOrderID(orderID uint) error {
	return r.db.Where("order_id = ?", orderID).Delete(&models.CouponUsage{}).Error
}

// List 获取使用记录列表
func (r *GormCouponUsageRepository) List(filter CouponUsageListFilter) ([]models.CouponUsage, int64, error) {
	var usages []models.CouponUsage
	query := r.db.Model(&models.CouponUsage{})

	if filter.CouponID > 0 {
		query = query.Where("coupon_id = ?", filter.CouponID)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	if err := query.Order("id desc").Find(&usages).Error; err != nil {
		return nil, 0, err
	}
	return usages, total, nil
}
