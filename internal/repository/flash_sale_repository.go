package repository

import (
	"errors"
	"time"

	"github.com/flashmart-next/internal/models"

	"gorm.io/gorm"
)

// FlashSaleRepository 闪购活动数据访问接口
type FlashSaleRepository interface {
	GetByID(id uint) (*models.FlashSale, error)
	GetItem(saleID, productID uint) (*models.FlashSaleItem, error)
	ListActive(now time.Time) ([]models.FlashSale, error)
	List(filter FlashSaleListFilter) ([]models.FlashSale, int64, error)
	Create(sale *models.FlashSale) error
	Update(sale *models.FlashSale) error
	IncrementSold(saleID, productID uint, delta int) (bool, error)
	DecrementSold(saleID, productID uint, delta int) error
	WithTx(tx *gorm.DB) *GormFlashSaleRepository
}

// GormFlashSaleRepository GORM 实现
type GormFlashSaleRepository struct {
	db *gorm.DB
}

// NewFlashSaleRepository 创建闪购活动仓库
func NewFlashSaleRepository(db *gorm.DB) *GormFlashSaleRepository {
	return &GormFlashSaleRepository{db: db}
}

// WithTx 绑定事务
func (r *GormFlashSaleRepository) WithTx(tx *gorm.DB) *GormFlashSaleRepository {
	if tx == nil {
		return r
	}
	return &GormFlashSaleRepository{db: tx}
}

// GetByID 根据ID获取闪购活动（含条目）
func (r *GormFlashSaleRepository) GetByID(id uint) (*models.FlashSale, error) {
	var sale models.FlashSale
	if err := r.db.Preload("Items").First(&sale, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

// GetItem 获取指定活动内的商品条目
func (r *GormFlashSaleRepository) GetItem(saleID, productID uint) (*models.FlashSaleItem, error) {
	var item models.FlashSaleItem
	err := r.db.Where("sale_id = ? AND product_id = ?", saleID, productID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// ListActive 获取当前进行中的闪购活动（含条目）
func (r *GormFlashSaleRepository) ListActive(now time.Time) ([]models.FlashSale, error) {
	var sales []models.FlashSale
	err := r.db.Preload("Items").
		Where("is_canceled = ?", false).
		Where("starts_at <= ? AND ends_at > ?", now, now).
		Order("starts_at asc").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// List 获取闪购活动列表
func (r *GormFlashSaleRepository) List(filter FlashSaleListFilter) ([]models.FlashSale, int64, error) {
	var sales []models.FlashSale
	query := r.db.Model(&models.FlashSale{})

	if filter.ActiveAt != nil {
		query = query.Where("is_canceled = ?", false).
			Where("starts_at <= ? AND ends_at > ?", *filter.ActiveAt, *filter.ActiveAt)
	} else if !filter.IncludeOld {
		query = query.Where("ends_at > ?", time.Now())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)
	if filter.WithItems {
		query = query.Preload("Items")
	}

	if err := query.Order("starts_at asc").Find(&sales).Error; err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

// Create 创建闪购活动
func (r *GormFlashSaleRepository) Create(sale *models.FlashSale) error {
	return r.db.Create(sale).Error
}

// Update 更新闪购活动
func (r *GormFlashSaleRepository) Update(sale *models.FlashSale) error {
	return r.db.Save(sale).Error
}

// IncrementSold 增加条目已售数量，带库存上限守卫，返回是否成功占用
func (r *GormFlashSaleRepository) IncrementSold(saleID, productID uint, delta int) (bool, error) {
	if delta <= 0 {
		delta = 1
	}
	result := r.db.Model(&models.FlashSaleItem{}).
		Where("sale_id = ? AND product_id = ?", saleID, productID).
		Where("total_quantity < 0 OR sold_quantity + ? <= total_quantity", delta).
		UpdateColumn("sold_quantity", gorm.Expr("sold_quantity + ?", delta))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DecrementSold 减少条目已售数量，不会减到负数
func (r *GormFlashSaleRepository) DecrementSold(saleID, productID uint, delta int) error {
	if delta == 0 {
		delta = 1
	}
	if delta < 0 {
		delta = -delta
	}
	return r.db.Model(&models.FlashSaleItem{}).
		Where("sale_id = ? AND product_id = ?", saleID, productID).
		Where("sold_quantity >= ?", delta).
		UpdateColumn("sold_quantity", gorm.Expr("sold_quantity - ?", delta)).Error
}
