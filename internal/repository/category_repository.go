package repository

import (
	"errors"

	"github.com/flashmart-next/internal/models"

	"gorm.io/gorm"
)

// CategoryRepository 商品分类数据访问接口
type CategoryRepository interface {
	GetByID(id uint) (*models.Category, error)
	ListAll(onlyActive bool) ([]models.Category, error)
	Create(category *models.Category) error
	Update(category *models.Category) error
	Delete(id uint) error
}

// GormCategoryRepository GORM 实现
type GormCategoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository 创建分类仓库
func NewCategoryRepository(db *gorm.DB) *GormCategoryRepository {
	return &GormCategoryRepository{db: db}
}

// GetByID 根据ID获取分类
func (r *GormCategoryRepository) GetByID(id uint) (*models.Category, error) {
	var category models.Category
	if err := r.db.First(&category, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &category, nil
}

// ListAll 获取全部分类
func (r *GormCategoryRepository) ListAll(onlyActive bool) ([]models.Category, error) {
	var categories []models.Category
	query := r.db.Model(&models.Category{})
	if onlyActive {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("sort_order desc, id asc").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// Create 创建分类
func (r *GormCategoryRepository) Create(category *models.Category) error {
	return r.db.Create(category).Error
}

// Update 更新分类
func (r *GormCategoryRepository) Update(category *models.Category) error {
	return r.db.Save(category).Error
}

// Delete 删除分类
func (r *GormCategoryRepository) Delete(id uint) error {
	return r.db.Delete(&models.Category{}, id).Error
}
