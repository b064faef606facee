package service

import (
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"
)

// ProductService 商品目录查询服务
type ProductService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
}

// NewProductService 创建商品服务
func NewProductService(productRepo repository.ProductRepository, categoryRepo repository.CategoryRepository) *ProductService {
	return &ProductService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
	}
}

// List 获取上架商品列表
func (s *ProductService) List(page, pageSize int, categoryID uint, search string) ([]models.Product, int64, error) {
	return s.productRepo.List(repository.ProductListFilter{
		Page:         page,
		PageSize:     pageSize,
		CategoryID:   categoryID,
		Search:       search,
		OnlyActive:   true,
		WithCategory: true,
	})
}

// GetBySlug 按 slug 获取商品详情
func (s *ProductService) GetBySlug(slug string) (*models.Product, error) {
	product, err := s.productRepo.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.IsActive {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ListCategories 获取启用的商品分类
func (s *ProductService) ListCategories() ([]models.Category, error) {
	return s.categoryRepo.ListAll(true)
}
