package service

import (
	"time"

	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"
)

// CartService 购物车服务
type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	saleRepo    repository.FlashSaleRepository
}

// NewCartService 创建购物车服务
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, saleRepo repository.FlashSaleRepository) *CartService {
	return &CartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		saleRepo:    saleRepo,
	}
}

// List 获取用户购物车
func (s *CartService) List(userID uint) ([]models.CartItem, error) {
	return s.cartRepo.ListByUser(userID)
}

// Add 添加商品到购物车；已存在时数量累加
func (s *CartService) Add(userID, productID uint, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidInput
	}
	product, err := s.productRepo.GetByID(productID)
	if err != nil {
		return err
	}
	if product == nil {
		return ErrProductNotFound
	}
	if !product.IsActive {
		return ErrProductInactive
	}

	existing, err := s.cartRepo.ListByUser(userID)
	if err != nil {
		return err
	}
	for _, item := range existing {
		if item.ProductID == productID {
			quantity += item.Quantity
			break
		}
	}

	now := time.Now()
	return s.cartRepo.Upsert(&models.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// UpdateQuantity 更新购物车商品数量；数量为 0 时移除
func (s *CartService) UpdateQuantity(userID, productID uint, quantity int) error {
	if quantity < 0 {
		return ErrInvalidInput
	}
	if quantity == 0 {
		return s.cartRepo.DeleteByUserAndProduct(userID, productID)
	}
	return s.cartRepo.Upsert(&models.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		UpdatedAt: time.Now(),
	})
}

// Remove 移除购物车商品
func (s *CartService) Remove(userID, productID uint) error {
	return s.cartRepo.DeleteByUserAndProduct(userID, productID)
}

// Clear 清空购物车
func (s *CartService) Clear(userID uint) error {
	return s.cartRepo.ClearByUser(userID)
}

// BuildCheckoutLines 构建结算行快照。
// 命中进行中闪购的商品按特价计价并标记闪购行；
// 快照一旦生成即为只读，促销编排基于该快照运行。
func (s *CartService) BuildCheckoutLines(userID uint) ([]CartLine, error) {
	items, err := s.cartRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrCartEmpty
	}

	saleIndex, err := s.activeSaleIndex(time.Now())
	if err != nil {
		return nil, err
	}

	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		product := item.Product
		if product == nil {
			loaded, err := s.productRepo.GetByID(item.ProductID)
			if err != nil {
				return nil, err
			}
			if loaded == nil {
				return nil, ErrProductNotFound
			}
			product = loaded
		}
		if !product.IsActive {
			return nil, ErrProductInactive
		}

		line := CartLine{
			ProductID:  product.ID,
			CategoryID: product.CategoryID,
			Name:       product.Name,
			UnitPrice:  product.PriceAmount,
			Quantity:   item.Quantity,
		}
		if entry, ok := saleIndex[product.ID]; ok {
			line.IsFlashSale = true
			line.FlashSaleID = entry.saleID
			line.UnitPrice = entry.salePrice
		}
		lines = append(lines, line)
	}
	return lines, nil
}

type saleIndexEntry struct {
	saleID    uint
	salePrice models.Money
}

// activeSaleIndex 建立商品到进行中闪购条目的索引
func (s *CartService) activeSaleIndex(now time.Time) (map[uint]saleIndexEntry, error) {
	sales, err := s.saleRepo.ListActive(now)
	if err != nil {
		return nil, err
	}
	index := make(map[uint]saleIndexEntry)
	for _, sale := range sales {
		for _, item := range sale.Items {
			// 同一商品出现在多个活动时保留最早开始的活动
			if _, ok := index[item.ProductID]; ok {
				continue
			}
			index[item.ProductID] = saleIndexEntry{saleID: sale.ID, salePrice: item.SalePrice}
		}
	}
	return index, nil
}
