package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flashmart-next/internal/cache"
	"github.com/flashmart-next/internal/logger"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"

	"github.com/google/uuid"
)

// InventoryReservation 闪购库存预留凭证
type InventoryReservation struct {
	ID        string       `json:"id"`
	SaleID    uint         `json:"sale_id"`
	ProductID uint         `json:"product_id"`
	UserID    uint         `json:"user_id"`
	Quantity  int          `json:"quantity"`
	SalePrice models.Money `json:"sale_price"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`

	// 活动窗口快照，提交时计算购买记录的时间偏移
	saleStartsAt time.Time
	saleEndsAt   time.Time
}

type itemKey struct {
	saleID    uint
	productID uint
}

type userItemKey struct {
	saleID    uint
	productID uint
	userID    uint
}

// InventoryArbiter 闪购库存仲裁器。
// flash_sale_items.sold_quantity 只允许经由本仲裁器更新；
// 同一 (saleID, productID) 上的预留/提交/释放按键串行，
// 不同商品条目互不阻塞，未决预留与已售之和永不超过总量。
type InventoryArbiter struct {
	saleRepo     repository.FlashSaleRepository
	purchaseRepo repository.FlashSalePurchaseRepository
	ttl          time.Duration
	now          func() time.Time

	keys *keyedMutex

	mu           sync.Mutex
	reservations map[string]*InventoryReservation
	pendingQty   map[itemKey]int
	pendingUser  map[userItemKey]int
}

// NewInventoryArbiter 创建库存仲裁器
func NewInventoryArbiter(saleRepo repository.FlashSaleRepository, purchaseRepo repository.FlashSalePurchaseRepository, ttl time.Duration) *InventoryArbiter {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &InventoryArbiter{
		saleRepo:     saleRepo,
		purchaseRepo: purchaseRepo,
		ttl:          ttl,
		now:          time.Now,
		keys:         newKeyedMutex(),
		reservations: make(map[string]*InventoryReservation),
		pendingQty:   make(map[itemKey]int),
		pendingUser:  make(map[userItemKey]int),
	}
}

func itemLockKey(saleID, productID uint) string {
	return fmt.Sprintf("sale:%d:%d", saleID, productID)
}

// Reserve 尝试预留指定数量的闪购库存。
// 检查活动状态、剩余库存（计入未决预留）与每人限购
// （已提交购买 + 未决预留），全部通过才占用。
func (a *InventoryArbiter) Reserve(saleID, productID, userID uint, quantity int) (*InventoryReservation, error) {
	if saleID == 0 || productID == 0 || quantity <= 0 {
		return nil, ErrInvalidInput
	}
	unlock := a.keys.Lock(itemLockKey(saleID, productID))
	defer unlock()

	now := a.now()
	a.expireItem(saleID, productID, now)

	sale, err := a.saleRepo.GetByID(saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrFlashSaleNotFound
	}
	if !sale.IsRunning(now) {
		return nil, ErrFlashSaleNotActive
	}

	item, err := a.saleRepo.GetItem(saleID, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrFlashSaleItemNotFound
	}

	var purchased int
	if item.PerUserLimit > 0 && userID > 0 {
		purchased, err = a.purchaseRepo.SumQuantityByUserItem(saleID, productID, userID)
		if err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	key := itemKey{saleID, productID}
	if item.IsCapped() && item.RemainingQuantity()-a.pendingQty[key] < quantity {
		return nil, ErrFlashSaleSoldOut
	}
	if item.PerUserLimit > 0 && userID > 0 {
		if purchased+a.pendingUser[userItemKey{saleID, productID, userID}]+quantity > item.PerUserLimit {
			return nil, ErrFlashSalePerUserLimit
		}
	}

	res := &InventoryReservation{
		ID:           uuid.NewString(),
		SaleID:       saleID,
		ProductID:    productID,
		UserID:       userID,
		Quantity:     quantity,
		SalePrice:    item.SalePrice,
		CreatedAt:    now,
		ExpiresAt:    now.Add(a.ttl),
		saleStartsAt: sale.StartsAt,
		saleEndsAt:   sale.EndsAt,
	}
	a.reservations[res.ID] = res
	a.pendingQty[key] += quantity
	a.pendingUser[userItemKey{saleID, productID, userID}] += quantity
	return res, nil
}

// Commit 将预留落账：累加已售数量并写入购买记录
func (a *InventoryArbiter) Commit(res *InventoryReservation, orderID uint) error {
	if res == nil {
		return ErrReservationExpired
	}
	unlock := a.keys.Lock(itemLockKey(res.SaleID, res.ProductID))
	defer unlock()

	if !a.takeReservation(res.ID) {
		logger.Warnw("inventory_reservation_commit_after_expiry",
			"reservation_id", res.ID,
			"sale_id", res.SaleID,
			"product_id", res.ProductID,
			"user_id", res.UserID,
		)
		return ErrReservationExpired
	}

	ok, err := a.saleRepo.IncrementSold(res.SaleID, res.ProductID, res.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		// 预留计入了未决占用，正常不会走到这里；兜底视作库存耗尽
		return ErrFlashSaleSoldOut
	}

	now := a.now()
	purchase := &models.FlashSalePurchase{
		SaleID:            res.SaleID,
		ProductID:         res.ProductID,
		UserID:            res.UserID,
		OrderID:           orderID,
		Quantity:          res.Quantity,
		SalePrice:         res.SalePrice,
		SinceStartSeconds: int64(now.Sub(res.saleStartsAt).Seconds()),
		ToEndSeconds:      int64(res.saleEndsAt.Sub(now).Seconds()),
		CreatedAt:         now,
	}
	if err := a.purchaseRepo.Create(purchase); err != nil {
		if derr := a.saleRepo.DecrementSold(res.SaleID, res.ProductID, res.Quantity); derr != nil {
			logger.Errorw("sold_quantity_rollback_failed",
				"sale_id", res.SaleID,
				"product_id", res.ProductID,
				"error", derr,
			)
		}
		return err
	}

	// 已售数量变化后让活动列表缓存提前失效
	if err := cache.InvalidateActiveSales(context.Background()); err != nil {
		logger.Debugw("flash_sale_cache_invalidate_failed", "error", err)
	}
	return nil
}

// Release 释放预留，恢复可售数量。幂等：重复释放或已过期均为 no-op。
func (a *InventoryArbiter) Release(res *InventoryReservation) {
	if res == nil {
		return
	}
	unlock := a.keys.Lock(itemLockKey(res.SaleID, res.ProductID))
	defer unlock()
	a.takeReservation(res.ID)
}

// SweepExpired 回收所有过期预留，返回回收数量
func (a *InventoryArbiter) SweepExpired() int {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()

	released := 0
	for id, res := range a.reservations {
		if now.After(res.ExpiresAt) {
			a.dropLocked(id, res)
			released++
		}
	}
	if released > 0 {
		logger.Infow("inventory_reservations_swept", "count", released)
	}
	return released
}

// takeReservation 摘下预留并回收未决占用，返回预留此前是否有效
func (a *InventoryArbiter) takeReservation(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.reservations[id]
	if !ok {
		return false
	}
	expired := a.now().After(res.ExpiresAt)
	a.dropLocked(id, res)
	return !expired
}

// expireItem 懒回收指定条目上的过期预留
func (a *InventoryArbiter) expireItem(saleID, productID uint, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, res := range a.reservations {
		if res.SaleID == saleID && res.ProductID == productID && now.After(res.ExpiresAt) {
			a.dropLocked(id, res)
		}
	}
}

func (a *InventoryArbiter) dropLocked(id string, res *InventoryReservation) {
	delete(a.reservations, id)
	key := itemKey{res.SaleID, res.ProductID}
	if a.pendingQty[key] >= res.Quantity {
		a.pendingQty[key] -= res.Quantity
	} else {
		a.pendingQty[key] = 0
	}
	userKey := userItemKey{res.SaleID, res.ProductID, res.UserID}
	if a.pendingUser[userKey] >= res.Quantity {
		a.pendingUser[userKey] -= res.Quantity
	} else {
		a.pendingUser[userKey] = 0
	}
}
