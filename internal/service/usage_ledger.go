package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/flashmart-next/internal/logger"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/repository"

	"github.com/google/uuid"
)

// UsageReservation 优惠券用量预留凭证。
// 提交或释放前占用一个名额；超时未处理由后台回收。
type UsageReservation struct {
	ID        string    `json:"id"`
	CouponID  uint      `json:"coupon_id"`
	UserID    uint      `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type usageKey struct {
	couponID uint
	userID   uint
}

// UsageLedger 优惠券用量账本。
// coupons.used_count 只允许经由本账本更新；预留阶段的占用保存在
// 内存计数中，同一优惠券上的预留/提交/释放按键串行。
type UsageLedger struct {
	couponRepo repository.CouponRepository
	usageRepo  repository.CouponUsageRepository
	ttl        time.Duration
	now        func() time.Time

	keys *keyedMutex

	mu           sync.Mutex
	reservations map[string]*UsageReservation
	pending      map[uint]int
	pendingUser  map[usageKey]int
}

// NewUsageLedger 创建用量账本
func NewUsageLedger(couponRepo repository.CouponRepository, usageRepo repository.CouponUsageRepository, ttl time.Duration) *UsageLedger {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &UsageLedger{
		couponRepo:   couponRepo,
		usageRepo:    usageRepo,
		ttl:          ttl,
		now:          time.Now,
		keys:         newKeyedMutex(),
		reservations: make(map[string]*UsageReservation),
		pending:      make(map[uint]int),
		pendingUser:  make(map[usageKey]int),
	}
}

func couponLockKey(couponID uint) string {
	return fmt.Sprintf("coupon:%d", couponID)
}

// TryReserve 尝试预留一次用量。
// 容量判断同时计入已提交用量与未决预留，保证并发预留不超卖名额。
func (l *UsageLedger) TryReserve(couponID, userID uint) (*UsageReservation, error) {
	if couponID == 0 {
		return nil, ErrInvalidInput
	}
	unlock := l.keys.Lock(couponLockKey(couponID))
	defer unlock()

	now := l.now()
	l.expireCoupon(couponID, now)

	coupon, err := l.couponRepo.GetByID(couponID)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, ErrCouponNotFound
	}

	var perUserUsed int64
	if coupon.PerUserLimit > 0 && userID > 0 {
		perUserUsed, err = l.usageRepo.CountByCouponUser(couponID, userID)
		if err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if coupon.UsageLimit > 0 && coupon.UsedCount+l.pending[couponID] >= coupon.UsageLimit {
		return nil, ErrCouponUsageLimit
	}
	if coupon.PerUserLimit > 0 && userID > 0 {
		if int(perUserUsed)+l.pendingUser[usageKey{couponID, userID}] >= coupon.PerUserLimit {
			return nil, ErrCouponPerUserLimit
		}
	}

	res := &UsageReservation{
		ID:        uuid.NewString(),
		CouponID:  couponID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(l.ttl),
	}
	l.reservations[res.ID] = res
	l.pending[couponID]++
	l.pendingUser[usageKey{couponID, userID}]++
	return res, nil
}

// Commit 将预留转为持久化的使用记录并累加 used_count
func (l *UsageLedger) Commit(res *UsageReservation, orderID uint, discountAmount, orderAmount models.Money) error {
	if res == nil {
		return ErrReservationExpired
	}
	unlock := l.keys.Lock(couponLockKey(res.CouponID))
	defer unlock()

	if !l.takeReservation(res.ID) {
		logger.Warnw("usage_reservation_commit_after_expiry",
			"reservation_id", res.ID,
			"coupon_id", res.CouponID,
			"user_id", res.UserID,
		)
		return ErrReservationExpired
	}

	ok, err := l.couponRepo.IncrementUsedCount(res.CouponID, 1)
	if err != nil {
		return err
	}
	if !ok {
		// 预留计入了未决占用，正常不会走到这里；兜底视作容量耗尽
		return ErrCouponUsageLimit
	}

	usage := &models.CouponUsage{
		CouponID:       res.CouponID,
		UserID:         res.UserID,
		OrderID:        orderID,
		DiscountAmount: discountAmount,
		OrderAmount:    orderAmount,
		CreatedAt:      l.now(),
	}
	if err := l.usageRepo.Create(usage); err != nil {
		if derr := l.couponRepo.DecrementUsedCount(res.CouponID, 1); derr != nil {
			logger.Errorw("usage_count_rollback_failed", "coupon_id", res.CouponID, "error", derr)
		}
		return err
	}
	return nil
}

// Release 释放预留。幂等：重复释放或已过期均为 no-op。
func (l *UsageLedger) Release(res *UsageReservation) {
	if res == nil {
		return
	}
	unlock := l.keys.Lock(couponLockKey(res.CouponID))
	defer unlock()
	l.takeReservation(res.ID)
}

// SweepExpired 回收所有过期预留，返回回收数量
func (l *UsageLedger) SweepExpired() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	released := 0
	for id, res := range l.reservations {
		if now.After(res.ExpiresAt) {
			l.dropLocked(id, res)
			released++
		}
	}
	if released > 0 {
		logger.Infow("usage_reservations_swept", "count", released)
	}
	return released
}

// takeReservation 摘下预留并回收未决占用，返回预留此前是否有效
func (l *UsageLedger) takeReservation(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[id]
	if !ok {
		return false
	}
	if l.now().After(res.ExpiresAt) {
		l.dropLocked(id, res)
		return false
	}
	l.dropLocked(id, res)
	return true
}

// expireCoupon 懒回收指定优惠券上的过期预留
func (l *UsageLedger) expireCoupon(couponID uint, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, res := range l.reservations {
		if res.CouponID == couponID && now.After(res.ExpiresAt) {
			l.dropLocked(id, res)
		}
	}
}

func (l *UsageLedger) dropLocked(id string, res *UsageReservation) {
	delete(l.reservations, id)
	if l.pending[res.CouponID] > 0 {
		l.pending[res.CouponID]--
	}
	key := usageKey{res.CouponID, res.UserID}
	if l.pendingUser[key] > 0 {
		l.pendingUser[key]--
	}
}
