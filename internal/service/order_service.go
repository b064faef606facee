package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/flashmart-next/internal/config"
	"github.com/flashmart-next/internal/constants"
	"github.com/flashmart-next/internal/logger"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/queue"
	"github.com/flashmart-next/internal/repository"
)

// OrderService 订单服务。
// 结算时通过促销编排器建立预留，支付确认后提交、
// 取消或超时后释放；预留凭证按订单号在内存中持有。
type OrderService struct {
	cfg         *config.Config
	orderRepo   repository.OrderRepository
	userRepo    repository.UserRepository
	cartService *CartService
	resolver    *PromotionResolver
	queueClient *queue.Client

	mu    sync.Mutex
	holds map[uint]*ResolutionResult
}

// NewOrderService 创建订单服务
func NewOrderService(
	cfg *config.Config,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	cartService *CartService,
	resolver *PromotionResolver,
	queueClient *queue.Client,
) *OrderService {
	return &OrderService{
		cfg:         cfg,
		orderRepo:   orderRepo,
		userRepo:    userRepo,
		cartService: cartService,
		resolver:    resolver,
		queueClient: queueClient,
		holds:       make(map[uint]*ResolutionResult),
	}
}

// Checkout 从购物车创建待支付订单。
// 促销编排失败（非法输入、显式优惠券容量不足、闪购行被拒）
// 直接返回错误，不产生订单。
func (s *OrderService) Checkout(userID uint, couponCode, clientIP string) (*models.Order, *ResolutionResult, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrNotFound
	}

	lines, err := s.cartService.BuildCheckoutLines(userID)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.resolver.Resolve(NewUserProfile(user), lines, couponCode)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	expireMinutes := s.cfg.Order.PaymentExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = 30
	}
	expiresAt := now.Add(time.Duration(expireMinutes) * time.Minute)

	couponIDs := make(models.UintArray, 0, len(result.Applied))
	for _, applied := range result.Applied {
		couponIDs = append(couponIDs, applied.CouponID)
	}

	order := &models.Order{
		OrderNo:        generateOrderNo(),
		UserID:         userID,
		Status:         constants.OrderStatusPendingPayment,
		OriginalAmount: result.Subtotal,
		DiscountAmount: result.TotalDiscount,
		TotalAmount:    result.PayableTotal,
		FreeShipping:   result.FreeShipping,
		CouponIDs:      couponIDs,
		ClientIP:       clientIP,
		ExpiresAt:      &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		item := models.OrderItem{
			ProductID:   line.ProductID,
			CategoryID:  line.CategoryID,
			Name:        line.Name,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
			TotalPrice:  line.Subtotal(),
			IsFlashSale: line.IsFlashSale,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if line.IsFlashSale {
			saleID := line.FlashSaleID
			item.FlashSaleID = &saleID
		}
		items = append(items, item)
	}

	if err := s.orderRepo.Create(order, items); err != nil {
		s.resolver.ReleaseAll(result)
		return nil, nil, err
	}

	s.putHold(order.ID, result)

	if err := s.cartService.Clear(userID); err != nil {
		logger.Warnw("cart_clear_failed", "user_id", userID, "error", err)
	}
	if err := s.queueClient.EnqueueOrderTimeoutCancel(queue.OrderTimeoutCancelPayload{OrderID: order.ID}, time.Until(expiresAt)); err != nil {
		logger.Warnw("order_timeout_task_enqueue_failed", "order_id", order.ID, "error", err)
	}

	logger.Infow("order_created",
		"order_no", order.OrderNo,
		"user_id", userID,
		"total", order.TotalAmount.String(),
		"discount", order.DiscountAmount.String(),
		"coupons", len(result.Applied),
	)
	return order, result, nil
}

// ConfirmPayment 支付确认：订单流转为已支付并提交全部预留。
// 预留已过期或进程重启丢失持有时拒绝确认并取消订单，
// 调用方需重新结算。
func (s *OrderService) ConfirmPayment(userID, orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	hold := s.takeHold(orderID)
	if hold == nil {
		s.cancelPending(orderID)
		return nil, ErrReservationExpired
	}

	now := time.Now()
	updated, err := s.orderRepo.UpdateStatusIf(orderID,
		[]string{constants.OrderStatusPendingPayment},
		constants.OrderStatusPaid,
		map[string]interface{}{"paid_at": now},
	)
	if err != nil {
		s.putHold(orderID, hold)
		return nil, err
	}
	if !updated {
		s.resolver.ReleaseAll(hold)
		return nil, ErrOrderStatusConflict
	}

	if err := s.resolver.CommitAll(hold, orderID); err != nil {
		// 过期预留提交等同释放，只降级为告警，支付结果不回滚
		logger.Warnw("reservation_commit_incomplete", "order_id", orderID, "error", err)
	}

	return s.orderRepo.GetByIDAndUser(orderID, userID)
}

// Cancel 用户主动取消待支付订单并释放预留
func (s *OrderService) Cancel(userID, orderID uint) error {
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if !s.cancelPending(orderID) {
		return ErrOrderStatusConflict
	}
	return nil
}

// CancelTimeout 超时取消：由队列任务触发，幂等
func (s *OrderService) CancelTimeout(orderID uint) error {
	if s.cancelPending(orderID) {
		logger.Infow("order_timeout_canceled", "order_id", orderID)
	}
	return nil
}

// cancelPending 流转待支付订单为已取消并释放预留，返回是否实际取消
func (s *OrderService) cancelPending(orderID uint) bool {
	now := time.Now()
	updated, err := s.orderRepo.UpdateStatusIf(orderID,
		[]string{constants.OrderStatusPendingPayment},
		constants.OrderStatusCanceled,
		map[string]interface{}{"canceled_at": now},
	)
	if err != nil {
		logger.Errorw("order_cancel_failed", "order_id", orderID, "error", err)
		return false
	}
	if hold := s.takeHold(orderID); hold != nil {
		s.resolver.ReleaseAll(hold)
	}
	return updated
}

// GetByID 获取用户订单详情
func (s *OrderService) GetByID(userID, orderID uint) (*models.Order, error) {
	order, err := s.orderRepo.GetByIDAndUser(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListByUser 获取用户订单列表
func (s *OrderService) ListByUser(userID uint, status string, page, pageSize int) ([]models.Order, int64, error) {
	return s.orderRepo.ListByUser(repository.OrderListFilter{
		UserID:   userID,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
	})
}

func (s *OrderService) putHold(orderID uint, result *ResolutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds[orderID] = result
}

func (s *OrderService) takeHold(orderID uint) *ResolutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[orderID]
	if !ok {
		return nil
	}
	delete(s.holds, orderID)
	return hold
}

// generateOrderNo 生成订单号：FM + 时间戳 + 6 位随机数字
func generateOrderNo() string {
	now := time.Now().Format("20060102150405")
	return fmt.Sprintf("FM%s%s", now, randNumeric(6))
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(n.String())
	}
	return b.String()
}
