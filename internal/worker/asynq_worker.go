package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flashmart-next/internal/logger"
	"github.com/flashmart-next/internal/provider"
	"github.com/flashmart-next/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderTimeoutCancel, c.handleOrderTimeoutCancel)
}

// handleOrderTimeoutCancel 处理订单超时取消任务。
// 取消是幂等的：订单已支付或已取消时直接跳过。
func (c *Consumer) handleOrderTimeoutCancel(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_timeout_cancel_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderTimeoutCancelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_timeout_cancel_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_timeout_cancel_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.OrderService == nil {
		logger.Warnw("worker_order_timeout_cancel_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	return c.OrderService.CancelTimeout(payload.OrderID)
}

// cancelOverduePendingOrders 兜底取消超时未支付订单。
// 队列任务正常时这里几乎不命中，仅在任务丢失时起作用。
func (c *Consumer) cancelOverduePendingOrders() {
	if c == nil || c.OrderRepo == nil || c.OrderService == nil {
		return
	}
	orders, err := c.OrderRepo.ListExpiredPending(time.Now(), 100)
	if err != nil {
		logger.Warnw("worker_list_expired_pending_failed", "error", err)
		return
	}
	for _, order := range orders {
		if err := c.OrderService.CancelTimeout(order.ID); err != nil {
			logger.Warnw("worker_expired_order_cancel_failed", "order_id", order.ID, "error", err)
		}
	}
}
