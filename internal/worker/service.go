package worker

import (
	"context"
	"errors"
	"time"

	"github.com/flashmart-next/internal/config"
	"github.com/flashmart-next/internal/queue"

	"github.com/hibiken/asynq"
)

const defaultSweepInterval = 30 * time.Second

// Service 异步队列服务
type Service struct {
	name          string
	server        *asynq.Server
	mux           *asynq.ServeMux
	consumer      *Consumer
	sweepInterval time.Duration
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)

	sweepInterval := time.Duration(cfg.Promotion.SweepIntervalSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &Service{
		name:          "worker",
		server:        server,
		mux:           mux,
		consumer:      consumer,
		sweepInterval: sweepInterval,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	go s.runReservationSweepLoop(ctx)
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runReservationSweepLoop 周期回收过期的用量/库存预留，
// 并兜底取消超时未支付订单（队列任务丢失时的保险）。
func (s *Service) runReservationSweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil {
		return
	}
	runOnce := func() {
		if s.consumer.Ledger != nil {
			s.consumer.Ledger.SweepExpired()
		}
		if s.consumer.Arbiter != nil {
			s.consumer.Arbiter.SweepExpired()
		}
		s.consumer.cancelOverduePendingOrders()
	}
	runOnce()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
