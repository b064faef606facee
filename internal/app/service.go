package app

import (
	"context"
	"errors"
	"os/signal"
	"time"

	"go.uber.org/zap"
)

const defaultStopTimeout = 10 * time.Second

// Service 受运行器管理的服务单元（HTTP、worker）
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 服务运行器：并行启动全部服务，任一退出即整体停机
type Runner struct {
	services []Service
}

// NewRunner 创建服务运行器
func NewRunner(services ...Service) *Runner {
	return &Runner{services: services}
}

// RunWithOptions 绑定系统信号后运行服务
func RunWithOptions(runner *Runner, opts Options) error {
	if runner == nil {
		return errors.New("runner is nil")
	}
	opts = normalizeOptions(opts)

	ctx := context.Background()
	if len(opts.Signals) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(ctx, opts.Signals...)
		defer cancel()
	}
	return runner.Run(ctx, opts.ShutdownTimeout, opts.Logger)
}

// Run 启动全部服务并等待退出条件，随后在限时内逐个停机
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration, log *zap.SugaredLogger) error {
	if r == nil || len(r.services) == 0 {
		return errors.New("no services to run")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exitCh := make(chan error, len(r.services))
	for _, svc := range r.services {
		go startOne(ctx, svc, log, exitCh)
	}

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-exitCh:
		runErr = err
	}
	cancel()

	r.stopAll(stopTimeout, log)

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func startOne(ctx context.Context, svc Service, log *zap.SugaredLogger, exitCh chan<- error) {
	if svc == nil {
		exitCh <- errors.New("service is nil")
		return
	}
	if log != nil {
		log.Infow("service_start", "service", svc.Name())
	}
	exitCh <- svc.Start(ctx)
	if log != nil {
		log.Infow("service_exit", "service", svc.Name())
	}
}

func (r *Runner) stopAll(stopTimeout time.Duration, log *zap.SugaredLogger) {
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()

	for _, svc := range r.services {
		if svc == nil {
			continue
		}
		if err := svc.Stop(stopCtx); err != nil && log != nil {
			log.Errorw("service_stop_failed", "service", svc.Name(), "error", err)
		}
	}
}
