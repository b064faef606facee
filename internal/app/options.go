package app

import (
	"os"
	"time"

	"github.com/flashmart-next/internal/config"
	"github.com/flashmart-next/internal/logger"

	"go.uber.org/zap"
)

const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

// Options 应用启动选项
type Options struct {
	Config          *config.Config
	Logger          *zap.SugaredLogger
	Signals         []os.Signal
	ShutdownTimeout time.Duration
	Mode            string
}

// normalizeOptions 补齐默认参数，无法识别的运行模式回退为 all
func normalizeOptions(opts Options) Options {
	if opts.Logger == nil {
		opts.Logger = logger.S()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultStopTimeout
	}
	switch opts.Mode {
	case ModeAll, ModeAPI, ModeWorker:
	default:
		opts.Mode = ModeAll
	}
	return opts
}
