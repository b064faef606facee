package provider

import (
	"time"

	"github.com/flashmart-next/internal/cache"
	"github.com/flashmart-next/internal/config"
	"github.com/flashmart-next/internal/logger"
	"github.com/flashmart-next/internal/models"
	"github.com/flashmart-next/internal/queue"
	"github.com/flashmart-next/internal/repository"
	"github.com/flashmart-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	UserRepo        repository.UserRepository
	CategoryRepo    repository.CategoryRepository
	ProductRepo     repository.ProductRepository
	CartRepo        repository.CartRepository
	CouponRepo      repository.CouponRepository
	CouponUsageRepo repository.CouponUsageRepository
	FlashSaleRepo   repository.FlashSaleRepository
	PurchaseRepo    repository.FlashSalePurchaseRepository
	OrderRepo       repository.OrderRepository

	// 促销引擎核心
	Evaluator  *service.EligibilityEvaluator
	Calculator *service.DiscountCalculator
	Ledger     *service.UsageLedger
	Arbiter    *service.InventoryArbiter
	Resolver   *service.PromotionResolver

	// Services
	UserAuthService  *service.UserAuthService
	ProductService   *service.ProductService
	CartService      *service.CartService
	CouponService    *service.CouponService
	FlashSaleService *service.FlashSaleService
	OrderService     *service.OrderService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化促销核心与 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.CategoryRepo = repository.NewCategoryRepository(db)
	c.ProductRepo = repository.NewProductRepository(db)
	c.CartRepo = repository.NewCartRepository(db)
	c.CouponRepo = repository.NewCouponRepository(db)
	c.CouponUsageRepo = repository.NewCouponUsageRepository(db)
	c.FlashSaleRepo = repository.NewFlashSaleRepository(db)
	c.PurchaseRepo = repository.NewFlashSalePurchaseRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
}

func (c *Container) initServices() {
	ttl := time.Duration(c.Config.Promotion.ReservationTTLSeconds) * time.Second

	c.Evaluator = service.NewEligibilityEvaluator()
	c.Calculator = service.NewDiscountCalculator()
	c.Ledger = service.NewUsageLedger(c.CouponRepo, c.CouponUsageRepo, ttl)
	c.Arbiter = service.NewInventoryArbiter(c.FlashSaleRepo, c.PurchaseRepo, ttl)
	c.Resolver = service.NewPromotionResolver(
		c.CouponRepo,
		c.Evaluator,
		c.Calculator,
		c.Ledger,
		c.Arbiter,
		c.Config.Promotion.MaxStackedCoupons,
	)

	c.UserAuthService = service.NewUserAuthService(c.Config, c.UserRepo)
	c.ProductService = service.NewProductService(c.ProductRepo, c.CategoryRepo)
	c.CartService = service.NewCartService(c.CartRepo, c.ProductRepo, c.FlashSaleRepo)
	c.CouponService = service.NewCouponService(c.CouponRepo, c.Resolver)
	c.FlashSaleService = service.NewFlashSaleService(c.FlashSaleRepo)
	c.OrderService = service.NewOrderService(c.Config, c.OrderRepo, c.UserRepo, c.CartService, c.Resolver, c.QueueClient)
}
