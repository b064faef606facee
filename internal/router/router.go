package router

import (
	"fmt"
	"strings"

	"github.com/flashmart-next/internal/cache"
	"github.com/flashmart-next/internal/config"
	publichandlers "github.com/flashmart-next/internal/http/handlers/public"
	"github.com/flashmart-next/internal/http/response"
	"github.com/flashmart-next/internal/logger"
	"github.com/flashmart-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "fm"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "登录尝试过于频繁",
	}
	checkoutRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:checkout", redisPrefix),
		WindowSeconds: cfg.Security.CheckoutRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.CheckoutRateLimit.MaxAttempts,
		Message:       "下单过于频繁",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/products", publicHandler.ListProducts)
			public.GET("/products/:slug", publicHandler.GetProduct)
			public.GET("/categories", publicHandler.ListCategories)
			public.GET("/flash-sales", publicHandler.ListFlashSales)
			public.GET("/flash-sales/:id", publicHandler.GetFlashSale)
			public.GET("/coupons", publicHandler.ListCoupons)
			public.GET("/coupons/:code", publicHandler.GetCoupon)
		}

		// 用户认证接口
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", publicHandler.Register)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.Login)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(cfg.JWT.SecretKey, c.UserRepo))
		{
			user.GET("/me", publicHandler.GetProfile)
			user.GET("/cart", publicHandler.GetCart)
			user.POST("/cart/items", publicHandler.AddCartItem)
			user.PUT("/cart/items", publicHandler.UpdateCartItem)
			user.DELETE("/cart/items/:product_id", publicHandler.RemoveCartItem)
			user.DELETE("/cart", publicHandler.ClearCart)
			user.POST("/promotions/preview", publicHandler.PreviewPromotions)
			user.POST("/orders", RateLimitMiddleware(redisClient, checkoutRule, KeyByUserID), publicHandler.Checkout)
			user.GET("/orders", publicHandler.ListOrders)
			user.GET("/orders/:id", publicHandler.GetOrder)
			user.POST("/orders/:id/pay", publicHandler.ConfirmPayment)
			user.POST("/orders/:id/cancel", publicHandler.CancelOrder)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	return r
}
