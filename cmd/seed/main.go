package main

import (
	"time"

	"github.com/flashmart-next/internal/config"
	"github.com/flashmart-next/internal/logger"
	"github.com/flashmart-next/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加分类
	categories := []models.Category{
		{Slug: "electronics", Name: "电子产品", SortOrder: 30, IsActive: true},
		{Slug: "lifestyle", Name: "生活用品", SortOrder: 20, IsActive: true},
		{Slug: "accessories", Name: "数码配件", SortOrder: 10, IsActive: true},
	}
	for _, cat := range categories {
		var existing models.Category
		if err := models.DB.Where("slug = ?", cat.Slug).First(&existing).Error; err != nil {
			if err := models.DB.Create(&cat).Error; err != nil {
				stdLog.Printf("Failed to create category %s: %v", cat.Slug, err)
			} else {
				stdLog.Printf("Created category: %s", cat.Slug)
			}
		} else {
			stdLog.Printf("Category already exists: %s", cat.Slug)
		}
	}

	categoryIDs := map[string]uint{}
	var categoryList []models.Category
	if err := models.DB.Find(&categoryList).Error; err != nil {
		stdLog.Printf("Failed to load categories: %v", err)
	}
	for _, cat := range categoryList {
		categoryIDs[cat.Slug] = cat.ID
	}

	// 添加商品
	products := []models.Product{
		{
			CategoryID:  categoryIDs["electronics"],
			Slug:        "wireless-earphones",
			Name:        "无线蓝牙耳机",
			Description: "高品质音质，长续航，舒适佩戴",
			PriceAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(99.99)),
			Tags:        models.StringArray{"audio", "wireless"},
			IsActive:    true,
			SortOrder:   30,
		},
		{
			CategoryID:  categoryIDs["electronics"],
			Slug:        "smart-watch",
			Name:        "智能手表",
			Description: "心率监测，运动记录，消息提醒",
			PriceAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(199.00)),
			Tags:        models.StringArray{"wearable"},
			IsActive:    true,
			SortOrder:   25,
		},
		{
			CategoryID:  categoryIDs["lifestyle"],
			Slug:        "thermos-bottle",
			Name:        "保温杯",
			Description: "24小时保温，便携防漏",
			PriceAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(29.90)),
			Tags:        models.StringArray{"daily"},
			IsActive:    true,
			SortOrder:   20,
		},
		{
			CategoryID:  categoryIDs["accessories"],
			Slug:        "usb-c-cable",
			Name:        "USB-C 数据线",
			Description: "快充支持，耐用编织线",
			PriceAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(9.90)),
			Tags:        models.StringArray{"charging"},
			IsActive:    true,
			SortOrder:   10,
		},
	}
	productIDs := map[string]uint{}
	for _, product := range products {
		var existing models.Product
		if err := models.DB.Where("slug = ?", product.Slug).First(&existing).Error; err != nil {
			if err := models.DB.Create(&product).Error; err != nil {
				stdLog.Printf("Failed to create product %s: %v", product.Slug, err)
				continue
			}
			stdLog.Printf("Created product: %s", product.Slug)
			productIDs[product.Slug] = product.ID
		} else {
			stdLog.Printf("Product already exists: %s", product.Slug)
			productIDs[existing.Slug] = existing.ID
		}
	}

	// 添加测试用户
	seedUser(stdLog, "demo@example.com", "demo123456", "Demo", false)
	seedUser(stdLog, "vip@example.com", "vip1234567", "VIP", true)

	// 添加优惠券
	now := time.Now()
	windowEnd := now.AddDate(0, 3, 0)
	coupons := []models.Coupon{
		{
			Code:        "SAVE20",
			Name:        "全场八折",
			Type:        "percentage",
			Value:       models.NewMoneyFromDecimal(decimal.NewFromInt(20)),
			MaxDiscount: models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
			IsActive:    true,
			IsPublic:    true,
			Priority:    10,
			StartsAt:    &now,
			EndsAt:      &windowEnd,
		},
		{
			Code:           "WELCOME10",
			Name:           "新人立减",
			Type:           "fixed",
			Value:          models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
			MinOrderAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
			PerUserLimit:   1,
			ApplicableUserTags: models.StringArray{"new"},
			IsActive:       true,
			IsPublic:       true,
			AutoApply:      true,
			Priority:       5,
			StartsAt:       &now,
			EndsAt:         &windowEnd,
		},
		{
			Code:               "B2G1",
			Name:               "配件买二赠一",
			Type:               "buy_x_get_y",
			BuyQuantity:        2,
			GetQuantity:        1,
			GetDiscountPercent: 100,
			ApplicableCategoryIDs: models.UintArray{categoryIDs["accessories"]},
			IsActive:           true,
			IsPublic:           true,
			Priority:           3,
			StartsAt:           &now,
			EndsAt:             &windowEnd,
		},
		{
			Code:           "FREESHIP",
			Name:           "满额免运费",
			Type:           "free_shipping",
			MinOrderAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(99)),
			IsActive:       true,
			IsPublic:       true,
			AutoApply:      true,
			IsStackable:    true,
			StartsAt:       &now,
			EndsAt:         &windowEnd,
		},
	}
	for _, coupon := range coupons {
		var existing models.Coupon
		if err := models.DB.Where("code = ?", coupon.Code).First(&existing).Error; err != nil {
			if err := models.DB.Create(&coupon).Error; err != nil {
				stdLog.Printf("Failed to create coupon %s: %v", coupon.Code, err)
			} else {
				stdLog.Printf("Created coupon: %s", coupon.Code)
			}
		} else {
			stdLog.Printf("Coupon already exists: %s", coupon.Code)
		}
	}

	// 添加闪购活动
	var existingSale models.FlashSale
	if err := models.DB.Where("name = ?", "周末闪购").First(&existingSale).Error; err != nil {
		sale := models.FlashSale{
			Name:     "周末闪购",
			StartsAt: now,
			EndsAt:   now.Add(72 * time.Hour),
		}
		if err := models.DB.Create(&sale).Error; err != nil {
			stdLog.Printf("Failed to create flash sale: %v", err)
		} else {
			items := []models.FlashSaleItem{
				{
					SaleID:        sale.ID,
					ProductID:     productIDs["wireless-earphones"],
					OriginalPrice: models.NewMoneyFromDecimal(decimal.NewFromFloat(99.99)),
					SalePrice:     models.NewMoneyFromDecimal(decimal.NewFromFloat(69.99)),
					TotalQuantity: 100,
					PerUserLimit:  2,
				},
				{
					SaleID:        sale.ID,
					ProductID:     productIDs["usb-c-cable"],
					OriginalPrice: models.NewMoneyFromDecimal(decimal.NewFromFloat(9.90)),
					SalePrice:     models.NewMoneyFromDecimal(decimal.NewFromFloat(4.90)),
					TotalQuantity: -1,
					PerUserLimit:  5,
				},
			}
			for _, item := range items {
				if item.ProductID == 0 {
					continue
				}
				if err := models.DB.Create(&item).Error; err != nil {
					stdLog.Printf("Failed to create flash sale item: %v", err)
				}
			}
			stdLog.Printf("Created flash sale: %s", sale.Name)
		}
	} else {
		stdLog.Printf("Flash sale already exists: %s", existingSale.Name)
	}

	stdLog.Printf("Seed finished")
}

func seedUser(stdLog interface{ Printf(string, ...interface{}) }, email, password, name string, premium bool) {
	var existing models.User
	if err := models.DB.Where("email = ?", email).First(&existing).Error; err == nil {
		stdLog.Printf("User already exists: %s", email)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		stdLog.Printf("Failed to hash password for %s: %v", email, err)
		return
	}
	now := time.Now()
	user := models.User{
		Email:           email,
		PasswordHash:    string(hash),
		DisplayName:     name,
		Status:          "active",
		IsPremium:       premium,
		EmailVerifiedAt: &now,
	}
	if err := models.DB.Create(&user).Error; err != nil {
		stdLog.Printf("Failed to create user %s: %v", email, err)
		return
	}
	stdLog.Printf("Created user: %s", email)
}
