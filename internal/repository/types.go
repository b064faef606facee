package repository

import "time"

// ProductListFilter 查询商品列表的过滤条件
type ProductListFilter struct {
	Page         int
	PageSize     int
	CategoryID   uint
	Search       string
	OnlyActive   bool
	WithCategory bool
}

// CouponListFilter 查询优惠券列表的过滤条件
type CouponListFilter struct {
	Page       int
	PageSize   int
	Code       string
	Type       string
	IsActive   *bool
	OnlyPublic bool
}

// CouponUsageListFilter 查询优惠券使用记录列表的过滤条件
type CouponUsageListFilter struct {
	Page     int
	PageSize int
	CouponID uint
	UserID   uint
}

// FlashSaleListFilter 查询闪购活动列表的过滤条件
type FlashSaleListFilter struct {
	Page       int
	PageSize   int
	ActiveAt   *time.Time
	WithItems  bool
	IncludeOld bool
}

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Status      string
	OrderNo     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// UserListFilter 查询用户列表的过滤条件
type UserListFilter struct {
	Page     int
	PageSize int
	Keyword  string
	Status   string
}
