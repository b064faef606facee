package constants

// 订单状态常量
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusCompleted      = "completed"
	OrderStatusCanceled       = "canceled"
)

// 优惠券类型常量
const (
	CouponTypePercentage   = "percentage"
	CouponTypeFixed        = "fixed"
	CouponTypeBuyXGetY     = "buy_x_get_y"
	CouponTypeFreeShipping = "free_shipping"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 用户标签常量（优惠券适用人群）
const (
	UserTagAll      = "all"
	UserTagNew      = "new"
	UserTagExisting = "existing"
	UserTagVerified = "verified"
	UserTagPremium  = "premium"
)

// NewUserAccountAgeDays 注册多少天内算新用户
const NewUserAccountAgeDays = 30

// 闪购活动状态常量（按时间窗口派生）
const (
	FlashSaleStatusScheduled = "scheduled"
	FlashSaleStatusActive    = "active"
	FlashSaleStatusEnded     = "ended"
	FlashSaleStatusCanceled  = "canceled"
)

// FlashSaleUncapped 闪购条目不限量的哨兵值
const FlashSaleUncapped = -1

// 预留状态常量
const (
	ReservationStatusHeld      = "held"
	ReservationStatusCommitted = "committed"
	ReservationStatusReleased  = "released"
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskOrderTimeoutCancel = "order:timeout_cancel"
)
