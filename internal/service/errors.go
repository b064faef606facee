package service

import "errors"

// 业务错误哨兵，handler 层据此映射响应码
var (
	ErrNotFound     = errors.New("记录不存在")
	ErrInvalidInput = errors.New("请求参数无效")

	// 认证相关
	ErrEmailExists        = errors.New("邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrUserDisabled       = errors.New("账户已被禁用")
	ErrWeakPassword       = errors.New("密码强度不足")
	ErrInvalidToken       = errors.New("无效的 token")

	// 优惠券相关
	ErrCouponNotFound      = errors.New("优惠券不存在")
	ErrCouponNotPublic     = errors.New("优惠券不可公开使用")
	ErrCouponUsageLimit    = errors.New("优惠券已达总使用上限")
	ErrCouponPerUserLimit  = errors.New("优惠券已达个人使用上限")
	ErrCouponMinimumNotMet = errors.New("订单未满足优惠券最低要求")
	ErrCouponNoEffect      = errors.New("优惠券在当前订单上无可用折扣")

	// 闪购相关
	ErrFlashSaleNotFound     = errors.New("闪购活动不存在")
	ErrFlashSaleNotActive    = errors.New("闪购活动不在进行中")
	ErrFlashSaleItemNotFound = errors.New("商品不在该闪购活动内")
	ErrFlashSaleSoldOut      = errors.New("闪购库存不足")
	ErrFlashSalePerUserLimit = errors.New("超出闪购每人限购数量")

	// 预留相关
	ErrReservationExpired = errors.New("预留已过期或不存在")

	// 购物车 / 订单相关
	ErrCartEmpty           = errors.New("购物车为空")
	ErrProductNotFound     = errors.New("商品不存在")
	ErrProductInactive     = errors.New("商品已下架")
	ErrOrderNotFound       = errors.New("订单不存在")
	ErrOrderStatusConflict = errors.New("订单状态不允许该操作")
)
