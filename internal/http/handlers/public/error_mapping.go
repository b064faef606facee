package public

import (
	"errors"

	"github.com/flashmart-next/internal/http/response"
	"github.com/flashmart-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}

	// 闪购行预留失败携带出错行信息，展开返回
	var lineErr *service.FlashSaleLineError
	if errors.As(err, &lineErr) {
		reason := "闪购预留失败"
		for _, rule := range rules {
			if errors.Is(lineErr.Err, rule.target) {
				reason = rule.msg
				break
			}
		}
		response.ErrorWithData(c, response.CodeConflict, reason, gin.H{
			"sale_id":    lineErr.SaleID,
			"product_id": lineErr.ProductID,
			"quantity":   lineErr.Quantity,
		})
		return
	}

	respondError(c, fallbackCode, fallbackMsg, err)
}

var checkoutErrorRules = []mappedHandlerError{
	{target: service.ErrCartEmpty, code: response.CodeBadRequest, msg: "购物车为空"},
	{target: service.ErrInvalidInput, code: response.CodeBadRequest, msg: "请求参数无效"},
	{target: service.ErrProductNotFound, code: response.CodeBadRequest, msg: "商品不存在"},
	{target: service.ErrProductInactive, code: response.CodeBadRequest, msg: "商品已下架"},
	{target: service.ErrCouponNotFound, code: response.CodeBadRequest, msg: "优惠券不存在"},
	{target: service.ErrCouponNotPublic, code: response.CodeBadRequest, msg: "优惠券不可公开使用"},
	{target: service.ErrCouponUsageLimit, code: response.CodeConflict, msg: "优惠券已达总使用上限"},
	{target: service.ErrCouponPerUserLimit, code: response.CodeConflict, msg: "优惠券已达个人使用上限"},
	{target: service.ErrCouponMinimumNotMet, code: response.CodeBadRequest, msg: "订单未满足优惠券最低要求"},
	{target: service.ErrFlashSaleNotFound, code: response.CodeBadRequest, msg: "闪购活动不存在"},
	{target: service.ErrFlashSaleNotActive, code: response.CodeConflict, msg: "闪购活动不在进行中"},
	{target: service.ErrFlashSaleItemNotFound, code: response.CodeBadRequest, msg: "商品不在该闪购活动内"},
	{target: service.ErrFlashSaleSoldOut, code: response.CodeConflict, msg: "闪购库存不足"},
	{target: service.ErrFlashSalePerUserLimit, code: response.CodeConflict, msg: "超出闪购每人限购数量"},
}

var orderErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "订单不存在"},
	{target: service.ErrOrderStatusConflict, code: response.CodeConflict, msg: "订单状态不允许该操作"},
	{target: service.ErrReservationExpired, code: response.CodeConflict, msg: "预留已过期，请重新下单"},
}

var authErrorRules = []mappedHandlerError{
	{target: service.ErrNotFound, code: response.CodeNotFound, msg: "用户不存在"},
	{target: service.ErrInvalidInput, code: response.CodeBadRequest, msg: "请求参数无效"},
	{target: service.ErrEmailExists, code: response.CodeBadRequest, msg: "邮箱已被注册"},
	{target: service.ErrWeakPassword, code: response.CodeBadRequest, msg: "密码强度不足"},
	{target: service.ErrInvalidCredentials, code: response.CodeUnauthorized, msg: "邮箱或密码错误"},
	{target: service.ErrUserDisabled, code: response.CodeForbidden, msg: "账户已被禁用"},
}
