package cache

import (
	"context"
	"time"
)

// 进行中闪购列表的缓存键与 TTL。
// TTL 取短值，活动上下线最多延迟十秒可见。
const (
	activeSalesKey = "flash_sale:active"
	activeSalesTTL = 10 * time.Second
)

// GetActiveSales 读取进行中闪购列表缓存
func GetActiveSales(ctx context.Context, dest interface{}) (bool, error) {
	return GetJSON(ctx, activeSalesKey, dest)
}

// SetActiveSales 写入进行中闪购列表缓存
func SetActiveSales(ctx context.Context, value interface{}) error {
	return SetJSON(ctx, activeSalesKey, value, activeSalesTTL)
}

// InvalidateActiveSales 使进行中闪购列表缓存失效
func InvalidateActiveSales(ctx context.Context) error {
	return Del(ctx, activeSalesKey)
}
