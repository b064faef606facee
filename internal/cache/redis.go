package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flashmart-next/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr   = "127.0.0.1"
	defaultPort   = 6379
	defaultPrefix = "fm"
	pingTimeout   = 2 * time.Second
)

var (
	rdb       *redis.Client
	keyPrefix string
	enabled   bool
)

// InitRedis 初始化 Redis 客户端。
// 探测失败只返回错误供调用方记录，不禁用缓存：
// go-redis 懒连接，Redis 恢复后缓存与限流自动可用。
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		enabled = false
		return nil
	}

	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = defaultAddr
	}
	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}
	keyPrefix = strings.TrimSpace(cfg.Prefix)
	if keyPrefix == "" {
		keyPrefix = defaultPrefix
	}

	rdb = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	enabled = true

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return enabled && rdb != nil
}

// Client 获取 Redis 客户端，未启用时返回 nil
func Client() *redis.Client {
	if !Enabled() {
		return nil
	}
	return rdb
}

// GetJSON 读取 JSON 缓存，返回是否命中
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	raw, err := rdb.Get(ctx, buildKey(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, buildKey(key), payload, ttl).Err()
}

// Del 删除缓存
func Del(ctx context.Context, key string) error {
	if !Enabled() {
		return nil
	}
	return rdb.Del(ctx, buildKey(key)).Err()
}

func buildKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return keyPrefix
	}
	return fmt.Sprintf("%s:%s", keyPrefix, trimmed)
}
