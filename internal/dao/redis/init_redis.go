package redis

import (
	"context"
	"strconv"
	"time"

	"campus_chat_server/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheWorkerNum  = 15
	cacheBufferSize = 3000
)

// NewClient 按配置创建 Redis 客户端，缓存和广播中继共用
func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Db,
		PoolSize:     50,
		MinIdleConns: cacheWorkerNum, // 与 Worker 数量匹配
	})
}

// Init 按 cacheMode 创建缓存服务
// redis 模式下同时返回客户端，local 模式返回 nil 客户端
func Init(ctx context.Context) (AsyncCacheService, *redis.Client) {
	conf := config.GetConfig()
	if conf.RedisConfig.CacheMode == "local" {
		zap.L().Info("using local cache")
		return NewLocalCache(10*time.Minute, time.Minute, cacheWorkerNum, cacheBufferSize), nil
	}

	client := NewClient(&conf.RedisConfig)
	if err := client.Ping(ctx).Err(); err != nil {
		zap.L().Fatal("redis ping failed", zap.String("addr", client.Options().Addr), zap.Error(err))
	}
	return NewRedisCache(client, cacheWorkerNum, cacheBufferSize), client
}
