// Package chat 实现了聊天室的实时推送层
// redis_broker.go
// 核心职责：基于 Redis Pub/Sub 的多实例中继，适合已经部署了 Redis 但没有 Kafka 的环境
package chat

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker 所有实例订阅同一个 channel
type RedisBroker struct {
	client  *redis.Client
	channel string
}

// NewRedisBroker client 由调用方负责关闭
func NewRedisBroker(client *redis.Client, channel string) *RedisBroker {
	return &RedisBroker{client: client, channel: channel}
}

// Publish 发布到 Redis channel
func (r *RedisBroker) Publish(ctx context.Context, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Start 订阅并循环处理，ctx 结束后退订
func (r *RedisBroker) Start(ctx context.Context, handle func(env *Envelope)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			zap.L().Debug("close redis pubsub", zap.Error(err))
		}
	}()
	// 等待订阅确认，避免启动后立即发布的消息丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				zap.L().Warn("skip malformed envelope", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handle(&env)
		}
	}
}

// Close 客户端由 dao/redis 统一关闭
func (r *RedisBroker) Close() error {
	return nil
}
