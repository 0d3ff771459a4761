// Package chat 实现了聊天室的实时推送层
// kafka_broker.go
// 核心职责：分布式模式下的中继
// 1. 所有实例写同一个 topic，key 为聊天室主题，同一聊天室落在同一分区保持顺序
// 2. 每个实例使用独立的消费组，从而都能读到全量 Envelope
// 3. 只做中继，不落库，首次加入消费组从最新 offset 开始
// 4. 重启后会从已提交的 offset 继续读，启动前写入的 Envelope 直接提交跳过
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"campus_chat_server/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaBroker 基于 kafka-go 的中继
type KafkaBroker struct {
	Producer *kafka.Writer // 生产者：负责写入消息
	Consumer *kafka.Reader // 消费者：负责读取消息
}

// NewKafkaBroker 按配置创建生产者和消费者，不会立即建立连接
func NewKafkaBroker(cfg config.KafkaConfig) *KafkaBroker {
	timeout := cfg.Timeout * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}
	return &KafkaBroker{
		Producer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.HostPort),
			Topic:                  cfg.ChatTopic,
			Balancer:               &kafka.Hash{},
			WriteTimeout:           timeout,
			RequiredAcks:           kafka.RequireNone,
			AllowAutoTopicCreation: false,
		},
		Consumer: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        []string{cfg.HostPort},
			Topic:          cfg.ChatTopic,
			CommitInterval: timeout,
			GroupID:        cfg.GroupID,
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// Publish 写入 Kafka
func (k *KafkaBroker) Publish(ctx context.Context, env *Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return k.Producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Topic),
		Value: value,
		Time:  time.Now(),
	})
}

// Start Kafka 消费循环
func (k *KafkaBroker) Start(ctx context.Context, handle func(env *Envelope)) error {
	startedAt := time.Now()
	for {
		kafkaMessage, err := k.Consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			zap.L().Error("kafka read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if writtenBefore(kafkaMessage, startedAt) {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(kafkaMessage.Value, &env); err != nil {
			zap.L().Warn("skip malformed envelope",
				zap.Int("partition", kafkaMessage.Partition),
				zap.Int64("offset", kafkaMessage.Offset),
				zap.Error(err),
			)
			continue
		}
		handle(&env)
	}
}

// writtenBefore 本实例启动前写入的 Envelope，订阅表在重启后是空的，投递也没有意义
func writtenBefore(m kafka.Message, startedAt time.Time) bool {
	return !m.Time.IsZero() && m.Time.Before(startedAt)
}

// Close 关闭生产者和消费者
func (k *KafkaBroker) Close() error {
	return errors.Join(k.Producer.Close(), k.Consumer.Close())
}
