// Package chat 实现了聊天室的实时推送层
// channel_broker.go
// 核心职责：单机模式下的中继
// 不依赖外部消息队列，Publish 写入 Transmit 通道，Start 循环取出后交给本机 Hub
package chat

import (
	"context"
	"sync"
)

// ChannelBroker 进程内中继
type ChannelBroker struct {
	// Transmit 消息转发通道，满了直接丢弃
	Transmit chan *Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannelBroker 创建进程内中继，size 为转发通道缓冲
func NewChannelBroker(size int) *ChannelBroker {
	return &ChannelBroker{
		Transmit: make(chan *Envelope, size),
		closed:   make(chan struct{}),
	}
}

// Publish 非阻塞写入转发通道
func (b *ChannelBroker) Publish(ctx context.Context, env *Envelope) error {
	select {
	case <-b.closed:
		return ErrBrokerBusy
	default:
	}
	select {
	case b.Transmit <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBrokerBusy
	}
}

// Start 单协程按入队顺序处理
func (b *ChannelBroker) Start(ctx context.Context, handle func(env *Envelope)) error {
	for {
		select {
		case env := <-b.Transmit:
			handle(env)
		case <-ctx.Done():
			return nil
		case <-b.closed:
			return nil
		}
	}
}

// Close 停止消费循环，可重复调用
func (b *ChannelBroker) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
	return nil
}
