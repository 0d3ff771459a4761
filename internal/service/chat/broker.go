// Package chat 实现了聊天室的实时推送层
// broker.go
// 核心职责：跨实例中继的抽象
// MessageBroker 只负责把 Envelope 送到每个实例（单机模式就是本机），
// 各实例收到后交给本机 Hub 投递，订阅表从不跨实例共享
package chat

import (
	"context"
	"encoding/json"
	"errors"
)

// Envelope 中继的最小单元
type Envelope struct {
	Kind    string          `json:"kind"`
	Topic   string          `json:"topic"`
	UserId  string          `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope 种类
const (
	KindMessage    = "message"     // 新消息，Payload 为推送给客户端的完整帧
	KindRevokeUser = "revoke_user" // 用户退出聊天室，撤销其订阅
	KindRevokeRoom = "revoke_room" // 聊天室删除，清空主题
)

// ErrBrokerBusy 本机中继通道已满
var ErrBrokerBusy = errors.New("chat broker is busy")

// MessageBroker 定义消息中继接口
// 支持多种实现：ChannelBroker (单机), KafkaBroker / RedisBroker (多实例)
type MessageBroker interface {
	// Publish 发布到所有实例，不等待投递结果
	Publish(ctx context.Context, env *Envelope) error
	// Start 阻塞消费，每收到一个 Envelope 调用一次 handle，ctx 结束后返回
	Start(ctx context.Context, handle func(env *Envelope)) error
	// Close 释放连接资源
	Close() error
}
