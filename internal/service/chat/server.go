// Package chat 实现了聊天室的实时推送层
// server.go
// 核心职责：聊天推送聚合结构和依赖注入
// 封装 Hub 与 MessageBroker，对业务层提供消息推送和订阅撤销
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"campus_chat_server/internal/config"
	"campus_chat_server/internal/dto/respond"
	"campus_chat_server/pkg/constants"
	"campus_chat_server/pkg/errorx"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 广播模式
const (
	ModeChannel = "channel"
	ModeKafka   = "kafka"
	ModeRedis   = "redis"
)

// 撤销中继失败后的重试间隔
const controlRetryInterval = 100 * time.Millisecond

// ChatServer 推送层聚合结构
type ChatServer struct {
	Hub    *Hub
	Broker MessageBroker

	// members 为空时投递不核对成员关系
	members MemberLister
}

// MemberLister 投递前核对本机订阅者是否仍是有效成员
type MemberLister interface {
	ListMembers(ctx context.Context, roomId string) ([]respond.ChatRoomMemberRespond, error)
}

// ChatServerConfig 推送层配置
type ChatServerConfig struct {
	Kafka config.KafkaConfig
	// Redis 仅 redis 模式使用
	Redis *redis.Client
}

// NewChatServer 根据 messageMode 选择中继实现，缺省为单机通道
func NewChatServer(cfg ChatServerConfig) (*ChatServer, error) {
	var broker MessageBroker
	switch cfg.Kafka.MessageMode {
	case ModeKafka:
		broker = NewKafkaBroker(cfg.Kafka)
	case ModeRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("message mode %q requires a redis client", ModeRedis)
		}
		broker = NewRedisBroker(cfg.Redis, cfg.Kafka.ChatTopic)
	case ModeChannel, "":
		broker = NewChannelBroker(constants.CHANNEL_SIZE)
	default:
		return nil, fmt.Errorf("unknown message mode %q", cfg.Kafka.MessageMode)
	}
	return NewChatServerWithBroker(NewHub(), broker), nil
}

// NewChatServerWithBroker 使用指定的 Hub 和中继
func NewChatServerWithBroker(hub *Hub, broker MessageBroker) *ChatServer {
	return &ChatServer{Hub: hub, Broker: broker}
}

// SetMemberLister 注入成员查询，Service 层构造完成后调用
func (cs *ChatServer) SetMemberLister(members MemberLister) {
	cs.members = members
}

// Start 阻塞直到 ctx 结束
func (cs *ChatServer) Start(ctx context.Context) error {
	return cs.Broker.Start(ctx, cs.dispatch)
}

// Close 关闭中继
func (cs *ChatServer) Close() {
	if err := cs.Broker.Close(); err != nil {
		zap.L().Error("close chat broker failed", zap.Error(err))
	}
}

// PublishMessage 消息提交后调用，把 message 事件发往聊天室主题
func (cs *ChatServer) PublishMessage(ctx context.Context, roomId string, msg *respond.ChatMessageRespond) error {
	payload, err := json.Marshal(serverFrame{Event: EventMessage, ChatRoomId: roomId, Data: msg})
	if err != nil {
		return err
	}
	return cs.Broker.Publish(ctx, &Envelope{Kind: KindMessage, Topic: TopicOf(roomId), Payload: payload})
}

// RevokeUser 用户退出聊天室后撤销其在所有实例上的订阅
func (cs *ChatServer) RevokeUser(roomId, userId string) {
	cs.publishControl(&Envelope{Kind: KindRevokeUser, Topic: TopicOf(roomId), UserId: userId})
}

// RevokeRoom 聊天室删除后清空主题
func (cs *ChatServer) RevokeRoom(roomId string) {
	cs.publishControl(&Envelope{Kind: KindRevokeRoom, Topic: TopicOf(roomId)})
}

// publishControl 先在本机生效，再中继给其他实例
// 单机模式只有本机，不再入队；跨实例中继失败时在超时内重试
func (cs *ChatServer) publishControl(env *Envelope) {
	cs.dispatch(env)
	if _, local := cs.Broker.(*ChannelBroker); local {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.BROKER_PUBLISH_TIMEOUT)
	defer cancel()
	for {
		err := cs.Broker.Publish(ctx, env)
		if err == nil {
			return
		}
		select {
		case <-ctx.Done():
			// 其他实例在下一次投递前按成员列表清理
			zap.L().Error("relay revoke failed", zap.String("kind", env.Kind), zap.String("topic", env.Topic), zap.Error(err))
			return
		case <-time.After(controlRetryInterval):
		}
	}
}

// dispatch 在中继的消费协程中执行，把 Envelope 落到本机 Hub
// 撤销可能重复到达，重复撤销没有副作用
func (cs *ChatServer) dispatch(env *Envelope) {
	switch env.Kind {
	case KindMessage:
		if !cs.pruneNonMembers(env.Topic) {
			return
		}
		n := cs.Hub.Deliver(env.Topic, env.Payload)
		zap.L().Debug("message delivered", zap.String("topic", env.Topic), zap.Int("subscribers", n))
	case KindRevokeUser:
		notifyUnsubscribed(cs.Hub.RevokeUser(env.Topic, env.UserId), env.Topic)
	case KindRevokeRoom:
		notifyUnsubscribed(cs.Hub.CloseTopic(env.Topic), env.Topic)
	default:
		zap.L().Warn("unknown envelope kind", zap.String("kind", env.Kind))
	}
}

// pruneNonMembers 撤销已不是成员的订阅者，返回是否继续投递
// 查询失败时不投递
func (cs *ChatServer) pruneNonMembers(topic string) bool {
	if cs.members == nil {
		return true
	}
	subscribers := cs.Hub.SubscriberUsers(topic)
	if len(subscribers) == 0 {
		return false
	}

	roomId := roomOfTopic(topic)
	ctx, cancel := context.WithTimeout(context.Background(), constants.BROKER_PUBLISH_TIMEOUT)
	defer cancel()
	members, err := cs.members.ListMembers(ctx, roomId)
	if err != nil {
		if errorx.HasCode(err, errorx.CodeRoomUnavailable) {
			notifyUnsubscribed(cs.Hub.CloseTopic(topic), topic)
			return false
		}
		zap.L().Warn("list members before delivery failed", zap.String("room", roomId), zap.Error(err))
		return false
	}

	active := make(map[string]struct{}, len(members))
	for _, m := range members {
		active[m.UserId] = struct{}{}
	}
	for _, userId := range subscribers {
		if _, ok := active[userId]; !ok {
			zap.L().Info("drop subscription of non-member", zap.String("room", roomId), zap.String("user_id", userId))
			notifyUnsubscribed(cs.Hub.RevokeUser(topic, userId), topic)
		}
	}
	return true
}

func notifyUnsubscribed(conns []*UserConn, topic string) {
	if len(conns) == 0 {
		return
	}
	frame := mustFrame(serverFrame{Event: EventUnsubscribed, ChatRoomId: roomOfTopic(topic)})
	for _, c := range conns {
		c.trySend(frame)
	}
}

func roomOfTopic(topic string) string {
	return strings.TrimPrefix(topic, constants.CHAT_ROOM_TOPIC_PREFIX)
}
