// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"campus_chat_server/internal/dao/mysql/repository"
	myredis "campus_chat_server/internal/dao/redis"
	"campus_chat_server/internal/service/chatroom"
	"campus_chat_server/internal/service/message"
)

// Services 聚合所有 Service 实例
// 作为依赖注入的入口，Handler 层和网关通过此结构访问各个 Service
type Services struct {
	ChatRoom ChatRoomService
	Message  MessageService
}

// NewServices 创建并注入所有 Service 实例
// publisher 负责提交后的实时推送，revoker 负责退出/删除后撤销订阅，二者都可为 nil
func NewServices(
	repos *repository.Repositories,
	cache myredis.AsyncCacheService,
	publisher message.Publisher,
	revoker chatroom.SubscriptionRevoker,
) *Services {
	return &Services{
		ChatRoom: chatroom.NewChatRoomService(repos, cache, revoker),
		Message:  message.NewMessageService(repos, publisher),
	}
}
