// Package handler 提供 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
package handler

import (
	"campus_chat_server/internal/service"
)

// Handlers 聚合所有 Handler 实例
// Router 层通过此结构访问各个 Handler
type Handlers struct {
	ChatRoom *ChatRoomHandler
	Message  *MessageHandler
	Ws       *WsHandler
}

// NewHandlers 创建并注入所有 Handler 实例
// gateway 为 nil 时不提供 WebSocket 入口
func NewHandlers(svc *service.Services, gateway WsGateway) *Handlers {
	h := &Handlers{
		ChatRoom: NewChatRoomHandler(svc.ChatRoom),
		Message:  NewMessageHandler(svc.Message),
	}
	if gateway != nil {
		h.Ws = NewWsHandler(gateway)
	}
	return h
}
