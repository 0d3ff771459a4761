// Package handler 提供 HTTP 请求处理器
// 本文件处理消息相关的 API 请求
package handler

import (
	"campus_chat_server/internal/dto/request"
	"campus_chat_server/internal/service"

	"github.com/gin-gonic/gin"
)

// MessageHandler 消息请求处理器
type MessageHandler struct {
	messageSvc service.MessageService
}

// NewMessageHandler 创建消息处理器实例
func NewMessageHandler(messageSvc service.MessageService) *MessageHandler {
	return &MessageHandler{messageSvc: messageSvc}
}

// SendMessage 发送消息（REST 方式，与 WebSocket send 帧等价）
// POST /v1/chat/messages
// 请求体: request.SendMessageRequest
// 响应: respond.ChatMessageRespond
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req request.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.messageSvc.SendMessage(c.Request.Context(), currentUser(c), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// GetRoomMessages 聊天室历史消息
// GET /v1/chat/messages/room/:chatRoomId
// 响应: []respond.ChatMessageRespond
func (h *MessageHandler) GetRoomMessages(c *gin.Context) {
	data, err := h.messageSvc.GetHistory(c.Request.Context(), currentUser(c), c.Param("chatRoomId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}
