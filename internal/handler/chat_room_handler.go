// Package handler 提供 HTTP 请求处理器
// 本文件处理聊天室相关的 API 请求
package handler

import (
	"strconv"

	"campus_chat_server/internal/dto/request"
	"campus_chat_server/internal/service"
	"campus_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// ChatRoomHandler 聊天室请求处理器
type ChatRoomHandler struct {
	chatRoomSvc service.ChatRoomService
}

// NewChatRoomHandler 创建聊天室处理器实例
func NewChatRoomHandler(chatRoomSvc service.ChatRoomService) *ChatRoomHandler {
	return &ChatRoomHandler{chatRoomSvc: chatRoomSvc}
}

// CreateChatRoom 创建聊天室
// POST /v1/chat/rooms
// 请求体: request.CreateChatRoomRequest
// 响应: respond.ChatRoomRespond
func (h *ChatRoomHandler) CreateChatRoom(c *gin.Context) {
	var req request.CreateChatRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.chatRoomSvc.CreateRoom(c.Request.Context(), currentUser(c), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// ListMyChatRooms 我的聊天室，最近活跃在前
// GET /v1/chat/rooms
// 响应: []respond.ChatRoomRespond
func (h *ChatRoomHandler) ListMyChatRooms(c *gin.Context) {
	data, err := h.chatRoomSvc.ListMyRooms(c.Request.Context(), currentUser(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// GetChatRoomMembers 聊天室成员列表，仅成员可见
// GET /v1/chat/rooms/:chatRoomId/members
// 响应: []respond.ChatRoomMemberRespond
func (h *ChatRoomHandler) GetChatRoomMembers(c *gin.Context) {
	data, err := h.chatRoomSvc.GetRoomMembers(c.Request.Context(), currentUser(c), c.Param("chatRoomId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// MarkRead 推进已读游标
// POST /v1/chat/rooms/:chatRoomId/read
// 请求体: request.AdvanceReadCursorRequest
func (h *ChatRoomHandler) MarkRead(c *gin.Context) {
	var req request.AdvanceReadCursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	messageId, err := strconv.ParseInt(req.MessageId, 10, 64)
	if err != nil {
		HandleError(c, errorx.New(errorx.CodeInvalidParam, "message_id 格式错误"))
		return
	}
	if err := h.chatRoomSvc.AdvanceReadCursor(c.Request.Context(), currentUser(c), c.Param("chatRoomId"), messageId); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// LeaveChatRoom 退出群聊
// POST /v1/chat/rooms/:chatRoomId/leave
func (h *ChatRoomHandler) LeaveChatRoom(c *gin.Context) {
	if err := h.chatRoomSvc.LeaveRoom(c.Request.Context(), currentUser(c), c.Param("chatRoomId")); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// DeleteChatRoom 删除聊天室
// DELETE /v1/chat/rooms/:chatRoomId
func (h *ChatRoomHandler) DeleteChatRoom(c *gin.Context) {
	if err := h.chatRoomSvc.DeleteRoom(c.Request.Context(), currentUser(c), c.Param("chatRoomId")); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
