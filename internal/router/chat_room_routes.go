// Package router 提供 HTTP 路由注册
// 本文件定义聊天室相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterChatRoomRoutes 注册聊天室相关路由（需要认证）
func (rt *Router) RegisterChatRoomRoutes(rg *gin.RouterGroup) {
	roomGroup := rg.Group("/rooms")
	{
		roomGroup.POST("", rt.handlers.ChatRoom.CreateChatRoom) // 创建聊天室
		roomGroup.GET("", rt.handlers.ChatRoom.ListMyChatRooms) // 我的聊天室

		roomGroup.GET("/:chatRoomId/members", rt.handlers.ChatRoom.GetChatRoomMembers) // 成员列表
		roomGroup.POST("/:chatRoomId/read", rt.handlers.ChatRoom.MarkRead)             // 标记已读
		roomGroup.POST("/:chatRoomId/leave", rt.handlers.ChatRoom.LeaveChatRoom)       // 退出群聊
		roomGroup.DELETE("/:chatRoomId", rt.handlers.ChatRoom.DeleteChatRoom)          // 删除聊天室
	}
}
