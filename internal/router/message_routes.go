// Package router 提供 HTTP 路由注册
// 本文件定义消息相关的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterMessageRoutes 注册消息相关路由（需要认证）
func (rt *Router) RegisterMessageRoutes(rg *gin.RouterGroup) {
	messageGroup := rg.Group("/messages")
	{
		messageGroup.POST("", rt.handlers.Message.SendMessage)                     // 发送消息
		messageGroup.GET("/room/:chatRoomId", rt.handlers.Message.GetRoomMessages) // 历史消息
	}
}
