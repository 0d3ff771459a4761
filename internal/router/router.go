// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"campus_chat_server/internal/handler"
	"campus_chat_server/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器
type Router struct {
	handlers *handler.Handlers
	resolver middleware.IdentityResolver
}

// NewRouter 创建路由管理器，resolver 用于认证中间件
func NewRouter(handlers *handler.Handlers, resolver middleware.IdentityResolver) *Router {
	return &Router{handlers: handlers, resolver: resolver}
}

// RegisterRoutes 注册所有路由
// WebSocket 入口自行解析凭证，不挂认证中间件
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	if rt.handlers.Ws != nil {
		rt.RegisterWebSocketRoutes(r.Group(""))
	}

	v1 := r.Group("/v1/chat")
	v1.Use(middleware.Auth(rt.resolver))
	rt.RegisterChatRoomRoutes(v1) // 聊天室路由
	rt.RegisterMessageRoutes(v1)  // 消息路由
}
