// Package handler 提供 HTTP 请求处理器
// 本文件处理 WebSocket 连接入口
package handler

import (
	"github.com/gin-gonic/gin"
)

// WsGateway 由 service/chat 实现
type WsGateway interface {
	ServeWS(c *gin.Context)
}

// WsHandler WebSocket 处理器
type WsHandler struct {
	gateway WsGateway
}

// NewWsHandler 创建 WebSocket 处理器实例
func NewWsHandler(gateway WsGateway) *WsHandler {
	return &WsHandler{gateway: gateway}
}

// Connect 升级为 WebSocket 连接
// GET /ws?token=xxx 或携带 Authorization: Bearer xxx
// 凭证由网关自行解析，连接建立后通过 subscribe / send 帧交互
func (h *WsHandler) Connect(c *gin.Context) {
	h.gateway.ServeWS(c)
}
