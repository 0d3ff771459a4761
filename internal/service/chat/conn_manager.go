// Package chat 实现了聊天室的实时推送层
// conn_manager.go
// 核心职责：单条 WebSocket 连接的读写协程
// 读协程把客户端帧交给网关处理，写协程把 SendBack 中的帧写回客户端并定时 ping
package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// UserConn 表示一个 WebSocket 客户端连接
type UserConn struct {
	Conn   *websocket.Conn
	Uuid   string // 连接 ID，同一用户可以有多条连接
	UserId string // 建立连接时解析出的用户
	// SendBack 给前端的帧，只写不关，关闭由 done 表示
	SendBack chan []byte

	credential string
	done       chan struct{}
	closeOnce  sync.Once
}

// NewUserConn 创建连接对象，conn 为 nil 时只能用于投递测试
func NewUserConn(conn *websocket.Conn, uuid, userId, credential string, bufferSize int) *UserConn {
	return &UserConn{
		Conn:       conn,
		Uuid:       uuid,
		UserId:     userId,
		SendBack:   make(chan []byte, bufferSize),
		credential: credential,
		done:       make(chan struct{}),
	}
}

// trySend 非阻塞入队，连接已关闭或缓冲已满时返回 false
func (c *UserConn) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.SendBack <- payload:
		return true
	default:
		zap.L().Debug("ws send buffer full, frame dropped", zap.String("conn", c.Uuid), zap.String("user_id", c.UserId))
		return false
	}
}

// Close 通知写协程发送关闭帧并断开底层连接，可重复调用
func (c *UserConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Read 读协程，返回即表示连接断开
func (c *UserConn) Read(opts connOptions, handle func(c *UserConn, frame []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(opts.maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(opts.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(opts.pongWait))
	})

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Warn("ws read failed", zap.String("conn", c.Uuid), zap.Error(err))
			}
			return
		}
		handle(c, frame)
	}
}

// Write 写协程，连接关闭或写失败时退出
func (c *UserConn) Write(opts connOptions) {
	ticker := time.NewTicker(opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.Close()
		if err := c.Conn.Close(); err != nil {
			zap.L().Debug("close ws conn", zap.String("conn", c.Uuid), zap.Error(err))
		}
	}()

	for {
		select {
		case frame := <-c.SendBack:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(opts.writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				zap.L().Warn("ws write failed", zap.String("conn", c.Uuid), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(opts.writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(opts.writeWait))
			return
		}
	}
}

// connOptions 读写协程使用的超时参数
type connOptions struct {
	writeWait      time.Duration
	pongWait       time.Duration
	maxMessageSize int64
	bufferSize     int
}

// pingPeriod 必须小于 pongWait
func (o connOptions) pingPeriod() time.Duration {
	return o.pongWait * 9 / 10
}
