// Package chat 实现了聊天室的实时推送层
// ws_gateway.go
// 核心职责：WebSocket 入口
// 1. 握手前解析凭证，失败直接 401，不升级
// 2. 处理 subscribe / unsubscribe / send 三种客户端帧
// 3. 每个 subscribe 和 send 都重新解析凭证，推送层本身不做授权判断
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"campus_chat_server/internal/config"
	"campus_chat_server/internal/dto/request"
	"campus_chat_server/internal/dto/respond"
	"campus_chat_server/pkg/constants"
	"campus_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 客户端动作
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionSend        = "send"
)

// 服务端事件
const (
	EventMessage      = "message"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventSent         = "sent"
	EventError        = "error"
)

// clientFrame 客户端帧，token 为空时沿用建立连接时的凭证
type clientFrame struct {
	Action     string `json:"action"`
	ChatRoomId string `json:"chat_room_id"`
	Content    string `json:"content"`
	Token      string `json:"token"`
}

// serverFrame 服务端帧
type serverFrame struct {
	Event      string `json:"event"`
	ChatRoomId string `json:"chat_room_id,omitempty"`
	Data       any    `json:"data,omitempty"`
	Code       int    `json:"code,omitempty"`
	Msg        string `json:"msg,omitempty"`
}

func mustFrame(f serverFrame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		// serverFrame 只包含可序列化字段
		panic(err)
	}
	return data
}

func errorFrame(roomId string, err error) []byte {
	f := serverFrame{Event: EventError, ChatRoomId: roomId, Code: errorx.CodeServerBusy, Msg: errorx.ErrServerBusy.Msg}
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) {
		f.Code = codeErr.Code
		f.Msg = codeErr.Msg
	}
	return mustFrame(f)
}

// IdentityResolver 凭证解析
type IdentityResolver interface {
	Resolve(credential string) (string, error)
}

// MembershipChecker 订阅前的成员校验
type MembershipChecker interface {
	IsActiveMember(ctx context.Context, roomId, userId string) (bool, error)
}

// MessageSender 追加消息，广播由其在提交后触发
type MessageSender interface {
	SendMessage(ctx context.Context, senderId string, req request.SendMessageRequest) (*respond.ChatMessageRespond, error)
}

// WsGateway WebSocket 网关
type WsGateway struct {
	hub      *Hub
	resolver IdentityResolver
	members  MembershipChecker
	sender   MessageSender
	opts     connOptions
	upgrader websocket.Upgrader
}

// NewWsGateway 创建网关，cfg 中未配置的项使用默认值
func NewWsGateway(hub *Hub, resolver IdentityResolver, members MembershipChecker, sender MessageSender, cfg config.WsConfig) *WsGateway {
	opts := connOptions{
		writeWait:      constants.WS_WRITE_WAIT,
		pongWait:       constants.WS_PONG_WAIT,
		maxMessageSize: constants.WS_MAX_MESSAGE_SIZE,
		bufferSize:     constants.CHANNEL_SIZE,
	}
	if cfg.WriteWait > 0 {
		opts.writeWait = time.Duration(cfg.WriteWait) * time.Second
	}
	if cfg.PongWait > 0 {
		opts.pongWait = time.Duration(cfg.PongWait) * time.Second
	}
	if cfg.MaxMessageSize > 0 {
		opts.maxMessageSize = int64(cfg.MaxMessageSize)
	}
	if cfg.SendBufferSize > 0 {
		opts.bufferSize = cfg.SendBufferSize
	}
	return &WsGateway{
		hub:      hub,
		resolver: resolver,
		members:  members,
		sender:   sender,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			// 允许跨域连接
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// credentialOf 优先 query 中的 token，其次 Authorization 头
func credentialOf(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return c.GetHeader("Authorization")
}

// ServeWS 升级连接并启动读写协程
func (g *WsGateway) ServeWS(c *gin.Context) {
	credential := credentialOf(c)
	userId, err := g.resolver.Resolve(credential)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code": errorx.CodeUnauthorized,
			"msg":  "请先登录",
		})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("ws upgrade failed", zap.String("user_id", userId), zap.Error(err))
		return
	}
	client := NewUserConn(conn, uuid.NewString(), userId, credential, g.opts.bufferSize)
	go client.Write(g.opts)
	go func() {
		defer g.hub.UnsubscribeAll(client)
		client.Read(g.opts, g.handleFrame)
	}()
	zap.L().Info("ws connected", zap.String("conn", client.Uuid), zap.String("user_id", userId))
}

// handleFrame 在读协程中执行，同一连接的帧按到达顺序处理
func (g *WsGateway) handleFrame(c *UserConn, raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.trySend(errorFrame("", errorx.New(errorx.CodeInvalidParam, "无法解析的消息帧")))
		return
	}
	roomId := strings.TrimSpace(frame.ChatRoomId)

	switch frame.Action {
	case ActionSubscribe:
		g.subscribe(c, roomId, frame.Token)
	case ActionUnsubscribe:
		g.hub.Unsubscribe(TopicOf(roomId), c)
		c.trySend(mustFrame(serverFrame{Event: EventUnsubscribed, ChatRoomId: roomId}))
	case ActionSend:
		g.send(c, roomId, frame)
	default:
		c.trySend(errorFrame(roomId, errorx.Newf(errorx.CodeInvalidParam, "不支持的操作: %s", frame.Action)))
	}
}

// identify 解析本帧的凭证，连接只属于建立时的用户
func (g *WsGateway) identify(c *UserConn, token string) (string, error) {
	credential := token
	if credential == "" {
		credential = c.credential
	}
	userId, err := g.resolver.Resolve(credential)
	if err != nil {
		return "", errorx.ErrUnauthenticated
	}
	if userId != c.UserId {
		return "", errorx.New(errorx.CodeUnauthorized, "凭证与连接用户不一致")
	}
	return userId, nil
}

func (g *WsGateway) subscribe(c *UserConn, roomId, token string) {
	if roomId == "" {
		c.trySend(errorFrame(roomId, errorx.New(errorx.CodeInvalidParam, "聊天室ID不能为空")))
		return
	}
	userId, err := g.identify(c, token)
	if err != nil {
		c.trySend(errorFrame(roomId, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.writeWait)
	defer cancel()
	ok, err := g.members.IsActiveMember(ctx, roomId, userId)
	if err != nil {
		c.trySend(errorFrame(roomId, err))
		return
	}
	if !ok {
		c.trySend(errorFrame(roomId, errorx.ErrPermissionDenied))
		return
	}
	topic := TopicOf(roomId)
	g.hub.Subscribe(topic, c)
	// 订阅后再确认一次，期间提交的退出对应的撤销可能已经执行过
	ok, err = g.members.IsActiveMember(ctx, roomId, userId)
	if err != nil || !ok {
		g.hub.Unsubscribe(topic, c)
		if err == nil {
			err = errorx.ErrPermissionDenied
		}
		c.trySend(errorFrame(roomId, err))
		return
	}
	c.trySend(mustFrame(serverFrame{Event: EventSubscribed, ChatRoomId: roomId}))
}

func (g *WsGateway) send(c *UserConn, roomId string, frame clientFrame) {
	userId, err := g.identify(c, frame.Token)
	if err != nil {
		c.trySend(errorFrame(roomId, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.writeWait)
	defer cancel()
	msg, err := g.sender.SendMessage(ctx, userId, request.SendMessageRequest{
		ChatRoomId: roomId,
		Content:    frame.Content,
	})
	if err != nil {
		c.trySend(errorFrame(roomId, err))
		return
	}
	c.trySend(mustFrame(serverFrame{Event: EventSent, ChatRoomId: roomId, Data: msg}))
}
