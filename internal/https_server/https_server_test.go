package https_server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campus_chat_server/internal/config"
	"campus_chat_server/internal/dao/mysql/testdb"
	myredis "campus_chat_server/internal/dao/redis"
	"campus_chat_server/internal/dto/respond"
	"campus_chat_server/internal/handler"
	"campus_chat_server/internal/https_server"
	"campus_chat_server/internal/service"
	"campus_chat_server/internal/service/auth"
	"campus_chat_server/internal/service/chat"
	"campus_chat_server/pkg/errorx"
	"campus_chat_server/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnvelope struct {
	Code int             `json:"code"`
	Msg  any             `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type wsFrame struct {
	Event      string          `json:"event"`
	ChatRoomId string          `json:"chat_room_id"`
	Data       json.RawMessage `json:"data"`
	Code       int             `json:"code"`
}

type testApp struct {
	srv *httptest.Server
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	jwt.Init("test-secret-for-campus-chat", 10)
	if err := handler.InitTrans("zh"); err != nil {
		panic(err)
	}
	m.Run()
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	_, repos := testdb.New(t)
	cache := myredis.NewLocalCache(time.Minute, time.Minute, 0, 0)

	cs, err := chat.NewChatServer(chat.ChatServerConfig{Kafka: config.KafkaConfig{MessageMode: chat.ModeChannel}})
	require.NoError(t, err)
	svc := service.NewServices(repos, cache, cs, cs)
	cs.SetMemberLister(svc.ChatRoom)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cs.Start(ctx)
	}()
	resolver := auth.NewJWTResolver()
	gateway := chat.NewWsGateway(cs.Hub, resolver, svc.ChatRoom, svc.Message, config.WsConfig{WriteWait: 2, PongWait: 10})
	conf := &config.Config{}
	engine := https_server.Init(conf, handler.NewHandlers(svc, gateway), resolver)

	srv := httptest.NewServer(engine)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		cs.Close()
	})
	return &testApp{srv: srv}
}

func bearer(t *testing.T, userId string) string {
	t.Helper()
	token, err := jwt.GenerateAccessToken(userId)
	require.NoError(t, err)
	return "Bearer " + token
}

func (a *testApp) call(t *testing.T, method, path, user string, body any) apiEnvelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", bearer(t, user))
	}
	rsp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer rsp.Body.Close()
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var env apiEnvelope
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&env))
	return env
}

func decode[T any](t *testing.T, env apiEnvelope) T {
	t.Helper()
	require.Equal(t, errorx.CodeSuccess, env.Code, "msg: %v", env.Msg)
	var v T
	if len(env.Data) == 0 {
		return v
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (a *testApp) createRoom(t *testing.T, creator, roomType, title string, members ...string) respond.ChatRoomRespond {
	t.Helper()
	env := a.call(t, http.MethodPost, "/v1/chat/rooms", creator, map[string]any{
		"chat_room_type": roomType,
		"title":          title,
		"member_ids":     members,
	})
	return decode[respond.ChatRoomRespond](t, env)
}

func (a *testApp) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	token, err := jwt.GenerateAccessToken(user)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWs(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	app := newTestApp(t)

	rsp, err := http.Get(app.srv.URL + "/v1/chat/rooms")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, rsp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, app.srv.URL+"/v1/chat/rooms", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rsp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer rsp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, rsp2.StatusCode)
}

func TestDirectConversationOverHTTP(t *testing.T) {
	app := newTestApp(t)

	room := app.createRoom(t, "A", "DIRECT", "", "B")
	assert.Equal(t, "DIRECT", room.ChatRoomType)
	assert.Empty(t, room.Title)
	assert.ElementsMatch(t, []string{"A", "B"}, room.MemberIds)

	sent := decode[respond.ChatMessageRespond](t, app.call(t, http.MethodPost, "/v1/chat/messages", "A", map[string]string{
		"chat_room_id": room.ChatRoomId,
		"content":      "hi",
	}))
	assert.Equal(t, "A", sent.SenderId)
	decode[respond.ChatMessageRespond](t, app.call(t, http.MethodPost, "/v1/chat/messages", "B", map[string]string{
		"chat_room_id": room.ChatRoomId,
		"content":      "hello",
	}))

	history := decode[[]respond.ChatMessageRespond](t, app.call(t, http.MethodGet, "/v1/chat/messages/room/"+room.ChatRoomId, "A", nil))
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, "hello", history[1].Content)

	rooms := decode[[]respond.ChatRoomRespond](t, app.call(t, http.MethodGet, "/v1/chat/rooms", "A", nil))
	require.Len(t, rooms, 1)
	assert.Equal(t, history[1].MessageId, rooms[0].LastMessageId)
	assert.Equal(t, "hello", rooms[0].LastMessageContent)
	assert.EqualValues(t, 1, rooms[0].UnreadCount)

	decode[any](t, app.call(t, http.MethodPost, "/v1/chat/rooms/"+room.ChatRoomId+"/read", "A", map[string]string{
		"message_id": history[1].MessageId,
	}))
	rooms = decode[[]respond.ChatRoomRespond](t, app.call(t, http.MethodGet, "/v1/chat/rooms", "A", nil))
	assert.EqualValues(t, 0, rooms[0].UnreadCount)
}

func TestValidationAndPermissionCodes(t *testing.T) {
	app := newTestApp(t)

	env := app.call(t, http.MethodPost, "/v1/chat/rooms", "A", map[string]any{
		"chat_room_type": "CHANNEL",
		"member_ids":     []string{"B"},
	})
	assert.Equal(t, errorx.CodeInvalidParam, env.Code)
	assert.Contains(t, env.Msg, "chat_room_type")

	env = app.call(t, http.MethodPost, "/v1/chat/rooms", "A", map[string]any{
		"chat_room_type": "DIRECT",
		"member_ids":     []string{"B", "C"},
	})
	assert.Equal(t, errorx.CodeInvalidMembership, env.Code)

	env = app.call(t, http.MethodPost, "/v1/chat/rooms", "A", map[string]any{
		"chat_room_type": "GROUP",
		"member_ids":     []string{"B"},
	})
	assert.Equal(t, errorx.CodeInvalidRoom, env.Code)

	room := app.createRoom(t, "A", "GROUP", "Study", "B", "C")
	env = app.call(t, http.MethodPost, "/v1/chat/messages", "D", map[string]string{
		"chat_room_id": room.ChatRoomId,
		"content":      "let me in",
	})
	assert.Equal(t, errorx.CodePermissionDenied, env.Code)

	env = app.call(t, http.MethodGet, "/v1/chat/rooms/"+room.ChatRoomId+"/members", "D", nil)
	assert.Equal(t, errorx.CodePermissionDenied, env.Code)

	members := decode[[]respond.ChatRoomMemberRespond](t, app.call(t, http.MethodGet, "/v1/chat/rooms/"+room.ChatRoomId+"/members", "B", nil))
	assert.Len(t, members, 3)

	env = app.call(t, http.MethodPost, "/v1/chat/rooms/"+room.ChatRoomId+"/read", "A", map[string]string{"message_id": "abc"})
	assert.Equal(t, errorx.CodeInvalidParam, env.Code)
}

func TestLiveBroadcastOverWebSocket(t *testing.T) {
	app := newTestApp(t)
	room := app.createRoom(t, "A", "GROUP", "Study", "B", "C")

	b := app.dial(t, "B")
	require.NoError(t, b.WriteJSON(map[string]string{"action": "subscribe", "chat_room_id": room.ChatRoomId}))
	require.Equal(t, chat.EventSubscribed, readWs(t, b).Event)

	outsider := app.dial(t, "D")
	require.NoError(t, outsider.WriteJSON(map[string]string{"action": "subscribe", "chat_room_id": room.ChatRoomId}))
	f := readWs(t, outsider)
	assert.Equal(t, chat.EventError, f.Event)
	assert.Equal(t, errorx.CodePermissionDenied, f.Code)

	// REST 发送也会推送给 WebSocket 订阅者
	sent := decode[respond.ChatMessageRespond](t, app.call(t, http.MethodPost, "/v1/chat/messages", "A", map[string]string{
		"chat_room_id": room.ChatRoomId,
		"content":      "hi",
	}))
	f = readWs(t, b)
	require.Equal(t, chat.EventMessage, f.Event)
	var got respond.ChatMessageRespond
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, sent, got)

	// WebSocket send 帧
	c := app.dial(t, "C")
	require.NoError(t, c.WriteJSON(map[string]string{"action": "send", "chat_room_id": room.ChatRoomId, "content": "from ws"}))
	ack := readWs(t, c)
	require.Equal(t, chat.EventSent, ack.Event)
	f = readWs(t, b)
	require.Equal(t, chat.EventMessage, f.Event)
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, "from ws", got.Content)
	assert.Equal(t, "C", got.SenderId)

	history := decode[[]respond.ChatMessageRespond](t, app.call(t, http.MethodGet, "/v1/chat/messages/room/"+room.ChatRoomId, "B", nil))
	assert.Len(t, history, 2)
}

func TestLeaveAndDeleteRevokeSubscriptions(t *testing.T) {
	app := newTestApp(t)
	room := app.createRoom(t, "A", "GROUP", "Study", "B", "C")

	b := app.dial(t, "B")
	require.NoError(t, b.WriteJSON(map[string]string{"action": "subscribe", "chat_room_id": room.ChatRoomId}))
	require.Equal(t, chat.EventSubscribed, readWs(t, b).Event)
	c := app.dial(t, "C")
	require.NoError(t, c.WriteJSON(map[string]string{"action": "subscribe", "chat_room_id": room.ChatRoomId}))
	require.Equal(t, chat.EventSubscribed, readWs(t, c).Event)

	decode[any](t, app.call(t, http.MethodPost, "/v1/chat/rooms/"+room.ChatRoomId+"/leave", "B", nil))
	f := readWs(t, b)
	assert.Equal(t, chat.EventUnsubscribed, f.Event)
	assert.Equal(t, room.ChatRoomId, f.ChatRoomId)

	env := app.call(t, http.MethodGet, "/v1/chat/messages/room/"+room.ChatRoomId, "B", nil)
	assert.Equal(t, errorx.CodePermissionDenied, env.Code)

	decode[any](t, app.call(t, http.MethodDelete, "/v1/chat/rooms/"+room.ChatRoomId, "A", nil))
	assert.Equal(t, chat.EventUnsubscribed, readWs(t, c).Event)

	env = app.call(t, http.MethodPost, "/v1/chat/messages", "A", map[string]string{
		"chat_room_id": room.ChatRoomId,
		"content":      "anyone?",
	})
	assert.Equal(t, errorx.CodeRoomUnavailable, env.Code)

	rooms := decode[[]respond.ChatRoomRespond](t, app.call(t, http.MethodGet, "/v1/chat/rooms", "A", nil))
	assert.Empty(t, rooms)
}
