package chatroom

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"campus_chat_server/internal/dao/mysql/repository"
	"campus_chat_server/internal/dao/mysql/testdb"
	myredis "campus_chat_server/internal/dao/redis"
	"campus_chat_server/internal/dto/request"
	"campus_chat_server/internal/model"
	"campus_chat_server/pkg/enum"
	"campus_chat_server/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRevoker struct {
	mu    sync.Mutex
	users [][2]string
	rooms []string
}

func (f *fakeRevoker) RevokeUser(roomId, userId string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, [2]string{roomId, userId})
}

func (f *fakeRevoker) RevokeRoom(roomId string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms = append(f.rooms, roomId)
}

type fixture struct {
	svc     *chatRoomService
	repos   *repository.Repositories
	cache   *myredis.LocalCache
	revoker *fakeRevoker
}

func newFixture(t *testing.T) *fixture {
	_, repos := testdb.New(t)
	cache := myredis.NewLocalCache(time.Minute, time.Minute, 0, 0)
	revoker := &fakeRevoker{}
	return &fixture{
		svc:     NewChatRoomService(repos, cache, revoker),
		repos:   repos,
		cache:   cache,
		revoker: revoker,
	}
}

func (f *fixture) group(t *testing.T, creator string, others ...string) string {
	t.Helper()
	rsp, err := f.svc.CreateRoom(context.Background(), creator, request.CreateChatRoomRequest{
		ChatRoomType: enum.ChatRoomTypeGroup,
		Title:        "Study",
		MemberIds:    others,
	})
	require.NoError(t, err)
	return rsp.ChatRoomId
}

// appendRaw 直接写一条消息并推进指针，模拟消息服务的效果
func (f *fixture) appendRaw(t *testing.T, roomId, sender string, content string) *model.ChatMessage {
	t.Helper()
	ctx := context.Background()
	var msg *model.ChatMessage
	require.NoError(t, f.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		room, err := tx.ChatRoom.FindByUuidForUpdate(ctx, roomId)
		if err != nil {
			return err
		}
		msg = &model.ChatMessage{
			Uuid:        time.Now().UnixNano(),
			RoomUuid:    roomId,
			Seq:         room.LastSeq + 1,
			SenderId:    sender,
			Content:     content,
			MessageType: enum.MessageTypeText,
		}
		if err := tx.Message.Create(ctx, msg); err != nil {
			return err
		}
		_, err = tx.ChatRoom.AdvanceLastMessage(ctx, roomId, room.LastSeq, msg.Seq, msg.Uuid, time.Now())
		return err
	}))
	return msg
}

func TestCreateDirectRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rsp, err := f.svc.CreateRoom(ctx, "A", request.CreateChatRoomRequest{
		ChatRoomType: enum.ChatRoomTypeDirect,
		Title:        "ignored",
		MemberIds:    []string{"B"},
	})
	require.NoError(t, err)
	assert.Equal(t, enum.ChatRoomTypeDirect, rsp.ChatRoomType)
	assert.Empty(t, rsp.Title)
	assert.ElementsMatch(t, []string{"A", "B"}, rsp.MemberIds)
	assert.Empty(t, rsp.LastMessageId)

	room, err := f.repos.ChatRoom.FindByUuid(ctx, rsp.ChatRoomId)
	require.NoError(t, err)
	assert.False(t, room.Title.Valid)
	assert.False(t, room.LastMessageId.Valid)
	assert.Equal(t, enum.ChatRoomStatusVisible, room.Status)

	members, err := f.svc.ListMembers(ctx, rsp.ChatRoomId)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestCreateDirectRoomCreatorListedTwiceStillTwoMembers(t *testing.T) {
	f := newFixture(t)
	rsp, err := f.svc.CreateRoom(context.Background(), "A", request.CreateChatRoomRequest{
		ChatRoomType: enum.ChatRoomTypeDirect,
		MemberIds:    []string{"A", "B", "B", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, rsp.MemberIds)
}

func TestCreateRoomValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  request.CreateChatRoomRequest
		code int
	}{
		{"empty members", request.CreateChatRoomRequest{ChatRoomType: enum.ChatRoomTypeGroup, Title: "x"}, errorx.CodeInvalidParam},
		{"missing type", request.CreateChatRoomRequest{MemberIds: []string{"B"}}, errorx.CodeInvalidParam},
		{"unknown type", request.CreateChatRoomRequest{ChatRoomType: "CHANNEL", MemberIds: []string{"B"}}, errorx.CodeInvalidParam},
		{"direct with three", request.CreateChatRoomRequest{ChatRoomType: enum.ChatRoomTypeDirect, MemberIds: []string{"B", "C"}}, errorx.CodeInvalidMembership},
		{"direct with self only", request.CreateChatRoomRequest{ChatRoomType: enum.ChatRoomTypeDirect, MemberIds: []string{"A"}}, errorx.CodeInvalidMembership},
		{"group blank title", request.CreateChatRoomRequest{ChatRoomType: enum.ChatRoomTypeGroup, Title: "  ", MemberIds: []string{"B", "C"}}, errorx.CodeInvalidRoom},
		{"group too small", request.CreateChatRoomRequest{ChatRoomType: enum.ChatRoomTypeGroup, Title: "x", MemberIds: []string{"A"}}, errorx.CodeInvalidRoom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateRoom(ctx, "A", tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, errorx.GetCode(err))
		})
	}

	rooms, err := f.svc.ListMyRooms(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, rooms, "failed creations must not leave rows behind")
}

func TestCreateRoomRequiresCaller(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRoom(context.Background(), "", request.CreateChatRoomRequest{
		ChatRoomType: enum.ChatRoomTypeDirect, MemberIds: []string{"B"},
	})
	assert.ErrorIs(t, err, errorx.ErrUnauthenticated)
}

func TestCreateGroupRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	roomId := f.group(t, "A", "B", "C")

	members, err := f.svc.ListMembers(ctx, roomId)
	require.NoError(t, err)
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserId)
		assert.Equal(t, roomId, m.ChatRoomId)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)

	for _, u := range []string{"A", "B", "C"} {
		ok, err := f.svc.IsActiveMember(ctx, roomId, u)
		require.NoError(t, err)
		assert.True(t, ok, u)
	}
	ok, err := f.svc.IsActiveMember(ctx, roomId, "D")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListMembersUnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListMembers(context.Background(), "nope")
	assert.ErrorIs(t, err, errorx.ErrRoomUnavailable)
}

func TestGetRoomMembersRequiresMembership(t *testing.T) {
	f := newFixture(t)
	roomId := f.group(t, "A", "B")

	_, err := f.svc.GetRoomMembers(context.Background(), "D", roomId)
	assert.ErrorIs(t, err, errorx.ErrPermissionDenied)

	members, err := f.svc.GetRoomMembers(context.Background(), "B", roomId)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestListMembersUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.group(t, "A", "B", "C")

	_, err := f.svc.ListMembers(ctx, roomId)
	require.NoError(t, err)
	cached, err := f.cache.Get(ctx, "chat_room_members_"+roomId)
	require.NoError(t, err)
	assert.Contains(t, cached, `"user_id":"C"`)

	require.NoError(t, f.svc.LeaveRoom(ctx, "C", roomId))
	cached, err = f.cache.Get(ctx, "chat_room_members_"+roomId)
	require.NoError(t, err)
	assert.Empty(t, cached)

	members, err := f.svc.ListMembers(ctx, roomId)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

// deferredCache 回填任务先排队，由测试决定何时执行
type deferredCache struct {
	*myredis.LocalCache
	mu    sync.Mutex
	tasks []func()
}

func (d *deferredCache) SubmitTask(action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, action)
}

func (d *deferredCache) runQueued() {
	d.mu.Lock()
	tasks := d.tasks
	d.tasks = nil
	d.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

func TestLateBackfillDoesNotRestoreLeftMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := &deferredCache{LocalCache: f.cache}
	svc := NewChatRoomService(f.repos, cache, f.revoker)
	roomId := f.group(t, "A", "B", "C")

	members, err := svc.ListMembers(ctx, roomId)
	require.NoError(t, err)
	require.Len(t, members, 3)

	require.NoError(t, svc.LeaveRoom(ctx, "C", roomId))
	cache.runQueued()

	members, err = svc.GetRoomMembers(ctx, "A", roomId)
	require.NoError(t, err)
	userIds := make([]string, 0, len(members))
	for _, m := range members {
		userIds = append(userIds, m.UserId)
	}
	assert.ElementsMatch(t, []string{"A", "B"}, userIds)

	// 新版本下的回填照常生效
	cache.runQueued()
	cached, err := f.cache.Get(ctx, "chat_room_members_"+roomId)
	require.NoError(t, err)
	assert.NotContains(t, cached, `"user_id":"C"`)
	members, err = svc.ListMembers(ctx, roomId)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestListMyRoomsOrderingAndExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.group(t, "A", "B")
	second := f.group(t, "A", "C")
	deleted := f.group(t, "A", "D")
	left := f.group(t, "B", "A", "E")
	f.group(t, "B", "C") // 与 A 无关

	require.NoError(t, f.svc.DeleteRoom(ctx, "D", deleted))
	require.NoError(t, f.svc.LeaveRoom(ctx, "A", left))

	rooms, err := f.svc.ListMyRooms(ctx, "A")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, second, rooms[0].ChatRoomId)
	assert.Equal(t, first, rooms[1].ChatRoomId)

	// first 有新消息后排到最前，并带上最新消息摘要
	msg := f.appendRaw(t, first, "B", "ping")
	rooms, err = f.svc.ListMyRooms(ctx, "A")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, first, rooms[0].ChatRoomId)
	assert.Equal(t, strconv.FormatInt(msg.Uuid, 10), rooms[0].LastMessageId)
	assert.Equal(t, "ping", rooms[0].LastMessageContent)
	assert.Equal(t, "B", rooms[0].LastMessageSenderId)
	assert.Equal(t, int64(1), rooms[0].UnreadCount)
	assert.ElementsMatch(t, []string{"A", "B"}, rooms[0].MemberIds)
}

func TestAdvanceReadCursorIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.group(t, "A", "B")

	m1 := f.appendRaw(t, roomId, "A", "one")
	m2 := f.appendRaw(t, roomId, "A", "two")

	require.NoError(t, f.svc.AdvanceReadCursor(ctx, "B", roomId, m2.Uuid))
	require.NoError(t, f.svc.AdvanceReadCursor(ctx, "B", roomId, m1.Uuid))

	member, err := f.repos.RoomMember.FindActive(ctx, roomId, "B")
	require.NoError(t, err)
	assert.Equal(t, m2.Uuid, member.LastReadMessageId.Int64)
	assert.Equal(t, m2.Seq, member.LastReadSeq)

	rooms, err := f.svc.ListMyRooms(ctx, "B")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, int64(0), rooms[0].UnreadCount)
}

func TestAdvanceReadCursorRejectsForeignMessageAndNonMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomA := f.group(t, "A", "B")
	roomB := f.group(t, "A", "C")
	other := f.appendRaw(t, roomB, "C", "elsewhere")

	err := f.svc.AdvanceReadCursor(ctx, "A", roomA, other.Uuid)
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))

	err = f.svc.AdvanceReadCursor(ctx, "A", roomA, 123456)
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))

	err = f.svc.AdvanceReadCursor(ctx, "C", roomA, other.Uuid)
	assert.ErrorIs(t, err, errorx.ErrPermissionDenied)

	err = f.svc.AdvanceReadCursor(ctx, "A", "missing", other.Uuid)
	assert.ErrorIs(t, err, errorx.ErrRoomUnavailable)
}

func TestLeaveRoomRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	direct, err := f.svc.CreateRoom(ctx, "A", request.CreateChatRoomRequest{
		ChatRoomType: enum.ChatRoomTypeDirect, MemberIds: []string{"B"},
	})
	require.NoError(t, err)
	err = f.svc.LeaveRoom(ctx, "A", direct.ChatRoomId)
	assert.ErrorIs(t, err, errorx.ErrInvalidMembership)

	pair := f.group(t, "A", "B")
	err = f.svc.LeaveRoom(ctx, "A", pair)
	assert.ErrorIs(t, err, errorx.ErrInvalidRoom)

	trio := f.group(t, "A", "B", "C")
	err = f.svc.LeaveRoom(ctx, "D", trio)
	assert.ErrorIs(t, err, errorx.ErrPermissionDenied)

	require.NoError(t, f.svc.LeaveRoom(ctx, "C", trio))
	ok, err := f.svc.IsActiveMember(ctx, trio, "C")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, [][2]string{{trio, "C"}}, f.revoker.users)

	// 只剩两人，不能再退
	err = f.svc.LeaveRoom(ctx, "B", trio)
	assert.ErrorIs(t, err, errorx.ErrInvalidRoom)
}

func TestDeleteRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.group(t, "A", "B")

	err := f.svc.DeleteRoom(ctx, "X", roomId)
	assert.ErrorIs(t, err, errorx.ErrPermissionDenied)

	require.NoError(t, f.svc.DeleteRoom(ctx, "B", roomId))
	assert.Equal(t, []string{roomId}, f.revoker.rooms)

	err = f.svc.DeleteRoom(ctx, "A", roomId)
	assert.ErrorIs(t, err, errorx.ErrRoomUnavailable)

	_, err = f.svc.ListMembers(ctx, roomId)
	assert.ErrorIs(t, err, errorx.ErrRoomUnavailable)
}
