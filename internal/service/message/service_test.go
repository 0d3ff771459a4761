package message

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"campus_chat_server/internal/dao/mysql/repository"
	"campus_chat_server/internal/dao/mysql/testdb"
	myredis "campus_chat_server/internal/dao/redis"
	"campus_chat_server/internal/dto/request"
	"campus_chat_server/internal/dto/respond"
	"campus_chat_server/internal/service/chatroom"
	"campus_chat_server/pkg/enum"
	"campus_chat_server/pkg/errorx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []respond.ChatMessageRespond
	err  error
}

func (p *recordingPublisher) PublishMessage(_ context.Context, roomId string, msg *respond.ChatMessageRespond) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if roomId != msg.ChatRoomId {
		return fmt.Errorf("topic %s does not match message room %s", roomId, msg.ChatRoomId)
	}
	p.msgs = append(p.msgs, *msg)
	return p.err
}

func (p *recordingPublisher) published() []respond.ChatMessageRespond {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]respond.ChatMessageRespond(nil), p.msgs...)
}

type fixture struct {
	svc   *messageService
	rooms interface {
		CreateRoom(ctx context.Context, creatorId string, req request.CreateChatRoomRequest) (*respond.ChatRoomRespond, error)
		DeleteRoom(ctx context.Context, userId, roomId string) error
	}
	repos *repository.Repositories
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	_, repos := testdb.New(t)
	pub := &recordingPublisher{}
	cache := myredis.NewLocalCache(time.Minute, time.Minute, 0, 0)
	return &fixture{
		svc:   NewMessageService(repos, pub),
		rooms: chatroom.NewChatRoomService(repos, cache, nil),
		repos: repos,
		pub:   pub,
	}
}

func (f *fixture) room(t *testing.T, roomType, creator string, others ...string) string {
	t.Helper()
	req := request.CreateChatRoomRequest{ChatRoomType: roomType, MemberIds: others}
	if roomType == enum.ChatRoomTypeGroup {
		req.Title = "Study"
	}
	rsp, err := f.rooms.CreateRoom(context.Background(), creator, req)
	require.NoError(t, err)
	return rsp.ChatRoomId
}

func (f *fixture) send(t *testing.T, sender, roomId, content string) *respond.ChatMessageRespond {
	t.Helper()
	rsp, err := f.svc.SendMessage(context.Background(), sender, request.SendMessageRequest{
		ChatRoomId: roomId,
		Content:    content,
	})
	require.NoError(t, err)
	return rsp
}

func contents(msgs []respond.ChatMessageRespond) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestDirectRoomConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.room(t, enum.ChatRoomTypeDirect, "A", "B")

	hi := f.send(t, "A", roomId, "hi")
	assert.Equal(t, enum.MessageTypeText, hi.MessageType)
	assert.False(t, hi.Translated)
	assert.Equal(t, int64(1), hi.Seq)

	history, err := f.svc.GetHistory(ctx, "B", roomId)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, contents(history))

	room, err := f.repos.ChatRoom.FindByUuid(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, hi.MessageId, strconv.FormatInt(room.LastMessageId.Int64, 10))

	hello := f.send(t, "B", roomId, "hello")
	history, err = f.svc.GetHistory(ctx, "A", roomId)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "hello"}, contents(history))

	room, err = f.repos.ChatRoom.FindByUuid(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, hello.MessageId, strconv.FormatInt(room.LastMessageId.Int64, 10))
}

func TestSendAdvancesOnlySenderCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.room(t, enum.ChatRoomTypeDirect, "A", "B")

	msg := f.send(t, "A", roomId, "hi")

	sender, err := f.repos.RoomMember.FindActive(ctx, roomId, "A")
	require.NoError(t, err)
	assert.Equal(t, msg.MessageId, strconv.FormatInt(sender.LastReadMessageId.Int64, 10))

	other, err := f.repos.RoomMember.FindActive(ctx, roomId, "B")
	require.NoError(t, err)
	assert.False(t, other.LastReadMessageId.Valid)
}

func TestNonMemberCannotSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.room(t, enum.ChatRoomTypeGroup, "A", "B", "C")

	_, err := f.svc.SendMessage(ctx, "D", request.SendMessageRequest{ChatRoomId: roomId, Content: "let me in"})
	assert.ErrorIs(t, err, errorx.ErrPermissionDenied)

	history, err := f.svc.GetHistory(ctx, "A", roomId)
	require.NoError(t, err)
	assert.Empty(t, history)

	room, err := f.repos.ChatRoom.FindByUuid(ctx, roomId)
	require.NoError(t, err)
	assert.False(t, room.LastMessageId.Valid)
	assert.Empty(t, f.pub.published())
}

func TestSendToUnavailableRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.room(t, enum.ChatRoomTypeGroup, "A", "B")
	require.NoError(t, f.rooms.DeleteRoom(ctx, "A", roomId))

	_, err := f.svc.SendMessage(ctx, "A", request.SendMessageRequest{ChatRoomId: roomId, Content: "anyone?"})
	assert.ErrorIs(t, err, errorx.ErrRoomUnavailable)

	_, err = f.svc.SendMessage(ctx, "A", request.SendMessageRequest{ChatRoomId: "missing", Content: "anyone?"})
	assert.ErrorIs(t, err, errorx.ErrRoomUnavailable)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.room(t, enum.ChatRoomTypeDirect, "A", "B")

	_, err := f.svc.SendMessage(ctx, "A", request.SendMessageRequest{ChatRoomId: roomId, Content: "   "})
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))

	_, err = f.svc.SendMessage(ctx, "A", request.SendMessageRequest{Content: "hi"})
	assert.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))

	_, err = f.svc.SendMessage(ctx, "", request.SendMessageRequest{ChatRoomId: roomId, Content: "hi"})
	assert.ErrorIs(t, err, errorx.ErrUnauthenticated)

	history, err := f.svc.GetHistory(ctx, "A", roomId)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryRequiresMembership(t *testing.T) {
	f := newFixture(t)
	roomId := f.room(t, enum.ChatRoomTypeDirect, "A", "B")
	f.send(t, "A", roomId, "secret")

	_, err := f.svc.GetHistory(context.Background(), "C", roomId)
	assert.ErrorIs(t, err, errorx.ErrPermissionDenied)
}

func TestSequentialAppendsKeepOrderAndReadsAreStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.room(t, enum.ChatRoomTypeGroup, "A", "B", "C")

	senders := []string{"A", "B", "C"}
	want := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		content := fmt.Sprintf("m%02d", i)
		f.send(t, senders[i%len(senders)], roomId, content)
		want = append(want, content)
	}

	first, err := f.svc.GetHistory(ctx, "A", roomId)
	require.NoError(t, err)
	second, err := f.svc.GetHistory(ctx, "B", roomId)
	require.NoError(t, err)
	assert.Equal(t, want, contents(first))
	assert.Equal(t, first, second)
	for i, m := range first {
		assert.Equal(t, int64(i+1), m.Seq)
	}
}

func TestConcurrentAppendsToOneRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.room(t, enum.ChatRoomTypeGroup, "A", "B", "C")

	const perSender = 10
	senders := []string{"A", "B", "C"}
	var wg sync.WaitGroup
	errs := make(chan error, perSender*len(senders))
	for _, s := range senders {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := f.svc.SendMessage(ctx, sender, request.SendMessageRequest{
					ChatRoomId: roomId,
					Content:    fmt.Sprintf("%s-%d", sender, i),
				})
				if err != nil {
					errs <- err
				}
			}
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append failed: %v", err)
	}

	history, err := f.svc.GetHistory(ctx, "A", roomId)
	require.NoError(t, err)
	total := perSender * len(senders)
	require.Len(t, history, total)
	seqs := make([]int, 0, total)
	for _, m := range history {
		seqs = append(seqs, int(m.Seq))
	}
	assert.True(t, sort.IntsAreSorted(seqs))
	assert.Equal(t, 1, seqs[0])
	assert.Equal(t, total, seqs[total-1])

	room, err := f.repos.ChatRoom.FindByUuid(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, int64(total), room.LastSeq)
	assert.Equal(t, history[total-1].MessageId, strconv.FormatInt(room.LastMessageId.Int64, 10))

	// 每个发送者各自发出的消息在历史中保持发送顺序
	next := map[string]int{}
	for _, m := range history {
		assert.Equal(t, fmt.Sprintf("%s-%d", m.SenderId, next[m.SenderId]), m.Content)
		next[m.SenderId]++
	}
}

func TestBroadcastHappensAfterCommitAndFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomId := f.room(t, enum.ChatRoomTypeDirect, "A", "B")

	msg := f.send(t, "A", roomId, "hi")
	published := f.pub.published()
	require.Len(t, published, 1)
	assert.Equal(t, *msg, published[0])

	f.pub.err = errors.New("broker down")
	_, err := f.svc.SendMessage(ctx, "B", request.SendMessageRequest{ChatRoomId: roomId, Content: "still saved"})
	require.NoError(t, err)

	history, err := f.svc.GetHistory(ctx, "A", roomId)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "still saved"}, contents(history))
}

func TestRoomsDoNotShareSequences(t *testing.T) {
	f := newFixture(t)
	r1 := f.room(t, enum.ChatRoomTypeDirect, "A", "B")
	r2 := f.room(t, enum.ChatRoomTypeDirect, "A", "C")

	assert.Equal(t, int64(1), f.send(t, "A", r1, "x").Seq)
	assert.Equal(t, int64(1), f.send(t, "A", r2, "y").Seq)
	assert.Equal(t, int64(2), f.send(t, "B", r1, "z").Seq)
}
