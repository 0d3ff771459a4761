// Package chatroom 聊天室与成员关系的业务逻辑
package chatroom

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campus_chat_server/internal/dao/mysql/repository"
	myredis "campus_chat_server/internal/dao/redis"
	"campus_chat_server/internal/dto/request"
	"campus_chat_server/internal/dto/respond"
	"campus_chat_server/internal/model"
	"campus_chat_server/pkg/constants"
	"campus_chat_server/pkg/enum"
	"campus_chat_server/pkg/errorx"
)

const (
	membersCacheTTL   = time.Duration(constants.REDIS_TIMEOUT) * time.Minute
	// 版本要比成员列表活得久，否则迟到的回填会重新命中
	membersVersionTTL = 24 * time.Hour
)

// membersCacheEntry 成员列表缓存，带读库时的成员版本
type membersCacheEntry struct {
	Version string                          `json:"version"`
	Members []respond.ChatRoomMemberRespond `json:"members"`
}

// SubscriptionRevoker 成员退出或聊天室删除后撤销实时订阅
type SubscriptionRevoker interface {
	RevokeUser(roomId, userId string)
	RevokeRoom(roomId string)
}

// chatRoomService 聊天室业务逻辑实现
// 通过构造函数注入 Repository、Cache 和订阅撤销器
type chatRoomService struct {
	repos   *repository.Repositories
	cache   myredis.AsyncCacheService
	revoker SubscriptionRevoker
}

// NewChatRoomService 构造函数，revoker 可以为 nil
func NewChatRoomService(repos *repository.Repositories, cache myredis.AsyncCacheService, revoker SubscriptionRevoker) *chatRoomService {
	return &chatRoomService{
		repos:   repos,
		cache:   cache,
		revoker: revoker,
	}
}

// CreateRoom 创建聊天室，创建者自动成为成员
// 私聊恰好两人；群聊至少两人且必须有标题
func (s *chatRoomService) CreateRoom(ctx context.Context, creatorId string, req request.CreateChatRoomRequest) (*respond.ChatRoomRespond, error) {
	creatorId = strings.TrimSpace(creatorId)
	if creatorId == "" {
		return nil, errorx.ErrUnauthenticated
	}
	if len(req.MemberIds) == 0 {
		return nil, errorx.New(errorx.CodeInvalidParam, "成员列表不能为空")
	}
	if !enum.ValidChatRoomType(req.ChatRoomType) {
		return nil, errorx.Newf(errorx.CodeInvalidParam, "不支持的聊天室类型 %q", req.ChatRoomType)
	}

	memberIds := distinctMembers(creatorId, req.MemberIds)
	title := strings.TrimSpace(req.Title)

	room := model.ChatRoom{
		Uuid:     uuid.NewString(),
		RoomType: req.ChatRoomType,
		PhotoUrl: req.PhotoUrl,
		Status:   enum.ChatRoomStatusVisible,
	}
	switch req.ChatRoomType {
	case enum.ChatRoomTypeDirect:
		if len(memberIds) != constants.DIRECT_ROOM_SIZE {
			return nil, errorx.Newf(errorx.CodeInvalidMembership, "私聊必须恰好 %d 人，实际 %d 人", constants.DIRECT_ROOM_SIZE, len(memberIds))
		}
	case enum.ChatRoomTypeGroup:
		if len(memberIds) < constants.GROUP_ROOM_MIN_SIZE {
			return nil, errorx.Newf(errorx.CodeInvalidRoom, "群聊至少 %d 人", constants.GROUP_ROOM_MIN_SIZE)
		}
		if title == "" {
			return nil, errorx.New(errorx.CodeInvalidRoom, "群聊标题不能为空")
		}
		room.Title = sql.NullString{String: title, Valid: true}
	}

	members := make([]model.ChatRoomMember, 0, len(memberIds))
	for _, uid := range memberIds {
		members = append(members, model.ChatRoomMember{
			Uuid:     uuid.NewString(),
			RoomUuid: room.Uuid,
			UserId:   uid,
		})
	}

	err := s.repos.Transaction(ctx, func(txRepos *repository.Repositories) error {
		if err := txRepos.ChatRoom.Create(ctx, &room); err != nil {
			return err
		}
		return txRepos.RoomMember.CreateBatch(ctx, members)
	})
	if err != nil {
		zap.L().Error("create chat room failed", zap.String("creator", creatorId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	zap.L().Info("chat room created",
		zap.String("room", room.Uuid),
		zap.String("type", room.RoomType),
		zap.Int("members", len(memberIds)),
	)
	rsp := buildRoomRespond(&room, memberIds, nil, 0)
	return &rsp, nil
}

// IsActiveMember 是否为聊天室有效成员
func (s *chatRoomService) IsActiveMember(ctx context.Context, roomId, userId string) (bool, error) {
	if roomId == "" || userId == "" {
		return false, nil
	}
	ok, err := s.repos.RoomMember.ExistsActive(ctx, roomId, userId)
	if err != nil {
		zap.L().Error("check membership failed", zap.String("room", roomId), zap.String("user", userId), zap.Error(err))
		return false, errorx.ErrServerBusy
	}
	return ok, nil
}

// ListMembers 聊天室全部有效成员
// 结果缓存一段时间；读库前先取成员版本，退出和删除会更换版本，
// 版本不一致的缓存视为未命中，迟到的回填因此不会带回旧列表
func (s *chatRoomService) ListMembers(ctx context.Context, roomId string) ([]respond.ChatRoomMemberRespond, error) {
	if roomId == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "聊天室ID不能为空")
	}
	cacheKey := constants.ROOM_MEMBERS_CACHE_KEY + roomId

	version, versionErr := s.cache.Get(ctx, constants.ROOM_MEMBERS_VER_KEY+roomId)
	if versionErr != nil {
		zap.L().Error("cache get error", zap.String("key", constants.ROOM_MEMBERS_VER_KEY+roomId), zap.Error(versionErr))
	} else if entry, ok := s.cachedMembers(ctx, cacheKey); ok && entry.Version == version {
		return entry.Members, nil
	}

	if _, err := s.findAvailableRoom(ctx, s.repos, roomId); err != nil {
		return nil, err
	}
	members, err := s.repos.RoomMember.FindByRoomUuid(ctx, roomId)
	if err != nil {
		zap.L().Error("find room members failed", zap.String("room", roomId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	rsp := make([]respond.ChatRoomMemberRespond, 0, len(members))
	for i := range members {
		rsp = append(rsp, respond.NewChatRoomMemberRespond(&members[i]))
	}

	// 版本读不到时不回填
	if versionErr != nil {
		return rsp, nil
	}
	entry := membersCacheEntry{Version: version, Members: rsp}
	s.cache.SubmitTask(func() {
		data, err := json.Marshal(entry)
		if err != nil {
			zap.L().Error("marshal room members", zap.Error(err))
			return
		}
		if err := s.cache.Set(context.Background(), cacheKey, string(data), membersCacheTTL); err != nil {
			zap.L().Warn("backfill room member cache failed", zap.String("key", cacheKey), zap.Error(err))
		}
	})
	return rsp, nil
}

func (s *chatRoomService) cachedMembers(ctx context.Context, cacheKey string) (membersCacheEntry, bool) {
	var entry membersCacheEntry
	cached, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		zap.L().Error("cache get error", zap.String("key", cacheKey), zap.Error(err))
		return entry, false
	}
	if cached == "" {
		return entry, false
	}
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		zap.L().Error("Unmarshal room member cache error", zap.String("key", cacheKey), zap.Error(err))
		return entry, false
	}
	return entry, true
}

// GetRoomMembers 供成员查询成员列表，非成员无权查看
func (s *chatRoomService) GetRoomMembers(ctx context.Context, callerId, roomId string) ([]respond.ChatRoomMemberRespond, error) {
	ok, err := s.IsActiveMember(ctx, roomId, callerId)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorx.ErrPermissionDenied
	}
	return s.ListMembers(ctx, roomId)
}

// ListMyRooms 用户所在的全部可见聊天室，最近活跃的在前
func (s *chatRoomService) ListMyRooms(ctx context.Context, userId string) ([]respond.ChatRoomRespond, error) {
	if userId == "" {
		return nil, errorx.ErrUnauthenticated
	}
	rooms, err := s.repos.ChatRoom.FindVisibleByMember(ctx, userId)
	if err != nil {
		zap.L().Error("find my rooms failed", zap.String("user", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	// 按 uuid 去重，保持排序
	seen := make(map[string]struct{}, len(rooms))
	roomIds := make([]string, 0, len(rooms))
	lastIds := make([]int64, 0, len(rooms))
	distinct := rooms[:0]
	for _, room := range rooms {
		if _, ok := seen[room.Uuid]; ok {
			continue
		}
		seen[room.Uuid] = struct{}{}
		distinct = append(distinct, room)
		roomIds = append(roomIds, room.Uuid)
		if room.LastMessageId.Valid {
			lastIds = append(lastIds, room.LastMessageId.Int64)
		}
	}

	members, err := s.repos.RoomMember.FindByRoomUuids(ctx, roomIds)
	if err != nil {
		zap.L().Error("find members of my rooms failed", zap.String("user", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	memberIds := make(map[string][]string, len(roomIds))
	readSeq := make(map[string]int64, len(roomIds))
	for _, m := range members {
		memberIds[m.RoomUuid] = append(memberIds[m.RoomUuid], m.UserId)
		if m.UserId == userId {
			readSeq[m.RoomUuid] = m.LastReadSeq
		}
	}

	lastMessages, err := s.repos.Message.FindByUuids(ctx, lastIds)
	if err != nil {
		zap.L().Error("find last messages failed", zap.String("user", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	lastById := make(map[int64]*model.ChatMessage, len(lastMessages))
	for i := range lastMessages {
		lastById[lastMessages[i].Uuid] = &lastMessages[i]
	}

	rsp := make([]respond.ChatRoomRespond, 0, len(distinct))
	for i := range distinct {
		room := &distinct[i]
		var last *model.ChatMessage
		if room.LastMessageId.Valid {
			last = lastById[room.LastMessageId.Int64]
		}
		unread := room.LastSeq - readSeq[room.Uuid]
		if unread < 0 {
			unread = 0
		}
		rsp = append(rsp, buildRoomRespond(room, memberIds[room.Uuid], last, unread))
	}
	return rsp, nil
}

// AdvanceReadCursor 把用户的已读游标推进到指定消息，不会后退
func (s *chatRoomService) AdvanceReadCursor(ctx context.Context, userId, roomId string, messageId int64) error {
	if roomId == "" {
		return errorx.New(errorx.CodeInvalidParam, "聊天室ID不能为空")
	}
	return s.repos.Transaction(ctx, func(txRepos *repository.Repositories) error {
		if _, err := s.findAvailableRoom(ctx, txRepos, roomId); err != nil {
			return err
		}
		member, err := txRepos.RoomMember.FindActive(ctx, roomId, userId)
		if err != nil {
			if errorx.IsNotFound(err) {
				return errorx.ErrPermissionDenied
			}
			zap.L().Error("find member failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}

		msg, err := txRepos.Message.FindByUuid(ctx, messageId)
		if err != nil {
			if errorx.IsNotFound(err) {
				return errorx.Newf(errorx.CodeInvalidParam, "消息 %d 不存在", messageId)
			}
			zap.L().Error("find message failed", zap.Int64("message", messageId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		if msg.RoomUuid != roomId {
			return errorx.Newf(errorx.CodeInvalidParam, "消息 %d 不属于该聊天室", messageId)
		}

		if member.LastReadSeq >= msg.Seq {
			return nil
		}
		if _, err := txRepos.RoomMember.AdvanceReadCursor(ctx, roomId, userId, msg.Uuid, msg.Seq); err != nil {
			zap.L().Error("advance read cursor failed", zap.String("room", roomId), zap.String("user", userId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		return nil
	})
}

// LeaveRoom 退出群聊，退出后群聊仍需满足最少人数
func (s *chatRoomService) LeaveRoom(ctx context.Context, userId, roomId string) error {
	if roomId == "" {
		return errorx.New(errorx.CodeInvalidParam, "聊天室ID不能为空")
	}
	err := s.repos.Transaction(ctx, func(txRepos *repository.Repositories) error {
		room, err := s.lockAvailableRoom(ctx, txRepos, roomId)
		if err != nil {
			return err
		}
		ok, err := txRepos.RoomMember.ExistsActive(ctx, roomId, userId)
		if err != nil {
			zap.L().Error("check membership failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		if !ok {
			return errorx.ErrPermissionDenied
		}
		if room.RoomType == enum.ChatRoomTypeDirect {
			return errorx.New(errorx.CodeInvalidMembership, "私聊不能退出")
		}

		count, err := txRepos.RoomMember.CountByRoomUuid(ctx, roomId)
		if err != nil {
			zap.L().Error("count members failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		if count-1 < constants.GROUP_ROOM_MIN_SIZE {
			return errorx.Newf(errorx.CodeInvalidRoom, "群聊至少保留 %d 人", constants.GROUP_ROOM_MIN_SIZE)
		}
		if err := txRepos.RoomMember.SoftDelete(ctx, roomId, userId); err != nil {
			zap.L().Error("leave room failed", zap.String("room", roomId), zap.String("user", userId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateMembers(ctx, roomId)
	if s.revoker != nil {
		s.revoker.RevokeUser(roomId, userId)
	}
	return nil
}

// DeleteRoom 软删除聊天室，任一有效成员都可以操作
// 成员关系和消息保留，聊天室从列表中消失且不能再发消息
func (s *chatRoomService) DeleteRoom(ctx context.Context, userId, roomId string) error {
	if roomId == "" {
		return errorx.New(errorx.CodeInvalidParam, "聊天室ID不能为空")
	}
	err := s.repos.Transaction(ctx, func(txRepos *repository.Repositories) error {
		if _, err := s.lockAvailableRoom(ctx, txRepos, roomId); err != nil {
			return err
		}
		ok, err := txRepos.RoomMember.ExistsActive(ctx, roomId, userId)
		if err != nil {
			zap.L().Error("check membership failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		if !ok {
			return errorx.ErrPermissionDenied
		}
		if err := txRepos.ChatRoom.SoftDelete(ctx, roomId); err != nil {
			zap.L().Error("delete room failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		return nil
	})
	if err != nil {
		return err
	}

	zap.L().Info("chat room deleted", zap.String("room", roomId), zap.String("by", userId))
	s.invalidateMembers(ctx, roomId)
	if s.revoker != nil {
		s.revoker.RevokeRoom(roomId)
	}
	return nil
}

func (s *chatRoomService) findAvailableRoom(ctx context.Context, repos *repository.Repositories, roomId string) (*model.ChatRoom, error) {
	room, err := repos.ChatRoom.FindByUuid(ctx, roomId)
	return checkRoom(room, roomId, err)
}

func (s *chatRoomService) lockAvailableRoom(ctx context.Context, repos *repository.Repositories, roomId string) (*model.ChatRoom, error) {
	room, err := repos.ChatRoom.FindByUuidForUpdate(ctx, roomId)
	return checkRoom(room, roomId, err)
}

func checkRoom(room *model.ChatRoom, roomId string, err error) (*model.ChatRoom, error) {
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.ErrRoomUnavailable
		}
		zap.L().Error("find room failed", zap.String("room", roomId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if !room.IsAvailable() {
		return nil, errorx.ErrRoomUnavailable
	}
	return room, nil
}

// invalidateMembers 更换成员版本并删除成员缓存，失败只记日志
func (s *chatRoomService) invalidateMembers(ctx context.Context, roomId string) {
	if err := s.cache.Set(ctx, constants.ROOM_MEMBERS_VER_KEY+roomId, uuid.NewString(), membersVersionTTL); err != nil {
		zap.L().Warn("bump room member version failed", zap.String("room", roomId), zap.Error(err))
	}
	if err := s.cache.Delete(ctx, constants.ROOM_MEMBERS_CACHE_KEY+roomId); err != nil {
		zap.L().Warn("invalidate room member cache failed", zap.String("room", roomId), zap.Error(err))
	}
}

// distinctMembers 创建者放在首位，去掉空白和重复的 ID
func distinctMembers(creatorId string, memberIds []string) []string {
	seen := map[string]struct{}{creatorId: {}}
	out := []string{creatorId}
	for _, id := range memberIds {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func buildRoomRespond(room *model.ChatRoom, memberIds []string, last *model.ChatMessage, unread int64) respond.ChatRoomRespond {
	if memberIds == nil {
		memberIds = []string{}
	}
	rsp := respond.ChatRoomRespond{
		ChatRoomId:   room.Uuid,
		ChatRoomType: room.RoomType,
		Title:        room.Title.String,
		PhotoUrl:     room.PhotoUrl,
		MemberIds:    memberIds,
		UnreadCount:  unread,
		CreatedAt:    room.CreatedAt.Format(respond.TimeLayout),
		UpdatedAt:    room.UpdatedAt.Format(respond.TimeLayout),
	}
	if last != nil {
		rsp.LastMessageId = strconv.FormatInt(last.Uuid, 10)
		rsp.LastMessageContent = last.Content
		rsp.LastMessageSenderId = last.SenderId
		rsp.LastMessageAt = last.CreatedAt.Format(respond.TimeLayout)
	}
	return rsp
}
