// Package message 消息追加与历史查询
package message

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"campus_chat_server/internal/dao/mysql/repository"
	"campus_chat_server/internal/dto/request"
	"campus_chat_server/internal/dto/respond"
	"campus_chat_server/internal/model"
	"campus_chat_server/pkg/constants"
	"campus_chat_server/pkg/enum"
	"campus_chat_server/pkg/errorx"
	"campus_chat_server/pkg/util/snowflake"
)

// errSeqConflict 同一聊天室的序号被并发追加抢先，整个事务重试
var errSeqConflict = errors.New("chat room sequence conflict")

// Publisher 提交后把消息推给聊天室的实时订阅者
type Publisher interface {
	PublishMessage(ctx context.Context, roomId string, msg *respond.ChatMessageRespond) error
}

// messageService 消息业务逻辑实现
type messageService struct {
	repos     *repository.Repositories
	publisher Publisher
}

// NewMessageService 构造函数，publisher 为 nil 时不做实时推送
func NewMessageService(repos *repository.Repositories, publisher Publisher) *messageService {
	return &messageService{repos: repos, publisher: publisher}
}

// SendMessage 追加一条文本消息
// 消息写入、聊天室最新消息指针、发送者已读游标在同一事务内完成，提交后再广播
func (m *messageService) SendMessage(ctx context.Context, senderId string, req request.SendMessageRequest) (*respond.ChatMessageRespond, error) {
	if senderId == "" {
		return nil, errorx.ErrUnauthenticated
	}
	roomId := strings.TrimSpace(req.ChatRoomId)
	if roomId == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "聊天室ID不能为空")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "消息内容不能为空")
	}

	var (
		saved *model.ChatMessage
		err   error
	)
	for attempt := 1; attempt <= constants.APPEND_MAX_RETRIES; attempt++ {
		saved, err = m.appendOnce(ctx, senderId, roomId, req.Content)
		if !errors.Is(err, errSeqConflict) {
			break
		}
		zap.L().Debug("append conflict, retrying", zap.String("room", roomId), zap.Int("attempt", attempt))
	}
	if errors.Is(err, errSeqConflict) {
		zap.L().Warn("append retries exhausted", zap.String("room", roomId), zap.String("sender", senderId))
		return nil, errorx.ErrServerBusy
	}
	if err != nil {
		return nil, err
	}

	rsp := respond.NewChatMessageRespond(saved)
	m.broadcast(ctx, &rsp)
	return &rsp, nil
}

// appendOnce 单次追加事务
// 先锁聊天室行拿到 last_seq，再以 last_seq 为条件推进指针，任何一步冲突都回滚
func (m *messageService) appendOnce(ctx context.Context, senderId, roomId, content string) (*model.ChatMessage, error) {
	var saved *model.ChatMessage
	err := m.repos.Transaction(ctx, func(txRepos *repository.Repositories) error {
		room, err := txRepos.ChatRoom.FindByUuidForUpdate(ctx, roomId)
		if err != nil {
			if errorx.IsNotFound(err) {
				return errorx.ErrRoomUnavailable
			}
			zap.L().Error("lock chat room failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		if !room.IsAvailable() {
			return errorx.ErrRoomUnavailable
		}

		ok, err := txRepos.RoomMember.ExistsActive(ctx, roomId, senderId)
		if err != nil {
			zap.L().Error("check membership failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		if !ok {
			return errorx.ErrPermissionDenied
		}

		now := time.Now()
		msg := &model.ChatMessage{
			Uuid:        snowflake.GenerateID(),
			RoomUuid:    roomId,
			Seq:         room.LastSeq + 1,
			SenderId:    senderId,
			Content:     content,
			MessageType: enum.MessageTypeText,
			Translated:  false,
		}
		msg.CreatedAt = now
		if err := txRepos.Message.Create(ctx, msg); err != nil {
			if repository.IsDuplicatedKey(err) {
				return errSeqConflict
			}
			zap.L().Error("insert message failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}

		advanced, err := txRepos.ChatRoom.AdvanceLastMessage(ctx, roomId, room.LastSeq, msg.Seq, msg.Uuid, now)
		if err != nil {
			zap.L().Error("advance room pointer failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		if !advanced {
			return errSeqConflict
		}

		if _, err := txRepos.RoomMember.AdvanceReadCursor(ctx, roomId, senderId, msg.Uuid, msg.Seq); err != nil {
			zap.L().Error("advance sender cursor failed", zap.String("room", roomId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		saved = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// broadcast 只在提交之后调用，推送失败不影响已写入的消息
func (m *messageService) broadcast(ctx context.Context, rsp *respond.ChatMessageRespond) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishMessage(ctx, rsp.ChatRoomId, rsp); err != nil {
		zap.L().Warn("broadcast message failed",
			zap.String("room", rsp.ChatRoomId),
			zap.String("message", rsp.MessageId),
			zap.Error(err),
		)
	}
}

// GetHistory 聊天室全部消息，按追加顺序
func (m *messageService) GetHistory(ctx context.Context, requesterId, roomId string) ([]respond.ChatMessageRespond, error) {
	roomId = strings.TrimSpace(roomId)
	if roomId == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "聊天室ID不能为空")
	}
	ok, err := m.repos.RoomMember.ExistsActive(ctx, roomId, requesterId)
	if err != nil {
		zap.L().Error("check membership failed", zap.String("room", roomId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if !ok {
		return nil, errorx.ErrPermissionDenied
	}

	messages, err := m.repos.Message.FindByRoomUuid(ctx, roomId)
	if err != nil {
		zap.L().Error("find room messages failed", zap.String("room", roomId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	rsp := make([]respond.ChatMessageRespond, 0, len(messages))
	for i := range messages {
		rsp = append(rsp, respond.NewChatMessageRespond(&messages[i]))
	}
	return rsp, nil
}
