package repository

import (
	"context"

	"campus_chat_server/internal/model"

	"gorm.io/gorm"
)

type chatMessageRepository struct {
	db *gorm.DB
}

// NewChatMessageRepository 创建消息 Repository
func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &chatMessageRepository{db: db}
}

// Create 唯一索引冲突原样保留 gorm.ErrDuplicatedKey，调用方据此重试
func (r *chatMessageRepository) Create(ctx context.Context, message *model.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return wrapDBErrorf(err, "创建消息 room_uuid=%s seq=%d", message.RoomUuid, message.Seq)
	}
	return nil
}

func (r *chatMessageRepository) FindByUuid(ctx context.Context, uuid int64) (*model.ChatMessage, error) {
	var message model.ChatMessage
	if err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&message).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息 uuid=%d", uuid)
	}
	return &message, nil
}

func (r *chatMessageRepository) FindByUuids(ctx context.Context, uuids []int64) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if len(uuids) == 0 {
		return messages, nil
	}
	if err := r.db.WithContext(ctx).Where("uuid IN ?", uuids).Find(&messages).Error; err != nil {
		return nil, wrapDBError(err, "批量查询消息")
	}
	return messages, nil
}

// FindByRoomUuid 按 seq 升序，不按创建时间，同一时刻写入的消息顺序也是确定的
func (r *chatMessageRepository) FindByRoomUuid(ctx context.Context, roomUuid string) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("room_uuid = ?", roomUuid).
		Order("seq ASC").
		Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询聊天室消息 room_uuid=%s", roomUuid)
	}
	return messages, nil
}
