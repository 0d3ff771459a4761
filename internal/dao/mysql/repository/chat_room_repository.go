package repository

import (
	"context"
	"time"

	"campus_chat_server/internal/model"
	"campus_chat_server/pkg/enum"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type chatRoomRepository struct {
	db *gorm.DB
}

// NewChatRoomRepository 创建聊天室 Repository
func NewChatRoomRepository(db *gorm.DB) ChatRoomRepository {
	return &chatRoomRepository{db: db}
}

func (r *chatRoomRepository) Create(ctx context.Context, room *model.ChatRoom) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return wrapDBError(err, "创建聊天室")
	}
	return nil
}

func (r *chatRoomRepository) FindByUuid(ctx context.Context, uuid string) (*model.ChatRoom, error) {
	var room model.ChatRoom
	if err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&room).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询聊天室 uuid=%s", uuid)
	}
	return &room, nil
}

// FindByUuidForUpdate SELECT ... FOR UPDATE
// SQLite 方言会忽略锁子句，单连接下事务本身就是串行的
func (r *chatRoomRepository) FindByUuidForUpdate(ctx context.Context, uuid string) (*model.ChatRoom, error) {
	var room model.ChatRoom
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ?", uuid).
		First(&room).Error; err != nil {
		return nil, wrapDBErrorf(err, "锁定聊天室 uuid=%s", uuid)
	}
	return &room, nil
}

func (r *chatRoomRepository) FindVisibleByMember(ctx context.Context, userId string) ([]model.ChatRoom, error) {
	var rooms []model.ChatRoom
	if err := r.db.WithContext(ctx).Model(&model.ChatRoom{}).
		Select("chat_room.*").
		Joins("JOIN chat_room_member ON chat_room_member.room_uuid = chat_room.uuid AND chat_room_member.deleted_at IS NULL").
		Where("chat_room_member.user_id = ? AND chat_room.status = ?", userId, enum.ChatRoomStatusVisible).
		Order("chat_room.updated_at DESC").
		Order("chat_room.id DESC").
		Find(&rooms).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户聊天室 user_id=%s", userId)
	}
	return rooms, nil
}

func (r *chatRoomRepository) AdvanceLastMessage(ctx context.Context, uuid string, prevSeq, seq, messageId int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ChatRoom{}).
		Where("uuid = ? AND last_seq = ?", uuid, prevSeq).
		Updates(map[string]interface{}{
			"last_seq":        seq,
			"last_message_id": messageId,
			"updated_at":      at,
		})
	if res.Error != nil {
		return false, wrapDBErrorf(res.Error, "更新聊天室最新消息 uuid=%s", uuid)
	}
	return res.RowsAffected == 1, nil
}

func (r *chatRoomRepository) SoftDelete(ctx context.Context, uuid string) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.ChatRoom{}).Where("uuid = ?", uuid).
		Update("status", enum.ChatRoomStatusDeleted).Error; err != nil {
		return wrapDBErrorf(err, "标记聊天室删除 uuid=%s", uuid)
	}
	if err := db.Where("uuid = ?", uuid).Delete(&model.ChatRoom{}).Error; err != nil {
		return wrapDBErrorf(err, "删除聊天室 uuid=%s", uuid)
	}
	return nil
}
