package repository

import (
	"context"
	"errors"

	"campus_chat_server/internal/model"

	"gorm.io/gorm"
)

type chatRoomMemberRepository struct {
	db *gorm.DB
}

// NewChatRoomMemberRepository 创建成员 Repository
func NewChatRoomMemberRepository(db *gorm.DB) ChatRoomMemberRepository {
	return &chatRoomMemberRepository{db: db}
}

func (r *chatRoomMemberRepository) CreateBatch(ctx context.Context, members []model.ChatRoomMember) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&members).Error; err != nil {
		return wrapDBError(err, "批量添加聊天室成员")
	}
	return nil
}

func (r *chatRoomMemberRepository) FindActive(ctx context.Context, roomUuid, userId string) (*model.ChatRoomMember, error) {
	var member model.ChatRoomMember
	if err := r.db.WithContext(ctx).
		Where("room_uuid = ? AND user_id = ?", roomUuid, userId).
		First(&member).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询聊天室成员 room_uuid=%s user_id=%s", roomUuid, userId)
	}
	return &member, nil
}

func (r *chatRoomMemberRepository) ExistsActive(ctx context.Context, roomUuid, userId string) (bool, error) {
	var member model.ChatRoomMember
	err := r.db.WithContext(ctx).
		Select("id").
		Where("room_uuid = ? AND user_id = ?", roomUuid, userId).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapDBErrorf(err, "检查聊天室成员 room_uuid=%s user_id=%s", roomUuid, userId)
	}
	return true, nil
}

func (r *chatRoomMemberRepository) FindByRoomUuid(ctx context.Context, roomUuid string) ([]model.ChatRoomMember, error) {
	var members []model.ChatRoomMember
	if err := r.db.WithContext(ctx).
		Where("room_uuid = ?", roomUuid).
		Order("id ASC").
		Find(&members).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询聊天室成员 room_uuid=%s", roomUuid)
	}
	return members, nil
}

func (r *chatRoomMemberRepository) FindByRoomUuids(ctx context.Context, roomUuids []string) ([]model.ChatRoomMember, error) {
	var members []model.ChatRoomMember
	if len(roomUuids) == 0 {
		return members, nil
	}
	if err := r.db.WithContext(ctx).
		Where("room_uuid IN ?", roomUuids).
		Order("id ASC").
		Find(&members).Error; err != nil {
		return nil, wrapDBError(err, "批量查询聊天室成员")
	}
	return members, nil
}

func (r *chatRoomMemberRepository) CountByRoomUuid(ctx context.Context, roomUuid string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.ChatRoomMember{}).
		Where("room_uuid = ?", roomUuid).
		Count(&count).Error; err != nil {
		return 0, wrapDBErrorf(err, "统计聊天室成员 room_uuid=%s", roomUuid)
	}
	return count, nil
}

// AdvanceReadCursor 条件更新保证游标单调，并发推进时较小的序号不会覆盖较大的
func (r *chatRoomMemberRepository) AdvanceReadCursor(ctx context.Context, roomUuid, userId string, messageId, seq int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.ChatRoomMember{}).
		Where("room_uuid = ? AND user_id = ? AND last_read_seq < ?", roomUuid, userId, seq).
		Updates(map[string]interface{}{
			"last_read_seq":        seq,
			"last_read_message_id": messageId,
		})
	if res.Error != nil {
		return false, wrapDBErrorf(res.Error, "更新已读游标 room_uuid=%s user_id=%s", roomUuid, userId)
	}
	return res.RowsAffected > 0, nil
}

func (r *chatRoomMemberRepository) SoftDelete(ctx context.Context, roomUuid, userId string) error {
	if err := r.db.WithContext(ctx).
		Where("room_uuid = ? AND user_id = ?", roomUuid, userId).
		Delete(&model.ChatRoomMember{}).Error; err != nil {
		return wrapDBErrorf(err, "删除聊天室成员 room_uuid=%s user_id=%s", roomUuid, userId)
	}
	return nil
}
