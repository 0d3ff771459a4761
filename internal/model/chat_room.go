// Package model 定义数据库实体模型
package model

import (
	"database/sql"

	"campus_chat_server/pkg/enum"

	"gorm.io/gorm"
)

// ChatRoom 聊天室
// 对应数据库 chat_room 表，私聊和群聊共用
type ChatRoom struct {
	gorm.Model // UpdatedAt 同时作为"最近活跃时间"，我的聊天室列表按它倒序

	// Uuid 聊天室对外 ID
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);not null;comment:聊天室uuid"`

	// RoomType DIRECT 或 GROUP，见 pkg/enum
	RoomType string `gorm:"column:room_type;type:varchar(10);not null;comment:聊天室类型"`

	// Title 群聊标题，私聊固定为 NULL
	Title sql.NullString `gorm:"column:title;type:varchar(100);comment:聊天室标题"`

	PhotoUrl string `gorm:"column:photo_url;type:varchar(255);comment:聊天室头像"`

	// Status VISIBLE / DELETED
	Status string `gorm:"column:status;type:varchar(10);not null;default:VISIBLE;comment:状态"`

	// LastMessageId 最新消息的雪花 ID，弱引用，创建后首次发消息前为 NULL
	LastMessageId sql.NullInt64 `gorm:"column:last_message_id;comment:最新消息id"`

	// LastSeq 已分配的最大消息序号，追加消息时做 CAS，决定 LastMessageId 的先后
	LastSeq int64 `gorm:"column:last_seq;not null;default:0;comment:最新消息序号"`
}

// TableName 指定表名
func (ChatRoom) TableName() string {
	return "chat_room"
}

// IsAvailable 未删除且可见
func (r *ChatRoom) IsAvailable() bool {
	return r != nil && !r.DeletedAt.Valid && r.Status == enum.ChatRoomStatusVisible
}
