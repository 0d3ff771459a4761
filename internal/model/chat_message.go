package model

import (
	"gorm.io/gorm"
)

// ChatMessage 聊天消息
// 对应数据库 chat_message 表，同一聊天室内按 Seq 严格递增
type ChatMessage struct {
	gorm.Model

	// Uuid 消息雪花 ID
	Uuid int64 `gorm:"column:uuid;uniqueIndex;type:bigint;not null;comment:消息雪花ID"`

	RoomUuid string `gorm:"column:room_uuid;uniqueIndex:uk_room_seq,priority:1;type:char(36);not null;comment:聊天室uuid"`

	// Seq 聊天室内序号，从 1 开始，由聊天室行上的 last_seq 分配
	Seq int64 `gorm:"column:seq;uniqueIndex:uk_room_seq,priority:2;not null;comment:聊天室内序号"`

	SenderId string `gorm:"column:sender_id;index;type:varchar(64);not null;comment:发送者id"`

	Content string `gorm:"column:content;type:TEXT;not null;comment:消息内容"`

	// MessageType 目前只有 TEXT
	MessageType string `gorm:"column:message_type;type:varchar(10);not null;default:TEXT;comment:消息类型"`

	// Translated 是否已翻译，翻译服务在外部，这里只保存标记
	Translated bool `gorm:"column:translated;not null;default:false;comment:是否已翻译"`
}

// TableName 指定表名
func (ChatMessage) TableName() string {
	return "chat_message"
}
