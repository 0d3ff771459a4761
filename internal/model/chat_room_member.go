package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// ChatRoomMember 聊天室成员关系，DeletedAt 为空即有效成员
type ChatRoomMember struct {
	gorm.Model
	Uuid     string `gorm:"column:uuid;uniqueIndex;type:char(36);not null;comment:成员关系uuid"`
	RoomUuid string `gorm:"column:room_uuid;uniqueIndex:uk_room_user,priority:1;type:char(36);not null;comment:聊天室uuid"`
	UserId   string `gorm:"column:user_id;uniqueIndex:uk_room_user,priority:2;index;type:varchar(64);not null;comment:用户id"`

	// 已读游标，只前进不后退，先后按 LastReadSeq 判断
	LastReadMessageId sql.NullInt64 `gorm:"column:last_read_message_id;comment:最后已读消息id"`
	LastReadSeq       int64         `gorm:"column:last_read_seq;not null;default:0;comment:最后已读消息序号"`
}

func (ChatRoomMember) TableName() string {
	return "chat_room_member"
}
