package respond

import (
	"strconv"

	"campus_chat_server/internal/model"
)

// TimeLayout 响应中时间字段的统一格式
const TimeLayout = "2006-01-02 15:04:05"

// NewChatMessageRespond 消息实体转响应
func NewChatMessageRespond(m *model.ChatMessage) ChatMessageRespond {
	return ChatMessageRespond{
		MessageId:   strconv.FormatInt(m.Uuid, 10),
		ChatRoomId:  m.RoomUuid,
		Seq:         m.Seq,
		SenderId:    m.SenderId,
		Content:     m.Content,
		MessageType: m.MessageType,
		Translated:  m.Translated,
		CreatedAt:   m.CreatedAt.Format(TimeLayout),
	}
}

// NewChatRoomMemberRespond 成员实体转响应
func NewChatRoomMemberRespond(m *model.ChatRoomMember) ChatRoomMemberRespond {
	return ChatRoomMemberRespond{
		MemberId:   m.Uuid,
		ChatRoomId: m.RoomUuid,
		UserId:     m.UserId,
		JoinedAt:   m.CreatedAt.Format(TimeLayout),
	}
}
