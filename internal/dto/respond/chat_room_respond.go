package respond

// ChatRoomRespond 聊天室信息
// 使用位置:
//   - internal/service/chatroom/service.go: CreateRoom, ListMyRooms
//
// 私聊 title 为空；还没有消息时 last_message_* 为空
// unread_count 是当前用户已读游标之后的消息数
type ChatRoomRespond struct {
	ChatRoomId          string   `json:"chat_room_id"`
	ChatRoomType        string   `json:"chat_room_type"`
	Title               string   `json:"title,omitempty"`
	PhotoUrl            string   `json:"photo_url"`
	MemberIds           []string `json:"member_ids"`
	LastMessageId       string   `json:"last_message_id,omitempty"`
	LastMessageContent  string   `json:"last_message_content,omitempty"`
	LastMessageSenderId string   `json:"last_message_sender_id,omitempty"`
	LastMessageAt       string   `json:"last_message_at,omitempty"`
	UnreadCount         int64    `json:"unread_count"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

// ChatRoomMemberRespond 聊天室成员
// 使用位置:
//   - internal/service/chatroom/service.go: ListMembers
type ChatRoomMemberRespond struct {
	MemberId   string `json:"member_id"`
	ChatRoomId string `json:"chat_room_id"`
	UserId     string `json:"user_id"`
	JoinedAt   string `json:"joined_at"`
}
