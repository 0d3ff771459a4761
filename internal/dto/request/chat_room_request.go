package request

// CreateChatRoomRequest 创建聊天室请求
// 使用位置:
//   - internal/handler/chat_room_handler.go: CreateChatRoom
//   - internal/service/chatroom/service.go: CreateRoom
//
// 创建者由认证信息决定，member_ids 中可以不包含自己
type CreateChatRoomRequest struct {
	ChatRoomType string   `json:"chat_room_type" binding:"required,chat_room_type"`
	Title        string   `json:"title"`
	PhotoUrl     string   `json:"photo_url"`
	MemberIds    []string `json:"member_ids" binding:"required"`
}

// AdvanceReadCursorRequest 标记已读请求
// message_id 是雪花 ID 的字符串形式
type AdvanceReadCursorRequest struct {
	MessageId string `json:"message_id" binding:"required"`
}
