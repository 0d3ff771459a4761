package respond

// ChatMessageRespond 聊天消息
// 使用位置:
//   - internal/service/message/service.go: SendMessage, GetHistory
//   - internal/service/chat/ws_gateway.go: 推送给订阅者的 message 事件
//
// message_id 用字符串，避免 JavaScript 精度丢失
type ChatMessageRespond struct {
	MessageId   string `json:"message_id"`
	ChatRoomId  string `json:"chat_room_id"`
	Seq         int64  `json:"seq"`
	SenderId    string `json:"sender_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Translated  bool   `json:"translated"`
	CreatedAt   string `json:"created_at"`
}
