package request

// SendMessageRequest 发送消息请求
// 使用位置:
//   - internal/handler/message_handler.go: SendMessage (REST)
//   - internal/service/chat/ws_gateway.go: send 帧
//   - internal/service/message/service.go: SendMessage
type SendMessageRequest struct {
	ChatRoomId string `json:"chat_room_id" binding:"required"`
	Content    string `json:"content" binding:"required"`
}
