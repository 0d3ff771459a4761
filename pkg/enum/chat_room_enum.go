// Package enum 定义聊天相关的枚举常量
package enum

// 聊天室类型
const (
	ChatRoomTypeDirect = "DIRECT" // 一对一私聊
	ChatRoomTypeGroup  = "GROUP"  // 群聊
)

// 聊天室状态
const (
	ChatRoomStatusVisible = "VISIBLE"
	ChatRoomStatusDeleted = "DELETED"
)

// 消息类型，目前只有文本
const (
	MessageTypeText = "TEXT"
)

// ValidChatRoomType 判断聊天室类型是否受支持
func ValidChatRoomType(t string) bool {
	return t == ChatRoomTypeDirect || t == ChatRoomTypeGroup
}
