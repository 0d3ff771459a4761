package constants

import "time"

const (
	CHANNEL_SIZE           = 100 // 通道大小
	REDIS_TIMEOUT          = 1   // redis timeout (分钟)
	APPEND_MAX_RETRIES     = 5   // 消息追加在序号冲突时的最大重试次数
	DIRECT_ROOM_SIZE       = 2   // 私聊成员数
	GROUP_ROOM_MIN_SIZE    = 2   // 群聊最少成员数
	CHAT_ROOM_TOPIC_PREFIX = "chat.room."
	ROOM_MEMBERS_CACHE_KEY = "chat_room_members_"
	ROOM_MEMBERS_VER_KEY   = "chat_room_members_ver_" // 成员版本，退出和删除时更换
)

// WebSocket 连接默认参数，配置缺省时使用
const (
	WS_WRITE_WAIT       = 10 * time.Second
	WS_PONG_WAIT        = 60 * time.Second
	WS_MAX_MESSAGE_SIZE = 4096
)

// BROKER_PUBLISH_TIMEOUT 撤销订阅等无请求上下文的广播使用的超时
const BROKER_PUBLISH_TIMEOUT = 3 * time.Second
