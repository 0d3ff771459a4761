// Package chat 实现了聊天室的实时推送层
// hub.go
// 核心职责：本机订阅表
// 1. 维护 topic -> 连接集合，以及连接 -> topic 的反向索引
// 2. 投递时不阻塞，连接缓冲满了直接丢弃该帧
// 3. 订阅表只在内存中，进程重启后客户端需要重新订阅
package chat

import (
	"sync"

	"campus_chat_server/pkg/constants"
)

// TopicOf 聊天室对应的广播主题
func TopicOf(roomId string) string {
	return constants.CHAT_ROOM_TOPIC_PREFIX + roomId
}

// Hub 本机订阅表
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*UserConn]struct{}
	subs   map[*UserConn]map[string]struct{}
}

// NewHub 创建空的订阅表
func NewHub() *Hub {
	return &Hub{
		topics: make(map[string]map[*UserConn]struct{}),
		subs:   make(map[*UserConn]map[string]struct{}),
	}
}

// Subscribe 把连接加入主题，重复订阅无副作用
func (h *Hub) Subscribe(topic string, c *UserConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*UserConn]struct{})
	}
	h.topics[topic][c] = struct{}{}
	if _, ok := h.subs[c]; !ok {
		h.subs[c] = make(map[string]struct{})
	}
	h.subs[c][topic] = struct{}{}
}

// Unsubscribe 把连接移出主题，返回之前是否订阅过
func (h *Hub) Unsubscribe(topic string, c *UserConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(topic, c)
}

// UnsubscribeAll 连接断开时调用
func (h *Hub) UnsubscribeAll(c *UserConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic := range h.subs[c] {
		h.removeLocked(topic, c)
	}
	delete(h.subs, c)
}

// RevokeUser 移除某用户在主题上的全部连接，返回被移除的连接
func (h *Hub) RevokeUser(topic, userId string) []*UserConn {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []*UserConn
	for c := range h.topics[topic] {
		if c.UserId == userId {
			removed = append(removed, c)
		}
	}
	for _, c := range removed {
		h.removeLocked(topic, c)
	}
	return removed
}

// CloseTopic 清空主题，返回原有订阅者
func (h *Hub) CloseTopic(topic string) []*UserConn {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := make([]*UserConn, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		removed = append(removed, c)
	}
	for _, c := range removed {
		h.removeLocked(topic, c)
	}
	return removed
}

// Deliver 把一帧投递给主题下的所有连接，返回成功入队的数量
// 缓冲已满或已关闭的连接直接跳过，不重试
func (h *Hub) Deliver(topic string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.topics[topic] {
		if c.trySend(payload) {
			delivered++
		}
	}
	return delivered
}

// SubscriberCount 主题当前订阅数
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// SubscriberUsers 主题下订阅者的用户 ID，去重
func (h *Hub) SubscriberUsers(topic string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{}, len(h.topics[topic]))
	users := make([]string, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		if _, ok := seen[c.UserId]; ok {
			continue
		}
		seen[c.UserId] = struct{}{}
		users = append(users, c.UserId)
	}
	return users
}

// IsSubscribed 连接是否订阅了主题
func (h *Hub) IsSubscribed(topic string, c *UserConn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[topic][c]
	return ok
}

func (h *Hub) removeLocked(topic string, c *UserConn) bool {
	conns, ok := h.topics[topic]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.topics, topic)
	}
	if topics, ok := h.subs[c]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(h.subs, c)
		}
	}
	return true
}
