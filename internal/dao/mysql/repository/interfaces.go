// Package repository 定义数据访问层接口和聚合结构
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
package repository

import (
	"context"
	"time"

	"campus_chat_server/internal/model"

	"gorm.io/gorm"
)

// ==================== Repository 接口定义 ====================

// ChatRoomRepository 聊天室数据访问接口
// 查询默认排除软删除的记录
type ChatRoomRepository interface {
	// Create 创建聊天室
	Create(ctx context.Context, room *model.ChatRoom) error
	// FindByUuid 根据 UUID 查找聊天室
	FindByUuid(ctx context.Context, uuid string) (*model.ChatRoom, error)
	// FindByUuidForUpdate 加行锁读取，仅在事务内使用
	FindByUuidForUpdate(ctx context.Context, uuid string) (*model.ChatRoom, error)
	// FindVisibleByMember 用户作为有效成员所在的可见聊天室，按最近活跃倒序
	FindVisibleByMember(ctx context.Context, userId string) ([]model.ChatRoom, error)
	// AdvanceLastMessage 以 last_seq == prevSeq 为条件推进最新消息指针
	// 返回 false 表示期间已有其他追加抢先
	AdvanceLastMessage(ctx context.Context, uuid string, prevSeq, seq, messageId int64, at time.Time) (bool, error)
	// SoftDelete 标记 DELETED 并软删除
	SoftDelete(ctx context.Context, uuid string) error
}

// ChatRoomMemberRepository 聊天室成员数据访问接口
type ChatRoomMemberRepository interface {
	// CreateBatch 批量添加成员
	CreateBatch(ctx context.Context, members []model.ChatRoomMember) error
	// FindActive 查找有效成员关系，不存在返回 CodeNotFound
	FindActive(ctx context.Context, roomUuid, userId string) (*model.ChatRoomMember, error)
	// ExistsActive 是否为有效成员
	ExistsActive(ctx context.Context, roomUuid, userId string) (bool, error)
	// FindByRoomUuid 聊天室的全部有效成员，按加入顺序
	FindByRoomUuid(ctx context.Context, roomUuid string) ([]model.ChatRoomMember, error)
	// FindByRoomUuids 多个聊天室的有效成员
	FindByRoomUuids(ctx context.Context, roomUuids []string) ([]model.ChatRoomMember, error)
	// CountByRoomUuid 有效成员数
	CountByRoomUuid(ctx context.Context, roomUuid string) (int64, error)
	// AdvanceReadCursor 只在 seq 大于当前游标时更新，返回是否前进
	AdvanceReadCursor(ctx context.Context, roomUuid, userId string, messageId, seq int64) (bool, error)
	// SoftDelete 软删除成员关系
	SoftDelete(ctx context.Context, roomUuid, userId string) error
}

// ChatMessageRepository 聊天消息数据访问接口
type ChatMessageRepository interface {
	// Create 写入消息，(room_uuid, seq) 冲突时返回的错误满足 IsDuplicatedKey
	Create(ctx context.Context, message *model.ChatMessage) error
	// FindByUuid 根据雪花 ID 查找
	FindByUuid(ctx context.Context, uuid int64) (*model.ChatMessage, error)
	// FindByUuids 批量查找，用于聊天室列表的最新消息摘要
	FindByUuids(ctx context.Context, uuids []int64) ([]model.ChatMessage, error)
	// FindByRoomUuid 聊天室全部消息，按 seq 升序
	FindByRoomUuid(ctx context.Context, roomUuid string) ([]model.ChatMessage, error)
}

// ==================== Repository 聚合 ====================

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Service 层通过此结构访问数据层
type Repositories struct {
	db         *gorm.DB
	ChatRoom   ChatRoomRepository
	RoomMember ChatRoomMemberRepository
	Message    ChatMessageRepository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:         db,
		ChatRoom:   NewChatRoomRepository(db),
		RoomMember: NewChatRoomMemberRepository(db),
		Message:    NewChatMessageRepository(db),
	}
}

// Transaction 在数据库事务中执行函数
// fn 内必须只使用 txRepos，返回错误即整体回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(txRepos *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
