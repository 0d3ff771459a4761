// Package service 定义业务层接口
// 本文件定义所有 Service 接口，供 Handler 层和 WebSocket 网关调用
package service

import (
	"context"

	"campus_chat_server/internal/dto/request"
	"campus_chat_server/internal/dto/respond"
)

// ChatRoomService 聊天室与成员关系
type ChatRoomService interface {
	// CreateRoom 创建私聊或群聊，创建者自动加入
	CreateRoom(ctx context.Context, creatorId string, req request.CreateChatRoomRequest) (*respond.ChatRoomRespond, error)
	// IsActiveMember 是否为聊天室有效成员
	IsActiveMember(ctx context.Context, roomId, userId string) (bool, error)
	// ListMembers 聊天室全部有效成员
	ListMembers(ctx context.Context, roomId string) ([]respond.ChatRoomMemberRespond, error)
	// GetRoomMembers 成员视角的成员列表，非成员返回 PermissionDenied
	GetRoomMembers(ctx context.Context, callerId, roomId string) ([]respond.ChatRoomMemberRespond, error)
	// ListMyRooms 我的聊天室，最近活跃在前
	ListMyRooms(ctx context.Context, userId string) ([]respond.ChatRoomRespond, error)
	// AdvanceReadCursor 推进已读游标
	AdvanceReadCursor(ctx context.Context, userId, roomId string, messageId int64) error
	// LeaveRoom 退出群聊
	LeaveRoom(ctx context.Context, userId, roomId string) error
	// DeleteRoom 删除聊天室（软删除）
	DeleteRoom(ctx context.Context, userId, roomId string) error
}

// MessageService 消息
type MessageService interface {
	// SendMessage 追加消息并广播
	SendMessage(ctx context.Context, senderId string, req request.SendMessageRequest) (*respond.ChatMessageRespond, error)
	// GetHistory 聊天室历史消息
	GetHistory(ctx context.Context, requesterId, roomId string) ([]respond.ChatMessageRespond, error)
}
