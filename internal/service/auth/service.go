// Package auth 把客户端凭证解析为用户 ID
// 账号与令牌签发在外部系统，这里只负责校验访问令牌
package auth

import (
	"strings"

	"campus_chat_server/pkg/errorx"
	"campus_chat_server/pkg/util/jwt"

	"go.uber.org/zap"
)

// JWTResolver 基于 HS256 访问令牌的身份解析，HTTP 中间件和 WebSocket 网关共用
type JWTResolver struct{}

// NewJWTResolver 创建解析器，jwt.Init 需已调用
func NewJWTResolver() *JWTResolver {
	return &JWTResolver{}
}

// Resolve 接受裸 token 或 "Bearer <token>"
// 任何失败都返回 Unauthenticated，不区分过期和伪造
func (r *JWTResolver) Resolve(credential string) (string, error) {
	token := strings.TrimSpace(credential)
	if strings.HasPrefix(token, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	}
	if token == "" {
		return "", errorx.New(errorx.CodeUnauthorized, "缺少访问令牌")
	}

	claims, err := jwt.ParseToken(token)
	if err != nil {
		zap.L().Debug("parse access token failed", zap.Error(err))
		return "", errorx.Wrap(err, errorx.CodeUnauthorized, "Token 已过期或无效，请重新登录")
	}
	if claims.Subject != jwt.AccessTokenSubject || claims.UserID == "" {
		return "", errorx.New(errorx.CodeUnauthorized, "请使用 Access Token 访问此接口")
	}
	return claims.UserID, nil
}
