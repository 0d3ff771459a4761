package middleware

import (
	"errors"
	"net/http"
	"strings"

	"campus_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// ContextUserID 认证通过后写入 gin.Context 的键
const ContextUserID = "user_id"

// IdentityResolver 凭证解析，由 auth 包实现
type IdentityResolver interface {
	Resolve(credential string) (string, error)
}

// Auth 认证中间件，每个请求解析一次凭证，结果写入上下文
func Auth(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "请先登录")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Token 格式错误，请使用 Bearer Token")
			return
		}

		userID, err := resolver.Resolve(parts[1])
		if err != nil {
			msg := "Token 已过期或无效，请重新登录"
			var codeErr *errorx.CodeError
			if errors.As(err, &codeErr) {
				msg = codeErr.Msg
			}
			abortUnauthorized(c, msg)
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code": errorx.CodeUnauthorized,
		"msg":  msg,
	})
}
