package jwt

import (
	"strings"

	"EduTask/pkg/back"
	"EduTask/pkg/util/myjwt"
	"EduTask/pkg/xerr"

	"github.com/gin-gonic/gin"
)

const (
	CtxUUID     = "uuid"
	CtxUsername = "username"
)

// TokenFromRequest 依次读取 Authorization 头与 token 查询参数。
// 浏览器原生 WebSocket 无法设置请求头，握手时只能走查询参数。
func TokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

func Auth(m *myjwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := TokenFromRequest(c)
		if tokenString == "" {
			back.Result(c, nil, xerr.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := m.ParseToken(tokenString)
		if err != nil {
			back.Error(c, xerr.Unauthorized, "invalid token")
			c.Abort()
			return
		}

		c.Set(CtxUUID, claims.Uuid)
		c.Set(CtxUsername, claims.Username)
		c.Next()
	}
}
