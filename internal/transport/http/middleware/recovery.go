package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	resp "account-api/internal/transport/http/response"
)

// Recovery 兜底 panic，返回统一 500 信封
func Recovery(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				l.Error("panic recovered",
					zap.String("rid", c.GetString(KeyRequestID)),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(resp.Status(resp.CodeServerError), resp.Error(resp.CodeServerError, "internal error"))
			}
		}()
		c.Next()
	}
}
