package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	resp "account-api/internal/transport/http/response"
)

// Timeout 给 request ctx 加 deadline；gorm 通过 WithContext 感知取消
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(resp.Status(resp.CodeGatewayTimeout), resp.Error(resp.CodeGatewayTimeout, "timeout"))
		}
	}
}
