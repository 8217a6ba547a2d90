package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"account-api/internal/core/auth"
	"account-api/internal/core/config"
	"account-api/internal/core/server"
	"account-api/internal/service"
	mdw "account-api/internal/transport/http/middleware"
	resp "account-api/internal/transport/http/response"
)

// Deps 两个 engine 共用的依赖
type Deps struct {
	Log        *zap.Logger
	Users      *service.UserService
	Authorizer *auth.Authorizer
	HTTP       config.HTTP
	Mode       string                          // gin mode，空则不修改
	Ready      func(ctx context.Context) error // 健康检查探测（可选）
	Modules    []any                           // 额外挂载的模块
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// newEngine 基础 engine + 通用中间件 + /health /metrics
func newEngine(d Deps) *gin.Engine {
	l := d.logger()
	r := server.NewRouter(l, server.Options{Mode: d.Mode, CORSOrigins: d.HTTP.CORSOrigins})

	maxConcurrent := d.HTTP.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 300
	}
	maxBody := d.HTTP.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// 中间件
	r.Use(
		mdw.RequestID(),
		mdw.ConcurrencyLimit(maxConcurrent),
		mdw.MaxBodyBytes(maxBody),
		mdw.Timeout(time.Duration(d.HTTP.RequestTimeoutSec)*time.Second),
		mdw.Recovery(l),
		mdw.Metrics(),
		mdw.AccessLog(l),
	)

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		if d.Ready != nil {
			if err := d.Ready(c.Request.Context()); err != nil {
				l.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, resp.Error(resp.CodeUnavailable, "not ready"))
				return
			}
		}
		c.JSON(http.StatusOK, resp.OK(gin.H{"ok": 1}))
	})
	r.GET("/metrics", mdw.MetricsHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, resp.Error(resp.CodeNotFound, "route not found"))
	})
	return r
}
