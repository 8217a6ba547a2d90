package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"account-api/internal/app"
	"account-api/internal/core/apperr"
	"account-api/internal/core/config"
	"account-api/internal/core/logger"
	"account-api/internal/core/server"
	"account-api/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.FromConfig(cfg.Log)
	defer cleanup()
	defer logger.RedirectStdLog(log, zapcore.InfoLevel)()
	gin.DefaultWriter = logger.ToWriter(log, zapcore.DebugLevel)
	gin.DefaultErrorWriter = logger.ToWriter(log, zapcore.ErrorLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 依赖
	a, err := app.New(ctx, cfg, log.Named("admin"))
	if err != nil {
		if errors.Is(err, apperr.ErrConfiguration) {
			log.Fatal("invalid configuration", zap.Error(err))
		}
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	// 路由（后台端）；超时、限流沿用用户端配置，只换监听地址
	h := cfg.App.HTTP
	h.Host, h.Port = cfg.App.Admin.Host, cfg.App.Admin.Port
	mode := gin.DebugMode
	if cfg.App.Env == "prod" || cfg.App.Env == "production" {
		mode = gin.ReleaseMode
	}
	r := router.NewAdminEngine(a.Deps(h, mode))

	// HTTP Server
	addr := server.Addr(h.Host, h.Port)
	srv := server.BuildServer(addr, r, 5*time.Second, 10*time.Second, 60*time.Second)

	// 启动前打印可点击地址
	baseURL := server.BaseURL(h.Host, h.Port)
	log.Info("admin api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("admin_v1", baseURL+"/admin/v1"),
	)

	if err := server.Run(ctx, srv, log, 10*time.Second); err != nil {
		log.Error("admin api stopped with error", zap.Error(err))
		return
	}
	log.Info("admin api stopped gracefully")
}
