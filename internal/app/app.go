package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"account-api/internal/core/auth"
	"account-api/internal/core/cache"
	"account-api/internal/core/config"
	"account-api/internal/core/database"
	"account-api/internal/repo"
	"account-api/internal/service"
	"account-api/internal/transport/http/router"
)

// App 两个进程共用的依赖装配
type App struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *gorm.DB
	cache *cache.Cache
	users *service.UserService
	authz *auth.Authorizer
}

func New(ctx context.Context, cfg *config.Config, l *zap.Logger) (*App, error) {
	// JWT 配置缺失属于致命错误，放在连库之前
	jwter, err := auth.NewJWTer(auth.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Subject:  cfg.JWT.Subject,
		TTL:      cfg.JWT.TTL(),
	})
	if err != nil {
		return nil, err
	}

	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Log:                l.Named("db"),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	l.Info("database connected", zap.String("driver", cfg.DB.Driver))

	a := &App{cfg: cfg, log: l, db: db, authz: auth.NewAuthorizer(jwter)}

	userRepo := repo.NewUserRepo(db)
	if cfg.DB.AutoMigrate {
		if err := userRepo.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		l.Info("automigrate done")
	}

	opts := []service.Option{service.WithLogger(l.Named("users"))}
	if cfg.Redis.Addr != "" {
		a.cache = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := a.cache.Ping(pctx); err != nil {
			// 缓存不可用时读穿到数据库，不阻塞启动
			l.Warn("redis unreachable, profile cache degraded", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		opts = append(opts, service.WithCache(a.cache, cfg.Redis.ProfileTTL()))
	}

	p := cfg.Password
	hasher := auth.NewPasswordHasher(p.Cost, auth.PasswordPolicy{
		MinLength:      p.MinLength,
		MaxLength:      p.MaxLength,
		RequireUpper:   p.RequireUpper,
		RequireLower:   p.RequireLower,
		RequireDigit:   p.RequireDigit,
		RequireSpecial: p.RequireSpecial,
	})
	a.users = service.NewUserService(userRepo, hasher, jwter, opts...)

	if b := cfg.Bootstrap; b.AdminEmail != "" {
		admin, created, err := a.users.EnsureAdmin(ctx, b.AdminEmail, b.AdminUsername, b.AdminPassword)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			l.Info("bootstrap admin ready", zap.Uint("id", admin.ID), zap.String("username", admin.Username))
		}
	}
	return a, nil
}

func (a *App) Users() *service.UserService { return a.users }

// Ready 健康检查：数据库必须可用，redis 只告警
func (a *App) Ready(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := a.cache.Ping(ctx); err != nil {
		a.log.Warn("redis ping failed", zap.Error(err))
	}
	return nil
}

// Deps 路由依赖；mode 为空时保持 gin 默认
func (a *App) Deps(httpCfg config.HTTP, mode string) router.Deps {
	return router.Deps{
		Log:        a.log,
		Users:      a.users,
		Authorizer: a.authz,
		HTTP:       httpCfg,
		Mode:       mode,
		Ready:      a.Ready,
	}
}

func (a *App) Close() {
	if err := a.cache.Close(); err != nil {
		a.log.Warn("close redis", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
