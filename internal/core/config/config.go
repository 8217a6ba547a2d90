package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"account-api/internal/core/apperr"
)

type HTTP struct {
	Host              string
	Port              int
	ReadTimeoutSec    int
	WriteTimeoutSec   int
	IdleTimeoutSec    int
	RequestTimeoutSec int
	MaxConcurrent     int64
	MaxBodyBytes      int64
	CORSOrigins       []string `mapstructure:"corsOrigins"`
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

type LogFile struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level string
	JSON  bool
	File  LogFile
}

type JWT struct {
	Secret            string
	Issuer            string
	Audience          string
	Subject           string
	AccessTokenTTLMin int
}

func (j JWT) TTL() time.Duration { return time.Duration(j.AccessTokenTTLMin) * time.Minute }

// Password 密码策略 + bcrypt cost
type Password struct {
	Cost           int
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

type Redis struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ProfileTTLSec int    `mapstructure:"profileTTLSec"`
}

func (r Redis) ProfileTTL() time.Duration { return time.Duration(r.ProfileTTLSec) * time.Second }

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Bootstrap 首次启动时创建的管理员；email 为空表示跳过
type Bootstrap struct {
	AdminEmail    string
	AdminUsername string
	AdminPassword string
}

type Config struct {
	App       App
	Log       Log
	JWT       JWT
	Password  Password
	DB        DB
	Redis     Redis `mapstructure:"redis"`
	Bootstrap Bootstrap
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "account-api")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readTimeoutSec", 5)
	v.SetDefault("app.http.writeTimeoutSec", 10)
	v.SetDefault("app.http.idleTimeoutSec", 60)
	v.SetDefault("app.http.requestTimeoutSec", 10)
	v.SetDefault("app.http.maxConcurrent", 300)
	v.SetDefault("app.http.maxBodyBytes", 1<<20)
	v.SetDefault("app.admin.host", "0.0.0.0")
	v.SetDefault("app.admin.port", 8081)

	v.SetDefault("log.level", "info")

	// 没有默认值的 key 也要登记，否则 APP_JWT_SECRET 之类的环境变量不会被 Unmarshal 读到
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.subject", "")
	v.SetDefault("jwt.accessTokenTTLMin", 25)

	v.SetDefault("password.cost", 10)
	v.SetDefault("password.minLength", 6)
	v.SetDefault("password.maxLength", 72)
	v.SetDefault("password.requireUpper", true)
	v.SetDefault("password.requireLower", true)
	v.SetDefault("password.requireDigit", true)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:account.db?_foreign_keys=on")
	v.SetDefault("db.maxOpenConns", 20)
	v.SetDefault("db.maxIdleConns", 5)
	v.SetDefault("db.connMaxLifetimeMin", 30)
	v.SetDefault("db.autoMigrate", true)
	v.SetDefault("db.logLevel", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.profileTTLSec", 60)

	v.SetDefault("bootstrap.adminEmail", "")
	v.SetDefault("bootstrap.adminUsername", "")
	v.SetDefault("bootstrap.adminPassword", "")
}

// LoadFrom 读取 YAML + APP_ 前缀环境变量（如 APP_JWT_SECRET）
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, apperr.Configuration("read config", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, apperr.Configuration("unmarshal config", err)
	}
	return &c, nil
}

func Load(path string) *Config {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	c, err := LoadFrom(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := c.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return c
}

// Validate 启动期检查，任何缺失都视为致命错误
func (c *Config) Validate() error {
	switch {
	case c.JWT.Secret == "":
		return apperr.Configuration("jwt.secret is required", nil)
	case len(c.JWT.Secret) < 32:
		return apperr.Configuration("jwt.secret must be at least 32 bytes", nil)
	case c.JWT.Issuer == "":
		return apperr.Configuration("jwt.issuer is required", nil)
	case c.JWT.Audience == "":
		return apperr.Configuration("jwt.audience is required", nil)
	case c.DB.Driver == "":
		return apperr.Configuration("db.driver is required", nil)
	case c.Password.MinLength < 1:
		return apperr.Configuration("password.minLength must be positive", nil)
	case c.Password.MaxLength > 0 && c.Password.MaxLength < c.Password.MinLength:
		return apperr.Configuration("password.maxLength is lower than password.minLength", nil)
	}
	return nil
}
