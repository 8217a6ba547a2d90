package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"account-api/internal/core/apperr"
	"account-api/internal/domain"
)

// DefaultTokenTTL 会话有效期，不续期、不可提前吊销
const DefaultTokenTTL = 25 * time.Minute

type Claims struct {
	UID   string `json:"sid"`
	Name  string `json:"unique_name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Subject  string // 为空时使用 Issuer
	TTL      time.Duration
}

type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	ID        string    `json:"-"`
}

type JWTer struct {
	secret   []byte
	issuer   string
	audience string
	subject  string
	ttl      time.Duration

	// Now 可在测试中替换
	Now func() time.Time
}

// NewJWTer 缺少 secret/issuer/audience 属于启动期配置错误，调用方应直接退出
func NewJWTer(c TokenConfig) (*JWTer, error) {
	switch {
	case c.Secret == "":
		return nil, apperr.Configuration("jwt.secret is required", nil)
	case c.Issuer == "":
		return nil, apperr.Configuration("jwt.issuer is required", nil)
	case c.Audience == "":
		return nil, apperr.Configuration("jwt.audience is required", nil)
	}
	if c.Subject == "" {
		c.Subject = c.Issuer
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTokenTTL
	}
	return &JWTer{
		secret:   []byte(c.Secret),
		issuer:   c.Issuer,
		audience: c.Audience,
		subject:  c.Subject,
		ttl:      c.TTL,
		Now:      time.Now,
	}, nil
}

func (j *JWTer) TTL() time.Duration { return j.ttl }

func (j *JWTer) Issue(u *domain.User) (Token, error) {
	// 签发时刻按 iat 的精度（秒）截断，exp 恰好是 iat + ttl
	now := j.Now().Truncate(jwt.TimePrecision)
	jti := uuid.NewString()
	claims := Claims{
		UID:   strconv.FormatUint(uint64(u.ID), 10),
		Name:  u.FullName(),
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   j.subject,
			Audience:  jwt.ClaimStrings{j.audience},
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	s, err := token.SignedString(j.secret)
	if err != nil {
		return Token{}, apperr.Internal("sign token", err)
	}
	return Token{Value: s, ExpiresAt: claims.ExpiresAt.Time, ID: jti}, nil
}

// Parse 校验签名算法、签名、过期时间（无 leeway）、issuer、audience
func (j *JWTer) Parse(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.KindUnauthorized, "token expired", err)
		}
		return nil, apperr.Wrap(apperr.KindUnauthorized, "invalid token", err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, apperr.Unauthorized("invalid token")
	}
	return c, nil
}
