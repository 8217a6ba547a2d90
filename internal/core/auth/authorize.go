package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"account-api/internal/core/apperr"
	"account-api/internal/domain"
)

// Principal 认证后得到的调用方身份，只解析一次，之后通过 context 传递
type Principal struct {
	ID      uint
	Role    domain.Role
	Name    string
	Email   string
	TokenID string
}

func (p Principal) IsAdmin() bool { return p.Role == domain.RoleAdmin }

// Requirement 接口声明的角色要求；roles 为空表示任何已认证身份都可以
type Requirement struct {
	roles []domain.Role
}

func Authenticated() Requirement { return Requirement{} }

func Require(roles ...domain.Role) Requirement { return Requirement{roles: roles} }

func (r Requirement) Allows(role domain.Role) bool {
	if len(r.roles) == 0 {
		return true
	}
	for _, x := range r.roles {
		if x == role {
			return true
		}
	}
	return false
}

func (r Requirement) Check(p Principal) error {
	if !r.Allows(p.Role) {
		return apperr.Forbidden("forbidden")
	}
	return nil
}

var authDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "auth_decisions_total", Help: "Authorization decisions by result"},
	[]string{"result"},
)

func init() { prometheus.MustRegister(authDecisions) }

type Authorizer struct {
	jwt *JWTer
}

func NewAuthorizer(j *JWTer) *Authorizer { return &Authorizer{jwt: j} }

// ExtractBearer 只接受 "Bearer <token>"（scheme 大小写不敏感）
func ExtractBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", apperr.Unauthorized("missing token")
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", apperr.Unauthorized("missing token")
	}
	return token, nil
}

// Authorize Unauthenticated → TokenPresented → ClaimsExtracted → Authorized | Forbidden | Unauthorized
func (a *Authorizer) Authorize(header string, req Requirement) (Principal, error) {
	p, err := a.authenticate(header)
	if err != nil {
		authDecisions.WithLabelValues("unauthorized").Inc()
		return Principal{}, err
	}
	if err := req.Check(p); err != nil {
		authDecisions.WithLabelValues("forbidden").Inc()
		return Principal{}, err
	}
	authDecisions.WithLabelValues("authorized").Inc()
	return p, nil
}

func (a *Authorizer) authenticate(header string) (Principal, error) {
	raw, err := ExtractBearer(header)
	if err != nil {
		return Principal{}, err
	}
	c, err := a.jwt.Parse(raw)
	if err != nil {
		return Principal{}, err
	}
	id, err := strconv.ParseUint(c.UID, 10, 64)
	if err != nil || id == 0 {
		return Principal{}, apperr.Unauthorized("invalid token")
	}
	role, ok := domain.ParseRole(c.Role)
	if !ok {
		return Principal{}, apperr.Unauthorized("invalid token")
	}
	return Principal{
		ID:      uint(id),
		Role:    role,
		Name:    c.Name,
		Email:   c.Email,
		TokenID: c.ID,
	}, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
