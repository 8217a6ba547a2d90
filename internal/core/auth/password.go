package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"account-api/internal/core/apperr"
)

// bcrypt 只使用前 72 字节
const bcryptMaxBytes = 72

// PasswordPolicy 密码策略，来自配置 password.*
type PasswordPolicy struct {
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:    6,
		MaxLength:    bcryptMaxBytes,
		RequireUpper: true,
		RequireLower: true,
		RequireDigit: true,
	}
}

type PasswordHasher struct {
	cost   int
	policy PasswordPolicy
}

func NewPasswordHasher(cost int, policy PasswordPolicy) *PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	cost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	if policy.MaxLength <= 0 || policy.MaxLength > bcryptMaxBytes {
		policy.MaxLength = bcryptMaxBytes
	}
	return &PasswordHasher{cost: cost, policy: policy}
}

func (h *PasswordHasher) Policy() PasswordPolicy { return h.policy }

// Hash 摘要内含 salt 和 cost，同一输入两次结果不同
func (h *PasswordHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", apperr.Validation("password cannot be empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apperr.Validation(fmt.Sprintf("password cannot exceed %d bytes", bcryptMaxBytes))
	}
	if err != nil {
		return "", apperr.Internal("hash password", err)
	}
	return string(b), nil
}

// Verify 常量时间比较；摘要格式错误直接返回 false
func (h *PasswordHasher) Verify(secret, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// Validate 按策略逐条检查，失败时返回包含全部规则状态的 ValidationError
func (h *PasswordHasher) Validate(secret string) error {
	p := h.policy
	n := len([]rune(secret))
	details := []apperr.Detail{
		{Message: fmt.Sprintf("Password must be at least %d characters long.", p.MinLength), Valid: n >= p.MinLength && secret != ""},
		{Message: fmt.Sprintf("Password cannot exceed %d bytes.", p.MaxLength), Valid: len(secret) <= p.MaxLength},
	}
	if p.RequireUpper {
		details = append(details, apperr.Detail{Message: "Password must contain an uppercase letter.", Valid: strings.ContainsFunc(secret, unicode.IsUpper)})
	}
	if p.RequireLower {
		details = append(details, apperr.Detail{Message: "Password must contain a lowercase letter.", Valid: strings.ContainsFunc(secret, unicode.IsLower)})
	}
	if p.RequireDigit {
		details = append(details, apperr.Detail{Message: "Password must contain a digit.", Valid: strings.ContainsFunc(secret, unicode.IsDigit)})
	}
	if p.RequireSpecial {
		details = append(details, apperr.Detail{Message: "Password must contain a special character.", Valid: strings.ContainsFunc(secret, isSpecial)})
	}
	for _, d := range details {
		if !d.Valid {
			return apperr.Validation("Invalid password.", details...)
		}
	}
	return nil
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}
