package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"account-api/internal/core/apperr"
	"account-api/internal/core/auth"
	"account-api/internal/core/cache"
	"account-api/internal/domain"
	"account-api/pkg/validate"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type UserService struct {
	repo   domain.UserRepository
	hasher *auth.PasswordHasher
	jwt    *auth.JWTer
	cache  *cache.Cache // nil 时不缓存
	ttl    time.Duration
	log    *zap.Logger
}

type Option func(*UserService)

// WithCache 开启 profile 读缓存
func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *UserService) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *UserService) {
		if l != nil {
			s.log = l
		}
	}
}

func NewUserService(repo domain.UserRepository, hasher *auth.PasswordHasher, jwter *auth.JWTer, opts ...Option) *UserService {
	s := &UserService{
		repo:   repo,
		hasher: hasher,
		jwt:    jwter,
		ttl:    5 * time.Minute,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoginResult 登录成功返回 token 和当前用户
type LoginResult struct {
	auth.Token
	User domain.Profile `json:"user"`
}

func (s *UserService) Register(ctx context.Context, in domain.RegisterRequest) (*domain.Profile, error) {
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)

	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameFree(ctx, username); err != nil {
		return nil, err
	}

	if r := validate.Email(email); !r.Valid() {
		return nil, r.Err()
	}
	if r := validate.Username(username); !r.Valid() {
		return nil, r.Err()
	}
	if err := s.hasher.Validate(in.Password); err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	// 并发注册时最终由唯一索引兜底，Insert 会返回 Conflict
	u, err := s.repo.Insert(ctx, &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: digest,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         domain.RoleUser,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("registered user", zap.Uint("id", u.ID), zap.String("username", u.Username))
	p := u.Profile()
	return &p, nil
}

func (s *UserService) Login(ctx context.Context, in domain.LoginRequest) (*LoginResult, error) {
	email := strings.TrimSpace(in.Email)
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound(fmt.Sprintf("There is no user account associated with the email address '%s'.", email))
	}
	if !s.hasher.Verify(in.Password, u.PasswordHash) {
		return nil, apperr.BadRequest("Wrong email or password.")
	}
	tok, err := s.jwt.Issue(u)
	if err != nil {
		return nil, err
	}
	s.log.Info("user logged in", zap.Uint("id", u.ID), zap.String("username", u.Username))
	return &LoginResult{Token: tok, User: u.Profile()}, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*domain.Profile, error) {
	return cache.GetOrLoadJSON(s.cache, ctx, idKey(id), s.ttl, func(ctx context.Context) (*domain.Profile, error) {
		u, err := s.mustGet(ctx, id)
		if err != nil {
			return nil, err
		}
		p := u.Profile()
		return &p, nil
	})
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	username = strings.TrimSpace(username)
	return cache.GetOrLoadJSON(s.cache, ctx, usernameKey(username), s.ttl, func(ctx context.Context) (*domain.Profile, error) {
		u, err := s.repo.GetByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, apperr.NotFound(fmt.Sprintf("There is no user account associated with the username '%s'.", username))
		}
		p := u.Profile()
		return &p, nil
	})
}

func (s *UserService) List(ctx context.Context, q domain.ListQuery) (*domain.Page, error) {
	if q.Offset < 0 {
		q.Offset = 0
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultPageSize
	case q.Limit > MaxPageSize:
		q.Limit = MaxPageSize
	}
	users, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	page := &domain.Page{Total: total, Items: make([]domain.Profile, 0, len(users))}
	for i := range users {
		page.Items = append(page.Items, users[i].Profile())
	}
	return page, nil
}

func (s *UserService) Update(ctx context.Context, caller auth.Principal, id uint, in domain.UpdateRequest) (*domain.Profile, error) {
	if caller.ID != id && !caller.IsAdmin() {
		return nil, apperr.Forbidden("You can only update your own account.")
	}
	u, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	oldUsername := u.Username

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != u.Email {
			if err := s.ensureEmailFree(ctx, email); err != nil {
				return nil, err
			}
			if r := validate.Email(email); !r.Valid() {
				return nil, r.Err()
			}
			u.Email = email
		}
	}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username != u.Username {
			if err := s.ensureUsernameFree(ctx, username); err != nil {
				return nil, err
			}
			if r := validate.Username(username); !r.Valid() {
				return nil, r.Err()
			}
			u.Username = username
		}
	}
	if in.Password != nil {
		if err := s.hasher.Validate(*in.Password); err != nil {
			return nil, err
		}
		digest, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = digest
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}

	updated, err := s.repo.Update(ctx, u)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, updated.ID, oldUsername, updated.Username)
	s.log.Info("updated user", zap.Uint("id", updated.ID), zap.Uint("by", caller.ID))
	p := updated.Profile()
	return &p, nil
}

func (s *UserService) ChangeRole(ctx context.Context, caller auth.Principal, id uint, role domain.Role) (*domain.Profile, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Forbidden("Only administrators can change roles.")
	}
	if !role.Valid() {
		return nil, apperr.BadRequest(fmt.Sprintf("Unknown role '%s'.", role))
	}
	u, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.ID == caller.ID {
		return nil, apperr.BadRequest("You cannot change your own role.")
	}
	if u.Role == role {
		p := u.Profile()
		return &p, nil
	}
	u.Role = role
	updated, err := s.repo.Update(ctx, u)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, updated.ID, updated.Username)
	s.log.Info("changed role", zap.Uint("id", updated.ID), zap.String("role", string(role)), zap.Uint("by", caller.ID))
	p := updated.Profile()
	return &p, nil
}

// Delete 任何已登录用户都可以删除他人，只禁止删除自己；返回被删除用户的全名
func (s *UserService) Delete(ctx context.Context, caller auth.Principal, id uint) (string, error) {
	u, err := s.mustGet(ctx, id)
	if err != nil {
		return "", err
	}
	if u.ID == caller.ID {
		return "", apperr.BadRequest("You cannot delete your own account.")
	}
	if err := s.repo.Delete(ctx, u); err != nil {
		return "", err
	}
	s.evict(ctx, u.ID, u.Username)
	s.log.Info("deleted user", zap.Uint("id", u.ID), zap.String("username", u.Username), zap.Uint("by", caller.ID))
	return u.FullName(), nil
}

// EnsureAdmin 首次启动时创建管理员；email 已存在则不做任何事
func (s *UserService) EnsureAdmin(ctx context.Context, email, username, password string) (*domain.Profile, bool, error) {
	email = strings.TrimSpace(email)
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		p := existing.Profile()
		return &p, false, nil
	}
	created, err := s.Register(ctx, domain.RegisterRequest{
		Email:     email,
		Username:  username,
		Password:  password,
		FirstName: "System",
		LastName:  "Administrator",
	})
	if err != nil {
		return nil, false, err
	}
	u, err := s.mustGet(ctx, created.ID)
	if err != nil {
		return nil, false, err
	}
	u.Role = domain.RoleAdmin
	updated, err := s.repo.Update(ctx, u)
	if err != nil {
		return nil, false, err
	}
	s.log.Info("bootstrap admin created", zap.Uint("id", updated.ID), zap.String("username", updated.Username))
	p := updated.Profile()
	return &p, true, nil
}

func (s *UserService) mustGet(ctx context.Context, id uint) (*domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound(fmt.Sprintf("There is no user account associated with the id '%d'.", id))
	}
	return u, nil
}

func (s *UserService) ensureEmailFree(ctx context.Context, email string) error {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u != nil {
		return apperr.Conflict(fmt.Sprintf("Email %s belongs to another user.", email))
	}
	return nil
}

func (s *UserService) ensureUsernameFree(ctx context.Context, username string) error {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if u != nil {
		return apperr.Conflict(fmt.Sprintf("Username %s belongs to another user.", username))
	}
	return nil
}

func (s *UserService) evict(ctx context.Context, id uint, usernames ...string) {
	keys := []string{idKey(id)}
	for _, n := range usernames {
		keys = append(keys, usernameKey(n))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("cache evict failed", zap.Uint("id", id), zap.Error(err))
	}
}

func idKey(id uint) string { return fmt.Sprintf("user:%d", id) }
func usernameKey(n string) string { return "username:" + n }
