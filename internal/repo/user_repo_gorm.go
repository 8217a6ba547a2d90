package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"account-api/internal/core/apperr"
	"account-api/internal/domain"
	"account-api/internal/feature/user"
)

type UserRepo struct{ db *gorm.DB }

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&user.UserModel{})
}

func (r *UserRepo) first(ctx context.Context, query string, arg any) (*domain.User, error) {
	var m user.UserModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("query user", err)
	}
	return m.ToDomain(), nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *UserRepo) Insert(ctx context.Context, u *domain.User) (*domain.User, error) {
	m := user.FromDomain(u)
	m.ID = 0 // 由存储分配
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, translate("insert user", err)
	}
	return m.ToDomain(), nil
}

func (r *UserRepo) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	m := user.FromDomain(u)
	res := r.db.WithContext(ctx).Model(&user.UserModel{ID: m.ID}).Select(
		"Email", "Username", "PasswordHash", "FirstName", "LastName", "Role",
	).Updates(m)
	if res.Error != nil {
		return nil, translate("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user not found")
	}
	return r.GetByID(ctx, m.ID)
}

// Delete 硬删除
func (r *UserRepo) Delete(ctx context.Context, u *domain.User) error {
	res := r.db.WithContext(ctx).Unscoped().Delete(&user.UserModel{}, u.ID)
	if res.Error != nil {
		return apperr.Internal("delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (r *UserRepo) List(ctx context.Context, q domain.ListQuery) ([]domain.User, int64, error) {
	filter := func(tx *gorm.DB) *gorm.DB {
		if s := strings.TrimSpace(q.Q); s != "" {
			like := "%" + s + "%"
			tx = tx.Where("email LIKE ? OR username LIKE ? OR first_name LIKE ? OR last_name LIKE ?", like, like, like, like)
		}
		return tx
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&user.UserModel{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal("count users", err)
	}
	var ms []user.UserModel
	err := r.db.WithContext(ctx).Scopes(filter).Order("id ASC").Offset(q.Offset).Limit(q.Limit).Find(&ms).Error
	if err != nil {
		return nil, 0, apperr.Internal("list users", err)
	}
	out := make([]domain.User, 0, len(ms))
	for i := range ms {
		out = append(out, *ms[i].ToDomain())
	}
	return out, total, nil
}

func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDupKey(err) {
		return apperr.Wrap(apperr.KindConflict, "email or username belongs to another user", err)
	}
	return apperr.Internal(op, err)
}

// isDupKey 兜底：驱动没有实现错误翻译时按错误信息判断
func isDupKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation") ||
		strings.Contains(msg, "duplicate key")
}
