package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-api/internal/core/apperr"
	"account-api/internal/core/database"
	"account-api/internal/domain"
)

func newTestRepo(t *testing.T) *UserRepo {
	t.Helper()
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	r := NewUserRepo(db)
	require.NoError(t, r.Migrate(context.Background()))
	return r
}

func sample(email, username string) *domain.User {
	return &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: "$2a$04$hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Role:         domain.RoleUser,
	}
}

func TestUserRepo_InsertAndLookup(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	u, err := r.Insert(ctx, sample("a@b.com", "abcdef"))
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byID, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "a@b.com", byID.Email)
	assert.Equal(t, "$2a$04$hash", byID.PasswordHash)

	byEmail, err := r.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	byName, err := r.GetByUsername(ctx, "abcdef")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, u.ID, byName.ID)

	missing, err := r.GetByEmail(ctx, "nobody@b.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepo_InsertIgnoresCallerID(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	in := sample("a@b.com", "abcdef")
	in.ID = 999
	u, err := r.Insert(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, uint(999), u.ID)
}

func TestUserRepo_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	_, err := r.Insert(ctx, sample("a@b.com", "abcdef"))
	require.NoError(t, err)

	_, err = r.Insert(ctx, sample("a@b.com", "other1"))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = r.Insert(ctx, sample("c@d.com", "abcdef"))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUserRepo_Update(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	u, err := r.Insert(ctx, sample("a@b.com", "abcdef"))
	require.NoError(t, err)
	other, err := r.Insert(ctx, sample("c@d.com", "ghijkl"))
	require.NoError(t, err)

	u.FirstName = "Grace"
	u.Role = domain.RoleAdmin
	got, err := r.Update(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.FirstName)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, "a@b.com", got.Email)

	other.Email = "a@b.com"
	_, err = r.Update(ctx, other)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	ghost := sample("x@y.com", "ghost1")
	ghost.ID = 12345
	_, err = r.Update(ctx, ghost)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserRepo_DeleteIsHard(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	u, err := r.Insert(ctx, sample("a@b.com", "abcdef"))
	require.NoError(t, err)
	require.NoError(t, r.Delete(ctx, u))

	got, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// 硬删除之后 email 可以重新注册
	again, err := r.Insert(ctx, sample("a@b.com", "abcdef"))
	require.NoError(t, err)
	assert.NotEqual(t, u.ID, again.ID)

	assert.ErrorIs(t, r.Delete(ctx, u), apperr.ErrNotFound)
}

func TestUserRepo_List(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	for i := 0; i < 5; i++ {
		_, err := r.Insert(ctx, sample(fmt.Sprintf("u%d@b.com", i), fmt.Sprintf("user-%02d", i)))
		require.NoError(t, err)
	}
	special := sample("grace@navy.mil", "grace-h")
	special.FirstName = "Grace"
	_, err := r.Insert(ctx, special)
	require.NoError(t, err)

	items, total, err := r.List(ctx, domain.ListQuery{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	require.Len(t, items, 2)
	assert.Equal(t, "u1@b.com", items[0].Email)

	items, total, err = r.List(ctx, domain.ListQuery{Limit: 10, Q: "grace"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "grace-h", items[0].Username)
}
