package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"account-api/internal/core/apperr"
	"account-api/internal/core/auth"
	"account-api/internal/core/cache"
	"account-api/internal/core/database"
	"account-api/internal/domain"
	"account-api/internal/repo"
	"account-api/internal/service"
)

type fixture struct {
	svc  *service.UserService
	repo *repo.UserRepo
	jwt  *auth.JWTer
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	r := repo.NewUserRepo(db)
	require.NoError(t, r.Migrate(context.Background()))

	j, err := auth.NewJWTer(auth.TokenConfig{
		Secret:   "0123456789abcdef0123456789abcdef",
		Issuer:   "account-api",
		Audience: "account-clients",
	})
	require.NoError(t, err)

	h := auth.NewPasswordHasher(bcrypt.MinCost, auth.DefaultPasswordPolicy())
	return &fixture{svc: service.NewUserService(r, h, j, opts...), repo: r, jwt: j}
}

func register(t *testing.T, f *fixture, email, username string) *domain.Profile {
	t.Helper()
	p, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		Email:     email,
		Username:  username,
		Password:  "Secr3t!",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return p
}

func principal(p *domain.Profile) auth.Principal {
	return auth.Principal{ID: p.ID, Role: p.Role, Email: p.Email}
}

func admin(t *testing.T, f *fixture, email, username string) auth.Principal {
	t.Helper()
	p := register(t, f, email, username)
	u, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	u.Role = domain.RoleAdmin
	_, err = f.repo.Update(context.Background(), u)
	require.NoError(t, err)
	return auth.Principal{ID: p.ID, Role: domain.RoleAdmin, Email: p.Email}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := register(t, f, "a@b.com", "abcdef")
	assert.NotZero(t, p.ID)
	assert.Equal(t, domain.RoleUser, p.Role)

	stored, err := f.repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Secr3t!", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Secr3t!")))

	t.Run("email conflict is reported first", func(t *testing.T) {
		_, err := f.svc.Register(ctx, domain.RegisterRequest{Email: "a@b.com", Username: "abcdef", Password: "Secr3t!"})
		require.ErrorIs(t, err, apperr.ErrConflict)
		assert.Contains(t, err.Error(), "Email a@b.com belongs to another user.")
	})

	t.Run("username conflict", func(t *testing.T) {
		_, err := f.svc.Register(ctx, domain.RegisterRequest{Email: "c@d.com", Username: "abcdef", Password: "Secr3t!"})
		require.ErrorIs(t, err, apperr.ErrConflict)
		assert.Contains(t, err.Error(), "Username abcdef belongs to another user.")
	})

	t.Run("invalid fields", func(t *testing.T) {
		cases := []struct {
			name string
			req  domain.RegisterRequest
		}{
			{"email", domain.RegisterRequest{Email: "foo@bar", Username: "newuser", Password: "Secr3t!"}},
			{"username", domain.RegisterRequest{Email: "n@b.com", Username: "AB", Password: "Secr3t!"}},
			{"password", domain.RegisterRequest{Email: "n@b.com", Username: "newuser", Password: "short"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.svc.Register(ctx, tc.req)
				require.ErrorIs(t, err, apperr.ErrValidation)
				assert.NotEmpty(t, apperr.DetailsOf(err))
			})
		}

		_, total, err := f.repo.List(ctx, domain.ListQuery{Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("username rules are all reported", func(t *testing.T) {
		_, err := f.svc.Register(ctx, domain.RegisterRequest{Email: "n@b.com", Username: "AB", Password: "Secr3t!"})
		details := apperr.DetailsOf(err)
		require.Len(t, details, 5)
		got := make([]bool, 0, len(details))
		for _, d := range details {
			got = append(got, d.Valid)
		}
		assert.Equal(t, []bool{true, true, false, true, false}, got)
	})
}

func TestRegister_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), domain.RegisterRequest{
				Email: "a@b.com", Username: "abcdef", Password: "Secr3t!",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperr.KindOf(err) == apperr.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := register(t, f, "a@b.com", "abcdef")

	res, err := f.svc.Login(ctx, domain.LoginRequest{Email: "a@b.com", Password: "Secr3t!"})
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.User.ID)

	claims, err := f.jwt.Parse(res.Value)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(p.ID), claims.UID)
	assert.Equal(t, "Ada Lovelace", claims.Name)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "user", claims.Role)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: "a@b.com", Password: "wrong"})
	require.ErrorIs(t, err, apperr.ErrBadRequest)
	assert.Contains(t, err.Error(), "Wrong email or password.")

	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: "nobody@b.com", Password: "Secr3t!"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := register(t, f, "a@b.com", "abcdef")

	got, err := f.svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", got.Username)

	got, err = f.svc.GetByUsername(ctx, "abcdef")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.Get(ctx, p.ID+100)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.GetByUsername(ctx, "ghost1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestList_ClampsPaging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		register(t, f, fmt.Sprintf("u%d@b.com", i), fmt.Sprintf("user-%02d", i))
	}

	page, err := f.svc.List(ctx, domain.ListQuery{Offset: -5, Limit: 0})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 3)

	page, err = f.svc.List(ctx, domain.ListQuery{Limit: 1000, Q: "user-01"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func strp(s string) *string { return &s }

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := register(t, f, "a@b.com", "abcdef")
	bob := register(t, f, "c@d.com", "bobbyb")
	root := admin(t, f, "root@x.com", "rootadm")

	t.Run("self update merges supplied fields", func(t *testing.T) {
		got, err := f.svc.Update(ctx, principal(alice), alice.ID, domain.UpdateRequest{FirstName: strp("Grace")})
		require.NoError(t, err)
		assert.Equal(t, "Grace", got.FirstName)
		assert.Equal(t, "Lovelace", got.LastName)
		assert.Equal(t, "a@b.com", got.Email)
	})

	t.Run("unchanged email skips uniqueness check", func(t *testing.T) {
		_, err := f.svc.Update(ctx, principal(alice), alice.ID, domain.UpdateRequest{Email: strp("a@b.com")})
		assert.NoError(t, err)
	})

	t.Run("taken email and username", func(t *testing.T) {
		_, err := f.svc.Update(ctx, principal(alice), alice.ID, domain.UpdateRequest{Email: strp("c@d.com")})
		assert.ErrorIs(t, err, apperr.ErrConflict)
		_, err = f.svc.Update(ctx, principal(alice), alice.ID, domain.UpdateRequest{Username: strp("bobbyb")})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("changed fields are validated", func(t *testing.T) {
		_, err := f.svc.Update(ctx, principal(alice), alice.ID, domain.UpdateRequest{Username: strp("Bad Name")})
		assert.ErrorIs(t, err, apperr.ErrValidation)
		_, err = f.svc.Update(ctx, principal(alice), alice.ID, domain.UpdateRequest{Password: strp("weak")})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("new password is hashed", func(t *testing.T) {
		_, err := f.svc.Update(ctx, principal(alice), alice.ID, domain.UpdateRequest{Password: strp("N3wSecret")})
		require.NoError(t, err)
		_, err = f.svc.Login(ctx, domain.LoginRequest{Email: "a@b.com", Password: "N3wSecret"})
		assert.NoError(t, err)
	})

	t.Run("other user is forbidden", func(t *testing.T) {
		_, err := f.svc.Update(ctx, principal(bob), alice.ID, domain.UpdateRequest{FirstName: strp("Hacked")})
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("admin may update anyone", func(t *testing.T) {
		got, err := f.svc.Update(ctx, root, bob.ID, domain.UpdateRequest{LastName: strp("Builder")})
		require.NoError(t, err)
		assert.Equal(t, "Builder", got.LastName)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := f.svc.Update(ctx, root, 9999, domain.UpdateRequest{LastName: strp("X")})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestChangeRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := register(t, f, "a@b.com", "abcdef")
	root := admin(t, f, "root@x.com", "rootadm")

	got, err := f.svc.ChangeRole(ctx, root, alice.ID, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)

	_, err = f.svc.ChangeRole(ctx, root, root.ID, domain.RoleUser)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = f.svc.ChangeRole(ctx, root, alice.ID, domain.Role("owner"))
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = f.svc.ChangeRole(ctx, auth.Principal{ID: alice.ID, Role: domain.RoleUser}, root.ID, domain.RoleUser)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := register(t, f, "a@b.com", "abcdef")
	bob := register(t, f, "c@d.com", "bobbyb")
	root := admin(t, f, "root@x.com", "rootadm")

	t.Run("self delete is rejected and record remains", func(t *testing.T) {
		_, err := f.svc.Delete(ctx, principal(alice), alice.ID)
		require.ErrorIs(t, err, apperr.ErrBadRequest)

		u, err := f.repo.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.NotNil(t, u)
	})

	carol := register(t, f, "e@f.com", "carolc")

	t.Run("non admin deletes another user", func(t *testing.T) {
		name, err := f.svc.Delete(ctx, principal(alice), carol.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", name)

		u, err := f.repo.GetByID(ctx, carol.ID)
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("admin delete returns full name", func(t *testing.T) {
		name, err := f.svc.Delete(ctx, root, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", name)

		_, err = f.svc.Get(ctx, bob.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := f.svc.Delete(ctx, root, bob.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestProfileCacheIsEvicted(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := cache.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })

	f := newFixture(t, service.WithCache(c, time.Minute))
	alice := register(t, f, "a@b.com", "abcdef")

	_, err := f.svc.Get(ctx, alice.ID)
	require.NoError(t, err)
	_, err = f.svc.GetByUsername(ctx, "abcdef")
	require.NoError(t, err)
	require.True(t, mr.Exists(fmt.Sprintf("account:user:%d", alice.ID)))
	require.True(t, mr.Exists("account:username:abcdef"))

	got, err := f.svc.Update(ctx, principal(alice), alice.ID, domain.UpdateRequest{Username: strp("alice-1")})
	require.NoError(t, err)
	assert.Equal(t, "alice-1", got.Username)
	assert.False(t, mr.Exists(fmt.Sprintf("account:user:%d", alice.ID)))
	assert.False(t, mr.Exists("account:username:abcdef"))

	fresh, err := f.svc.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice-1", fresh.Username)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, created, err := f.svc.EnsureAdmin(ctx, "root@x.com", "rootadm", "Adm1nLocal")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoleAdmin, p.Role)

	again, created, err := f.svc.EnsureAdmin(ctx, "root@x.com", "rootadm", "Adm1nLocal")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, p.ID, again.ID)

	_, _, err = f.svc.EnsureAdmin(ctx, "other@x.com", "rootadm", "weak")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}
