package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"account-api/internal/core/apperr"
	"account-api/internal/core/auth"
	"account-api/internal/domain"
	"account-api/internal/service"
	httpez "account-api/internal/transport/http/ez"
	mdw "account-api/internal/transport/http/middleware"
)

// usersModule 用户相关接口，同时挂在用户端和管理端
type usersModule struct {
	svc   *service.UserService
	authz *auth.Authorizer
	l     *zap.Logger
}

func (m usersModule) Priority() int { return 10 }

type idURI struct {
	ID uint `uri:"id" binding:"required,min=1"`
}

type usernameURI struct {
	Username string `uri:"username" binding:"required"`
}

type listQ struct {
	Offset int    `form:"offset,default=0"`
	Limit  int    `form:"limit,default=20"`
	Q      string `form:"q"` // 按 email/username/姓名 模糊搜
}

// uri + json 两次绑定都会跑一遍校验，所以这里不加 binding 标签
type updateIn struct {
	ID uint `uri:"id" json:"-"`
	domain.UpdateRequest
}

type roleIn struct {
	ID   uint   `uri:"id" json:"-"`
	Role string `json:"role"`
}

type deleteOut struct {
	ID       uint   `json:"id"`
	FullName string `json:"fullName"`
}

func (m usersModule) list(c *gin.Context, in *listQ) (*domain.Page, error) {
	return m.svc.List(c.Request.Context(), domain.ListQuery{Offset: in.Offset, Limit: in.Limit, Q: in.Q})
}

func (m usersModule) update(c *gin.Context, in *updateIn) (*domain.Profile, error) {
	if in.Empty() {
		return nil, apperr.BadRequest("nothing to update")
	}
	return m.svc.Update(c.Request.Context(), httpez.Caller(c), in.ID, in.UpdateRequest)
}

func (m usersModule) remove(c *gin.Context, in *idURI) (deleteOut, error) {
	name, err := m.svc.Delete(c.Request.Context(), httpez.Caller(c), in.ID)
	if err != nil {
		return deleteOut{}, err
	}
	return deleteOut{ID: in.ID, FullName: name}, nil
}

// MountAPI /api/v1
func (m usersModule) MountAPI(api *gin.RouterGroup) {
	// 公共分组（无需登录）
	ezPublic := httpez.New(api, m.l)

	httpez.RegisterAction(ezPublic, httpez.Action[domain.RegisterRequest, *domain.Profile]{
		Method: http.MethodPost,
		Path:   "/auth/register",
		Binder: httpez.BindJSON,
		Status: http.StatusCreated,
		Handler: func(c *gin.Context, in *domain.RegisterRequest) (*domain.Profile, error) {
			return m.svc.Register(c.Request.Context(), *in)
		},
	})

	httpez.RegisterAction(ezPublic, httpez.Action[domain.LoginRequest, *service.LoginResult]{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *domain.LoginRequest) (*service.LoginResult, error) {
			return m.svc.Login(c.Request.Context(), *in)
		},
	})

	httpez.RegisterAction(ezPublic, httpez.Action[usernameURI, *domain.Profile]{
		Method: http.MethodGet,
		Path:   "/users/name/:username",
		Binder: httpez.BindURI,
		Handler: func(c *gin.Context, in *usernameURI) (*domain.Profile, error) {
			return m.svc.GetByUsername(c.Request.Context(), in.Username)
		},
	})

	// 鉴权分组（需要登录）
	authUser := api.Group("")
	authUser.Use(mdw.Auth(m.authz, auth.Authenticated()))
	ezAuth := httpez.New(authUser, m.l)

	httpez.RegisterAction(ezAuth, httpez.Action[struct{}, *domain.Profile]{
		Method: http.MethodGet,
		Path:   "/users/me",
		Binder: httpez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Profile, error) {
			return m.svc.Get(c.Request.Context(), httpez.Caller(c).ID)
		},
	})

	httpez.RegisterAction(ezAuth, httpez.Action[domain.UpdateRequest, *domain.Profile]{
		Method: http.MethodPut,
		Path:   "/users/me",
		Binder: httpez.BindJSON,
		Auth:   true,
		Handler: func(c *gin.Context, in *domain.UpdateRequest) (*domain.Profile, error) {
			me := httpez.Caller(c)
			return m.update(c, &updateIn{ID: me.ID, UpdateRequest: *in})
		},
	})

	httpez.RegisterAction(ezAuth, httpez.Action[listQ, *domain.Page]{
		Method:  http.MethodGet,
		Path:    "/users",
		Binder:  httpez.BindQuery,
		Auth:    true,
		Handler: m.list,
	})

	httpez.RegisterAction(ezAuth, httpez.Action[idURI, *domain.Profile]{
		Method: http.MethodGet,
		Path:   "/users/id/:id",
		Binder: httpez.BindURI,
		Auth:   true,
		Handler: func(c *gin.Context, in *idURI) (*domain.Profile, error) {
			return m.svc.Get(c.Request.Context(), in.ID)
		},
	})

	httpez.RegisterAction(ezAuth, httpez.Action[updateIn, *domain.Profile]{
		Method:  http.MethodPut,
		Path:    "/users/id/:id",
		Binder:  httpez.BindJSON,
		URI:     true,
		Auth:    true,
		Handler: m.update,
	})

	httpez.RegisterAction(ezAuth, httpez.Action[idURI, deleteOut]{
		Method:  http.MethodDelete,
		Path:    "/users/id/:id",
		Binder:  httpez.BindURI,
		Auth:    true,
		Handler: m.remove,
	})
}

// MountAdmin /admin/v1，分组已要求 admin 角色
func (m usersModule) MountAdmin(admin *gin.RouterGroup) {
	ezAdmin := httpez.New(admin, m.l)
	roles := []domain.Role{domain.RoleAdmin}

	// --- GET /admin/v1/users  用户列表 ---
	httpez.RegisterAction(ezAdmin, httpez.Action[listQ, *domain.Page]{
		Method:  http.MethodGet,
		Path:    "/users",
		Binder:  httpez.BindQuery,
		Roles:   roles,
		Handler: m.list,
	})

	httpez.RegisterAction(ezAdmin, httpez.Action[idURI, *domain.Profile]{
		Method: http.MethodGet,
		Path:   "/users/:id",
		Binder: httpez.BindURI,
		Roles:  roles,
		Handler: func(c *gin.Context, in *idURI) (*domain.Profile, error) {
			return m.svc.Get(c.Request.Context(), in.ID)
		},
	})

	httpez.RegisterAction(ezAdmin, httpez.Action[updateIn, *domain.Profile]{
		Method:  http.MethodPut,
		Path:    "/users/:id",
		Binder:  httpez.BindJSON,
		URI:     true,
		Roles:   roles,
		Handler: m.update,
	})

	// --- PUT /admin/v1/users/:id/role  修改角色 ---
	httpez.RegisterAction(ezAdmin, httpez.Action[roleIn, *domain.Profile]{
		Method: http.MethodPut,
		Path:   "/users/:id/role",
		Binder: httpez.BindJSON,
		URI:    true,
		Roles:  roles,
		Handler: func(c *gin.Context, in *roleIn) (*domain.Profile, error) {
			role, ok := domain.ParseRole(in.Role)
			if !ok {
				return nil, apperr.BadRequest("unknown role " + in.Role)
			}
			return m.svc.ChangeRole(c.Request.Context(), httpez.Caller(c), in.ID, role)
		},
	})

	// --- DELETE /admin/v1/users/:id  硬删除 ---
	httpez.RegisterAction(ezAdmin, httpez.Action[idURI, deleteOut]{
		Method:  http.MethodDelete,
		Path:    "/users/:id",
		Binder:  httpez.BindURI,
		Roles:   roles,
		Handler: m.remove,
	})
}
