package router

import (
	"github.com/gin-gonic/gin"

	"account-api/internal/core/auth"
	"account-api/internal/domain"
	mdw "account-api/internal/transport/http/middleware"
)

// NewAdminEngine 管理端 /admin/v1，整个分组要求 admin 角色
func NewAdminEngine(d Deps) *gin.Engine {
	r := newEngine(d)

	admin := r.Group("/admin/v1")
	admin.Use(mdw.Auth(d.Authorizer, auth.Require(domain.RoleAdmin)))

	reg := &Registry{}
	reg.Register(usersModule{svc: d.Users, authz: d.Authorizer, l: d.logger()})
	reg.Register(d.Modules...)
	reg.MountAllAdmin(admin)

	return r
}
