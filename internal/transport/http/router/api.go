package router

import (
	"github.com/gin-gonic/gin"
)

// NewAPIEngine 用户端 /api/v1
func NewAPIEngine(d Deps) *gin.Engine {
	r := newEngine(d)

	// 前缀
	api := r.Group("/api/v1")

	reg := &Registry{}
	reg.Register(usersModule{svc: d.Users, authz: d.Authorizer, l: d.logger()})
	reg.Register(d.Modules...)
	reg.MountAllAPI(api)

	return r
}
