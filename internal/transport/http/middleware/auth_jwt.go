package middleware

import (
	"github.com/gin-gonic/gin"

	"account-api/internal/core/auth"
	resp "account-api/internal/transport/http/response"
)

const KeyPrincipal = "principal"

// Auth 校验 Bearer token 并按 req 判定角色；通过后 principal 同时放进 gin ctx 和 request ctx
func Auth(a *auth.Authorizer, req auth.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := a.Authorize(c.GetHeader("Authorization"), req)
		if err != nil {
			r := resp.FromError(err)
			c.AbortWithStatusJSON(resp.Status(r.Code), r)
			return
		}
		c.Set(KeyPrincipal, p)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// PrincipalOf 取当前请求的调用方
func PrincipalOf(c *gin.Context) (auth.Principal, bool) {
	if v, ok := c.Get(KeyPrincipal); ok {
		if p, ok := v.(auth.Principal); ok {
			return p, true
		}
	}
	return auth.PrincipalFrom(c.Request.Context())
}
