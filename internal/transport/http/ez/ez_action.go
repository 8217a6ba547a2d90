package ez

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"account-api/internal/core/apperr"
	"account-api/internal/core/auth"
	"account-api/internal/domain"
	mdw "account-api/internal/transport/http/middleware"
	resp "account-api/internal/transport/http/response"
)

// EZ 轻封装：在一个 RouterGroup 上注册 Action
type EZ struct {
	g *gin.RouterGroup
	l *zap.Logger
}

func New(g *gin.RouterGroup, l *zap.Logger) EZ {
	if l == nil {
		l = zap.NewNop()
	}
	return EZ{g: g, l: l}
}

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindURI   Binder = "uri"   // 从路径参数 :id 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param / c.PostForm 取
)

// 动作定义：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string        // "GET" | "POST" | "PUT" | "DELETE"
	Path    string        // 例："/auth/login"、"/users/id/:id"
	Binder  Binder        // 绑定方式
	URI     bool          // JSON/Query 之外再从路径参数绑定一次
	Auth    bool          // 是否要求登录（分组已走 mdw.Auth 时检查 principal）
	Roles   []domain.Role // 限定角色（可选）
	Status  int           // 成功时的 HTTP 状态，默认 200
	Handler func(c *gin.Context, in *I) (O, error)
}

// Caller 取当前调用方；Action.Auth 为 true 时一定存在
func Caller(c *gin.Context) auth.Principal {
	p, _ := mdw.PrincipalOf(c)
	return p
}

// Fail 统一错误输出：kind -> HTTP 状态 + 信封
func Fail(c *gin.Context, l *zap.Logger, err error) {
	r := resp.FromError(err)
	if r.Code == resp.CodeServerError {
		l.Error("request failed",
			zap.String("rid", c.GetString(mdw.KeyRequestID)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(resp.Status(r.Code), r)
}

func bind[I any](c *gin.Context, b Binder, uri bool, in *I) error {
	if uri || b == BindURI {
		if err := c.ShouldBindUri(in); err != nil {
			return apperr.BadRequest(err.Error())
		}
	}
	var err error
	switch b {
	case BindJSON:
		err = c.ShouldBindJSON(in)
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
	case BindQuery:
		err = c.ShouldBindQuery(in)
	default: // BindURI 已处理 / BindNone 不绑定
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest("request body too large")
		}
		return apperr.BadRequest(err.Error())
	}
	return nil
}

// 在当前 EZ 下注册动作接口
func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	req := auth.Require(a.Roles...)
	h := func(c *gin.Context) {
		// 1) 鉴权/角色
		if a.Auth || len(a.Roles) > 0 {
			p, ok := mdw.PrincipalOf(c)
			if !ok {
				Fail(c, e.l, apperr.Unauthorized("unauthorized"))
				return
			}
			if err := req.Check(p); err != nil {
				Fail(c, e.l, err)
				return
			}
		}

		// 2) 绑定入参
		var in I
		if err := bind(c, a.Binder, a.URI, &in); err != nil {
			Fail(c, e.l, err)
			return
		}

		// 3) 执行
		out, err := a.Handler(c, &in)

		// 4) 统一错误映射
		if err != nil {
			Fail(c, e.l, err)
			return
		}
		status := a.Status
		if status == 0 {
			status = http.StatusOK
		}
		c.JSON(status, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}
