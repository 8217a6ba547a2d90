package response

import (
	"errors"

	"account-api/internal/core/apperr"
)

type Resp struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

// New 构造函数（保证 data 不为 null）
func New(code int, msg string, data interface{}) Resp {
	if data == nil {
		data = struct{}{}
	}
	return Resp{Code: code, Msg: msg, Data: data}
}

// OK 成功响应
func OK(data interface{}) Resp {
	return New(CodeOK, CodeMsgMap[CodeOK], data)
}

// Error 失败响应（可以传自定义 msg 覆盖默认）
func Error(code int, customMsg string) Resp {
	msg := CodeMsgMap[code]
	if customMsg != "" {
		msg = customMsg
	}
	return New(code, msg, struct{}{})
}

// Rules 校验失败时放在 data 里的逐条规则
type Rules struct {
	Rules []apperr.Detail `json:"rules"`
}

// CodeOf apperr 分类 -> 业务码
func CodeOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindConflict:
		return CodeConflict
	case apperr.KindNotFound:
		return CodeNotFound
	case apperr.KindBadRequest, apperr.KindValidation:
		return CodeBadRequest
	case apperr.KindUnauthorized:
		return CodeUnauthorized
	case apperr.KindForbidden:
		return CodeForbidden
	default:
		return CodeServerError
	}
}

// FromError 把 error 转成响应体；500 不回显内部错误
func FromError(err error) Resp {
	code := CodeOf(err)
	if code == CodeServerError {
		return Error(code, "")
	}
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Msg != "" {
		msg = ae.Msg
	}
	if details := apperr.DetailsOf(err); len(details) > 0 {
		return New(code, msg, Rules{Rules: details})
	}
	return Error(code, msg)
}
