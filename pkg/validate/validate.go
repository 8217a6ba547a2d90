// Package validate 身份字段（email / username）的校验。
//
// 所有规则都会被求值，Result 里保留每一条规则的通过/失败状态，
// 客户端可以据此逐条展示，而不是只看到第一条错误。
package validate

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"account-api/internal/core/apperr"
)

const (
	UsernameMinLen = 6
	UsernameMaxLen = 40
)

type Rule struct {
	Message string `json:"message"`
	Valid   bool   `json:"valid"`
}

type Result struct {
	Field   string
	Summary string
	Rules   []Rule
}

func (r Result) Valid() bool {
	for _, rule := range r.Rules {
		if !rule.Valid {
			return false
		}
	}
	return true
}

func (r Result) Failed() []Rule {
	var out []Rule
	for _, rule := range r.Rules {
		if !rule.Valid {
			out = append(out, rule)
		}
	}
	return out
}

// Err 全部通过返回 nil；否则返回带全部规则状态的 ValidationError
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	details := make([]apperr.Detail, 0, len(r.Rules))
	for _, rule := range r.Rules {
		details = append(details, apperr.Detail{Message: rule.Message, Valid: rule.Valid})
	}
	return apperr.Validation(r.Summary, details...)
}

// String 供客户端直接展示的列表
func (r Result) String() string {
	var b strings.Builder
	b.WriteString(r.Summary)
	for _, rule := range r.Rules {
		b.WriteString("\n")
		if rule.Valid {
			b.WriteString("[x] ")
		} else {
			b.WriteString("[ ] ")
		}
		b.WriteString(rule.Message)
	}
	return b.String()
}

var std = validator.New(validator.WithRequiredStructEnabled())

// Email 先用 validator 做语法解析，再做一遍字符级检查：
// 解析器比较宽松，像 "foo@bar" 这种没有点的域名也会放过。
func Email(value string) Result {
	domain := ""
	if at := strings.LastIndexByte(value, '@'); at >= 0 {
		domain = value[at+1:]
	}
	return Result{
		Field:   "email",
		Summary: "Invalid email address.",
		Rules: []Rule{
			{Message: "Email must be a syntactically valid address.", Valid: std.Var(value, "required,email") == nil},
			{Message: "Email must contain '@'.", Valid: strings.ContainsRune(value, '@')},
			{Message: "Email domain must contain '.'.", Valid: strings.ContainsRune(domain, '.')},
			{Message: "Email cannot contain whitespaces.", Valid: !strings.ContainsFunc(value, unicode.IsSpace)},
			{Message: "Email cannot end with '.'.", Valid: value != "" && !strings.HasSuffix(value, ".")},
		},
	}
}

func Username(value string) Result {
	n := utf8.RuneCountInString(value)
	return Result{
		Field:   "username",
		Summary: "Invalid username.",
		Rules: []Rule{
			{Message: "Username cannot contain whitespaces.", Valid: !strings.ContainsFunc(value, unicode.IsSpace)},
			{Message: "Username cannot exceed 40 characters.", Valid: n <= UsernameMaxLen},
			{Message: "Username must be at least 6 characters long.", Valid: n >= UsernameMinLen},
			{Message: "The only allowed special characters are the following: -, _", Valid: !strings.ContainsFunc(value, notUsernameRune)},
			{Message: "Username must be lowercase.", Valid: !strings.ContainsFunc(value, unicode.IsUpper)},
		},
	}
}

func notUsernameRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
}
