package domain

// 已经反序列化好的请求体，core 不接触 wire format

type RegisterRequest struct {
	Email     string `json:"email"     binding:"required"`
	Username  string `json:"username"  binding:"required"`
	Password  string `json:"password"  binding:"required"`
	FirstName string `json:"firstName" binding:"omitempty,max=64"`
	LastName  string `json:"lastName"  binding:"omitempty,max=64"`
}

type LoginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateRequest 只合并非 nil 字段
type UpdateRequest struct {
	Email     *string `json:"email"`
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	FirstName *string `json:"firstName" binding:"omitempty,max=64"`
	LastName  *string `json:"lastName"  binding:"omitempty,max=64"`
}

func (r UpdateRequest) Empty() bool {
	return r.Email == nil && r.Username == nil && r.Password == nil &&
		r.FirstName == nil && r.LastName == nil
}
