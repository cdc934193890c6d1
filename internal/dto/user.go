package dto

// ── 用户模块 DTO ──

// UserListRequest 用户列表查询参数
type UserListRequest struct {
	PaginationRequest
	Role    string `form:"role"    binding:"omitempty,oneof=student faculty admin"`
	Keyword string `form:"keyword" binding:"omitempty,max=50"`
}

// CreateUserRequest 管理员创建用户请求
// 密码为空时生成临时密码并在响应中返回
type CreateUserRequest struct {
	Name     string   `json:"name"     binding:"required,min=2,max=100"`
	Email    string   `json:"email"    binding:"required,email"`
	Role     string   `json:"role"     binding:"required,oneof=student faculty admin"`
	Password string   `json:"password" binding:"omitempty,min=8,max=64"`
	PRN      string   `json:"prn"      binding:"omitempty,max=50"`
	Course   string   `json:"course"   binding:"omitempty,max=100"`
	Semester *int     `json:"semester" binding:"omitempty,min=1,max=32767"`
	Subjects []string `json:"subjects" binding:"omitempty,dive,max=100"`
}

// UpdateUserRequest 更新用户信息请求
type UpdateUserRequest struct {
	Name     *string   `json:"name"     binding:"omitempty,min=2,max=100"`
	Email    *string   `json:"email"    binding:"omitempty,email"`
	Role     *string   `json:"role"     binding:"omitempty,oneof=student faculty admin"`
	PRN      *string   `json:"prn"      binding:"omitempty,max=50"`
	Course   *string   `json:"course"   binding:"omitempty,max=100"`
	Semester *int      `json:"semester" binding:"omitempty,min=1,max=32767"`
	Subjects *[]string `json:"subjects"`
}

// CreateUserResponse 创建用户响应
type CreateUserResponse struct {
	User         UserResponse `json:"user"`
	TempPassword string       `json:"temp_password,omitempty"`
}

// ResetPasswordResponse 重置密码响应
type ResetPasswordResponse struct {
	TempPassword string `json:"temp_password"`
}

// FacultyOption 学生提交申请时可选的教师
type FacultyOption struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Subjects []string `json:"subjects,omitempty"`
}
