package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"attendease/backend/internal/dto"
	"attendease/backend/internal/model"
)

func setupTestUserService() (UserService, *testRepos) {
	repos := newTestRepos()
	return NewUserService(repos.repo, zap.NewNop()), repos
}

func intPtr(v int) *int { return &v }
func strPtr(v string) *string { return &v }

// ── Create ──

func TestCreateUser_GeneratesTempPassword(t *testing.T) {
	svc, repos := setupTestUserService()

	resp, err := svc.Create(context.Background(), &dto.CreateUserRequest{
		Name:     "Asha Verma",
		Email:    " Asha@College.EDU ",
		Role:     model.RoleStudent,
		PRN:      "PRN001",
		Course:   "BCA",
		Semester: intPtr(3),
	}, "admin-1")
	if err != nil {
		t.Fatalf("创建用户应成功: %v", err)
	}
	if len(resp.TempPassword) < 8 {
		t.Errorf("临时密码长度至少 8，实际 %q", resp.TempPassword)
	}
	if resp.User.Email != "asha@college.edu" {
		t.Errorf("邮箱应规范为小写，实际 %q", resp.User.Email)
	}
	if !resp.User.MustChangePassword {
		t.Error("临时密码账号应要求首次修改密码")
	}

	stored := repos.users.users[resp.User.ID]
	if bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(resp.TempPassword)) != nil {
		t.Error("存储的哈希与临时密码不匹配")
	}
	if stored.CreatedBy == nil || *stored.CreatedBy != "admin-1" {
		t.Error("应记录创建人")
	}
}

func TestCreateUser_WithPassword(t *testing.T) {
	svc, _ := setupTestUserService()

	resp, err := svc.Create(context.Background(), &dto.CreateUserRequest{
		Name:     "Dr. Rao",
		Email:    "rao@college.edu",
		Role:     model.RoleFaculty,
		Password: "facultypass",
		Subjects: []string{"Maths"},
		Course:   "BCA", // 教师不保留学生字段
	}, "admin-1")
	if err != nil {
		t.Fatalf("创建教师应成功: %v", err)
	}
	if resp.TempPassword != "" || resp.User.MustChangePassword {
		t.Error("指定密码时不应生成临时密码")
	}
	if resp.User.Course != "" || len(resp.User.Subjects) != 1 {
		t.Errorf("角色字段处理不符: %+v", resp.User)
	}
}

func TestCreateUser_Rejections(t *testing.T) {
	svc, repos := setupTestUserService()
	repos.addUser("u1", "Existing", model.RoleFaculty)

	_, err := svc.Create(context.Background(), &dto.CreateUserRequest{
		Name: "No Course", Email: "nc@college.edu", Role: model.RoleStudent,
	}, "admin-1")
	if !errors.Is(err, ErrStudentFieldsRequired) {
		t.Errorf("期望 ErrStudentFieldsRequired，实际 %v", err)
	}

	_, err = svc.Create(context.Background(), &dto.CreateUserRequest{
		Name: "Dup", Email: "U1@college.edu", Role: model.RoleAdmin,
	}, "admin-1")
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("期望 ErrEmailExists，实际 %v", err)
	}
}

// ── Update ──

func TestUpdateUser_RoleChangeClearsFields(t *testing.T) {
	svc, repos := setupTestUserService()
	repos.addStudent("s1", "Asha", "BCA", 3)

	resp, err := svc.Update(context.Background(), "s1", &dto.UpdateUserRequest{
		Role:     strPtr(model.RoleFaculty),
		Subjects: &[]string{"Maths"},
	}, "admin-1")
	if err != nil {
		t.Fatalf("更新应成功: %v", err)
	}
	if resp.Role != model.RoleFaculty || resp.PRN != "" || resp.Course != "" || resp.Semester != nil {
		t.Errorf("改为教师后应清除学生字段: %+v", resp)
	}
	if repos.users.users["s1"].Version != 2 {
		t.Error("更新后版本号应递增")
	}
}

func TestUpdateUser_Rejections(t *testing.T) {
	svc, repos := setupTestUserService()
	repos.addUser("admin-1", "Admin", model.RoleAdmin)
	repos.addUser("f1", "Faculty", model.RoleFaculty)
	repos.addUser("f2", "Faculty Two", model.RoleFaculty)

	_, err := svc.Update(context.Background(), "admin-1", &dto.UpdateUserRequest{Role: strPtr(model.RoleFaculty)}, "admin-1")
	if !errors.Is(err, ErrUserSelfRoleChange) {
		t.Errorf("期望 ErrUserSelfRoleChange，实际 %v", err)
	}

	_, err = svc.Update(context.Background(), "f1", &dto.UpdateUserRequest{Role: strPtr(model.RoleStudent)}, "admin-1")
	if !errors.Is(err, ErrStudentFieldsRequired) {
		t.Errorf("改为学生需同时提供 course 与 semester，实际 %v", err)
	}

	_, err = svc.Update(context.Background(), "f1", &dto.UpdateUserRequest{Email: strPtr("f2@college.edu")}, "admin-1")
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("期望 ErrEmailExists，实际 %v", err)
	}

	_, err = svc.Update(context.Background(), "ghost", &dto.UpdateUserRequest{Name: strPtr("Ghost")}, "admin-1")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际 %v", err)
	}
}

// ── Delete / ResetPassword ──

func TestDeleteUser(t *testing.T) {
	svc, repos := setupTestUserService()
	repos.addUser("admin-1", "Admin", model.RoleAdmin)
	repos.addUser("f1", "Faculty", model.RoleFaculty)

	if err := svc.Delete(context.Background(), "admin-1", "admin-1"); !errors.Is(err, ErrUserSelfDelete) {
		t.Errorf("期望 ErrUserSelfDelete，实际 %v", err)
	}
	if err := svc.Delete(context.Background(), "f1", "admin-1"); err != nil {
		t.Fatalf("删除应成功: %v", err)
	}
	if err := svc.Delete(context.Background(), "f1", "admin-1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("重复删除期望 ErrUserNotFound，实际 %v", err)
	}
}

func TestResetPassword(t *testing.T) {
	svc, repos := setupTestUserService()
	u := repos.addUser("f1", "Faculty", model.RoleFaculty)

	resp, err := svc.ResetPassword(context.Background(), "f1", "admin-1")
	if err != nil {
		t.Fatalf("重置密码应成功: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(resp.TempPassword)) != nil {
		t.Error("临时密码未生效")
	}
	if !u.MustChangePassword {
		t.Error("重置后应要求修改密码")
	}

	if _, err := svc.ResetPassword(context.Background(), "ghost", "admin-1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际 %v", err)
	}
}

// ── List ──

func TestListUsers_FilterAndFaculty(t *testing.T) {
	svc, repos := setupTestUserService()
	repos.addStudent("s1", "Asha", "BCA", 3)
	f := repos.addUser("f1", "Dr. Rao", model.RoleFaculty)
	f.Subjects = model.StringArray{"Maths", "Statistics"}
	repos.addUser("f2", "Dr. Iyer", model.RoleFaculty)

	users, total, err := svc.List(context.Background(), &dto.UserListRequest{Role: model.RoleFaculty})
	if err != nil {
		t.Fatalf("列表查询失败: %v", err)
	}
	if total != 2 || len(users) != 2 {
		t.Errorf("期望 2 名教师，实际 %d", total)
	}

	users, total, _ = svc.List(context.Background(), &dto.UserListRequest{Keyword: "asha"})
	if total != 1 || users[0].ID != "s1" {
		t.Errorf("关键字过滤不符: %+v", users)
	}

	options, err := svc.ListFaculty(context.Background())
	if err != nil {
		t.Fatalf("ListFaculty 失败: %v", err)
	}
	if len(options) != 2 || options[0].Name != "Dr. Iyer" || len(options[1].Subjects) != 2 {
		t.Errorf("教师选项不符: %+v", options)
	}
}

func TestGenerateTempPassword(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := generateTempPassword(4)
		if err != nil {
			t.Fatalf("生成失败: %v", err)
		}
		if len(p) != 8 {
			t.Errorf("长度不足 8 时应补足为 8，实际 %d", len(p))
		}
	}
}
