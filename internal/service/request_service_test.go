package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"attendease/backend/config"
	"attendease/backend/internal/dto"
	"attendease/backend/internal/model"
	pkgerrors "attendease/backend/pkg/errors"
)

const testAdminQueue = "admin-queue"

func setupRequestService() (RequestService, *testRepos, *mockMailer) {
	repos := newTestRepos()
	mailer := &mockMailer{}
	cfg := &config.RequestConfig{AdminQueueID: testAdminQueue}
	svc := NewRequestService(cfg, repos.repo, mailer, zap.NewNop())

	repos.addStudent("s1", "Asha", "BCA", 3)
	repos.addUser("f1", "Dr. Ravi Kiran", model.RoleFaculty)
	repos.addUser("a1", "Admin", model.RoleAdmin)
	repos.addEntry("c1", "BCA", 3, "Monday", "09:00 - 10:00", "Maths")
	repos.addEntry("c2", "BCA", 3, "Tuesday", "10:00 - 11:00", "Physics")
	repos.addEntry("other-sem", "BCA", 4, "Monday", "09:00 - 10:00", "Networks")
	return svc, repos, mailer
}

func submitTo(t *testing.T, svc RequestService, approverID string) *dto.RequestResponse {
	t.Helper()
	resp, err := svc.Submit(context.Background(), "s1", &dto.SubmitRequest{
		ClassIDs:     []string{"c1"},
		Reason:       "Hackathon",
		ApproverID:   approverID,
		ApproverName: "Dean Office",
	})
	if err != nil {
		t.Fatalf("Submit 应成功: %v", err)
	}
	return resp
}

// ════════════════════════════════════════════════════════════
// Submit 路由
// ════════════════════════════════════════════════════════════

func TestSubmit_RoutesToFaculty(t *testing.T) {
	svc, repos, _ := setupRequestService()

	resp, err := svc.Submit(context.Background(), "s1", &dto.SubmitRequest{
		ClassIDs:   []string{"c2", "c1", "c2"},
		Reason:     "  Medical appointment ",
		ApproverID: "f1",
	})
	if err != nil {
		t.Fatalf("Submit 应成功: %v", err)
	}
	if resp.ApproverID != "f1" || resp.ApproverName != "Dr. Ravi Kiran" {
		t.Errorf("审批人应为所选教师，实际 %s/%s", resp.ApproverID, resp.ApproverName)
	}
	if resp.Status != model.RequestStatusPending {
		t.Errorf("新申请应为 Pending，实际 %s", resp.Status)
	}
	if len(resp.MissedClasses) != 2 || resp.MissedClasses[0].ClassID != "c2" {
		t.Errorf("重复课程应合并并保持顺序，实际 %+v", resp.MissedClasses)
	}
	if resp.MissedClasses[0].SubjectName != "Physics" || resp.MissedClasses[0].Day != "Tuesday" {
		t.Errorf("课程快照不完整: %+v", resp.MissedClasses[0])
	}
	if resp.Reason != "Medical appointment" {
		t.Errorf("原因应去除首尾空白，实际 %q", resp.Reason)
	}
	if resp.StudentPRN != "PRN-s1" || resp.StudentName != "Asha" {
		t.Errorf("学生信息快照不符: %+v", resp)
	}
	if len(repos.requests.requests) != 1 {
		t.Errorf("一次提交只应生成一份申请，实际 %d", len(repos.requests.requests))
	}
}

func TestSubmit_OtherGoesToAdminQueue(t *testing.T) {
	svc, _, _ := setupRequestService()

	resp := submitTo(t, svc, model.ApproverOther)
	if resp.ApproverID != testAdminQueue {
		t.Errorf("other 应路由到管理员队列，实际 %s", resp.ApproverID)
	}
	if resp.ApproverName != "Dean Office" {
		t.Errorf("审批人姓名应为填写值，实际 %s", resp.ApproverName)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		student string
		req     dto.SubmitRequest
		want    error
	}{
		{"未选课程", "s1", dto.SubmitRequest{Reason: "x", ApproverID: "f1"}, ErrRequestNoClasses},
		{"原因为空", "s1", dto.SubmitRequest{ClassIDs: []string{"c1"}, Reason: "   ", ApproverID: "f1"}, ErrRequestReasonRequired},
		{"未选审批人", "s1", dto.SubmitRequest{ClassIDs: []string{"c1"}, Reason: "x"}, ErrRequestApproverRequired},
		{"other 未填姓名", "s1", dto.SubmitRequest{ClassIDs: []string{"c1"}, Reason: "x", ApproverID: "other"}, ErrRequestApproverNameRequired},
		{"审批人非教师", "s1", dto.SubmitRequest{ClassIDs: []string{"c1"}, Reason: "x", ApproverID: "a1"}, ErrRequestApproverInvalid},
		{"审批人不存在", "s1", dto.SubmitRequest{ClassIDs: []string{"c1"}, Reason: "x", ApproverID: "ghost"}, ErrRequestApproverInvalid},
		{"课程不存在", "s1", dto.SubmitRequest{ClassIDs: []string{"nope"}, Reason: "x", ApproverID: "f1"}, ErrRequestClassNotFound},
		{"课程不在本人课表", "s1", dto.SubmitRequest{ClassIDs: []string{"other-sem"}, Reason: "x", ApproverID: "f1"}, ErrRequestClassNotInTimetable},
		{"活动不存在", "s1", dto.SubmitRequest{ClassIDs: []string{"c1"}, Reason: "x", ApproverID: "f1", EventID: "00000000-0000-0000-0000-000000000000"}, ErrRequestEventNotFound},
		{"非学生提交", "f1", dto.SubmitRequest{ClassIDs: []string{"c1"}, Reason: "x", ApproverID: "f1"}, ErrRequestOnlyStudents},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repos, _ := setupRequestService()
			req := tt.req
			_, err := svc.Submit(context.Background(), tt.student, &req)
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际 %v", tt.want, err)
			}
			if len(repos.requests.requests) != 0 {
				t.Error("校验失败时不应写入申请")
			}
		})
	}
}

func TestSubmit_WithEvent(t *testing.T) {
	svc, repos, _ := setupRequestService()
	repos.events.events["ev1"] = &model.Event{EventID: "ev1", Name: "Sports Day"}

	resp, err := svc.Submit(context.Background(), "s1", &dto.SubmitRequest{
		ClassIDs: []string{"c1"}, Reason: "Sports Day", ApproverID: "f1", EventID: "ev1",
	})
	if err != nil {
		t.Fatalf("Submit 应成功: %v", err)
	}
	if resp.EventID != "ev1" {
		t.Errorf("应关联活动 ev1，实际 %q", resp.EventID)
	}
}

// ════════════════════════════════════════════════════════════
// Decide 状态机
// ════════════════════════════════════════════════════════════

func TestDecide_Approve(t *testing.T) {
	svc, repos, mailer := setupRequestService()
	submitted := submitTo(t, svc, "f1")

	resp, err := svc.Decide(context.Background(), Caller{UserID: "f1", Role: model.RoleFaculty}, submitted.ID,
		&dto.DecisionRequest{Status: model.RequestStatusApproved})
	if err != nil {
		t.Fatalf("Decide 应成功: %v", err)
	}
	if resp.Status != model.RequestStatusApproved || resp.DecidedAt == nil {
		t.Errorf("状态应为 Approved 且记录审批时间，实际 %+v", resp)
	}
	stored := repos.requests.requests[submitted.ID]
	if stored.DecidedBy == nil || *stored.DecidedBy != "f1" {
		t.Errorf("decided_by 应为 f1")
	}
	if len(mailer.sent) != 1 || mailer.sent[0].ToAddress != "s1@college.edu" {
		t.Errorf("应邮件通知学生，实际 %+v", mailer.sent)
	}
}

func TestDecide_RejectRequiresComment(t *testing.T) {
	svc, repos, _ := setupRequestService()
	submitted := submitTo(t, svc, "f1")
	caller := Caller{UserID: "f1", Role: model.RoleFaculty}

	_, err := svc.Decide(context.Background(), caller, submitted.ID,
		&dto.DecisionRequest{Status: model.RequestStatusRejected, Comment: "  "})
	if !errors.Is(err, ErrRequestCommentRequired) {
		t.Fatalf("期望 ErrRequestCommentRequired，实际 %v", err)
	}
	if !repos.requests.requests[submitted.ID].IsPending() {
		t.Fatal("缺少意见时状态不应改变")
	}

	resp, err := svc.Decide(context.Background(), caller, submitted.ID,
		&dto.DecisionRequest{Status: model.RequestStatusRejected, Comment: "No proof attached"})
	if err != nil {
		t.Fatalf("带意见驳回应成功: %v", err)
	}
	if resp.ApproverComment != "No proof attached" {
		t.Errorf("意见应被保存，实际 %q", resp.ApproverComment)
	}
}

func TestDecide_TerminalStates(t *testing.T) {
	svc, _, _ := setupRequestService()
	submitted := submitTo(t, svc, "f1")
	caller := Caller{UserID: "f1", Role: model.RoleFaculty}

	if _, err := svc.Decide(context.Background(), caller, submitted.ID,
		&dto.DecisionRequest{Status: model.RequestStatusApproved}); err != nil {
		t.Fatalf("首次审批应成功: %v", err)
	}

	_, err := svc.Decide(context.Background(), caller, submitted.ID,
		&dto.DecisionRequest{Status: model.RequestStatusRejected, Comment: "changed mind"})
	if !errors.Is(err, ErrRequestAlreadyDecided) {
		t.Errorf("终态不可再变，期望 ErrRequestAlreadyDecided，实际 %v", err)
	}
}

func TestDecide_InvalidStatus(t *testing.T) {
	svc, _, _ := setupRequestService()
	submitted := submitTo(t, svc, "f1")

	_, err := svc.Decide(context.Background(), Caller{UserID: "f1", Role: model.RoleFaculty}, submitted.ID,
		&dto.DecisionRequest{Status: model.RequestStatusPending})
	if !errors.Is(err, ErrRequestInvalidStatus) {
		t.Errorf("期望 ErrRequestInvalidStatus，实际 %v", err)
	}
}

func TestDecide_Authorization(t *testing.T) {
	svc, repos, _ := setupRequestService()
	repos.addUser("f2", "Prof. Meera", model.RoleFaculty)

	toF1 := submitTo(t, svc, "f1")
	toQueue := submitTo(t, svc, model.ApproverOther)
	approve := &dto.DecisionRequest{Status: model.RequestStatusApproved}

	if _, err := svc.Decide(context.Background(), Caller{UserID: "f2", Role: model.RoleFaculty}, toF1.ID, approve); !errors.Is(err, ErrRequestForbidden) {
		t.Errorf("其他教师不能审批，实际 %v", err)
	}
	if _, err := svc.Decide(context.Background(), Caller{UserID: "s1", Role: model.RoleStudent}, toF1.ID, approve); !errors.Is(err, ErrRequestForbidden) {
		t.Errorf("学生不能审批，实际 %v", err)
	}
	if _, err := svc.Decide(context.Background(), Caller{UserID: "f1", Role: model.RoleFaculty}, toQueue.ID, approve); !errors.Is(err, ErrRequestForbidden) {
		t.Errorf("教师不能处理管理员队列，实际 %v", err)
	}
	if _, err := svc.Decide(context.Background(), Caller{UserID: "a1", Role: model.RoleAdmin}, toQueue.ID, approve); err != nil {
		t.Errorf("管理员应可处理管理员队列: %v", err)
	}
}

func TestDecide_ConcurrentDecisionLoses(t *testing.T) {
	svc, repos, mailer := setupRequestService()
	submitted := submitTo(t, svc, "f1")

	// 读取时仍为 Pending，但条件更新时已被其他请求处理
	repos.requests.decideErr = pkgerrors.ErrOptimisticLock

	_, err := svc.Decide(context.Background(), Caller{UserID: "f1", Role: model.RoleFaculty}, submitted.ID,
		&dto.DecisionRequest{Status: model.RequestStatusApproved})
	if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Fatalf("期望 ErrOptimisticLock，实际 %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Error("失败的审批不应发送通知")
	}
}

func TestDecide_OnlyStoreFailuresAreLoggedAsErrors(t *testing.T) {
	_, repos, mailer := setupRequestService()
	core, logs := observer.New(zapcore.ErrorLevel)
	svc := NewRequestService(&config.RequestConfig{AdminQueueID: testAdminQueue}, repos.repo, mailer, zap.New(core))
	submitted := submitTo(t, svc, "f1")
	faculty := Caller{UserID: "f1", Role: model.RoleFaculty}
	approve := &dto.DecisionRequest{Status: model.RequestStatusApproved}

	repos.requests.decideErr = pkgerrors.ErrOptimisticLock
	if _, err := svc.Decide(context.Background(), faculty, submitted.ID, approve); !errors.Is(err, pkgerrors.ErrOptimisticLock) {
		t.Fatalf("期望 ErrOptimisticLock，实际 %v", err)
	}
	if logs.Len() != 0 {
		t.Errorf("并发冲突不应记录错误日志，实际 %d 条", logs.Len())
	}

	storeErr := errors.New("connection reset")
	repos.requests.decideErr = storeErr
	if _, err := svc.Decide(context.Background(), faculty, submitted.ID, approve); !errors.Is(err, storeErr) {
		t.Fatalf("期望存储错误透传，实际 %v", err)
	}
	if logs.Len() != 1 {
		t.Errorf("存储失败应记录 1 条错误日志，实际 %d 条", logs.Len())
	}
}

func TestDecide_MailFailureIsNotFatal(t *testing.T) {
	svc, _, mailer := setupRequestService()
	submitted := submitTo(t, svc, "f1")
	mailer.err = errors.New("smtp down")

	if _, err := svc.Decide(context.Background(), Caller{UserID: "f1", Role: model.RoleFaculty}, submitted.ID,
		&dto.DecisionRequest{Status: model.RequestStatusApproved}); err != nil {
		t.Errorf("邮件失败不应影响审批结果: %v", err)
	}
}

// ════════════════════════════════════════════════════════════
// 查询
// ════════════════════════════════════════════════════════════

func TestInbox_AndMine(t *testing.T) {
	svc, _, _ := setupRequestService()
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.(*requestService).now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first := submitTo(t, svc, "f1")
	second := submitTo(t, svc, "f1")
	queued := submitTo(t, svc, model.ApproverOther)

	inbox, err := svc.Inbox(context.Background(), Caller{UserID: "f1", Role: model.RoleFaculty})
	if err != nil {
		t.Fatalf("Inbox 应成功: %v", err)
	}
	if len(inbox) != 2 || inbox[0].ID != first.ID || inbox[1].ID != second.ID {
		t.Errorf("教师收件箱应按提交时间升序且不含管理员队列，实际 %+v", inbox)
	}

	adminInbox, _ := svc.Inbox(context.Background(), Caller{UserID: "a1", Role: model.RoleAdmin})
	if len(adminInbox) != 1 || adminInbox[0].ID != queued.ID {
		t.Errorf("管理员收件箱应包含管理员队列，实际 %+v", adminInbox)
	}

	mine, _ := svc.Mine(context.Background(), "s1")
	if len(mine) != 3 || mine[0].ID != queued.ID {
		t.Errorf("本人申请应最新在前，实际 %+v", mine)
	}
}

func TestList_KeywordMatchesSubject(t *testing.T) {
	svc, _, _ := setupRequestService()
	submitTo(t, svc, "f1")

	list, total, err := svc.List(context.Background(), &dto.RequestListRequest{Keyword: "MATH"})
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Errorf("课程名关键字应不区分大小写匹配，实际 total=%d", total)
	}

	_, total, _ = svc.List(context.Background(), &dto.RequestListRequest{Status: model.RequestStatusApproved})
	if total != 0 {
		t.Errorf("状态筛选无结果时应为 0，实际 %d", total)
	}
}

func TestGet_Visibility(t *testing.T) {
	svc, repos, _ := setupRequestService()
	repos.addStudent("s2", "Ben", "BCA", 3)
	submitted := submitTo(t, svc, "f1")

	if _, err := svc.Get(context.Background(), Caller{UserID: "s1", Role: model.RoleStudent}, submitted.ID); err != nil {
		t.Errorf("学生本人应可查看: %v", err)
	}
	if _, err := svc.Get(context.Background(), Caller{UserID: "s2", Role: model.RoleStudent}, submitted.ID); !errors.Is(err, ErrRequestForbidden) {
		t.Errorf("其他学生不可查看，实际 %v", err)
	}
	if _, err := svc.Get(context.Background(), Caller{UserID: "a1", Role: model.RoleAdmin}, "missing"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("期望 ErrRequestNotFound，实际 %v", err)
	}
}
