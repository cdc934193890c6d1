package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"attendease/backend/internal/model"
	"attendease/backend/internal/repository"
	pkgerrors "attendease/backend/pkg/errors"
	"attendease/backend/pkg/idtoken"
	"attendease/backend/pkg/mail"
	pkgredis "attendease/backend/pkg/redis"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users  map[string]*model.User // key: user_id
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return pkgerrors.ErrDuplicate
		}
	}
	if user.UserID == "" {
		m.nextID++
		user.UserID = fmt.Sprintf("user-%d", m.nextID)
	}
	user.Version = 1
	user.CreatedAt = time.Now()
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if u.UserID != user.UserID && strings.EqualFold(u.Email, user.Email) {
			return pkgerrors.ErrDuplicate
		}
	}
	user.Version++
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id, hash string, mustChange bool) error {
	u, ok := m.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.PasswordHash = hash
	u.MustChangePassword = mustChange
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id, _ string) error {
	if _, ok := m.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, filter repository.UserFilter, page repository.Page) ([]model.User, int64, error) {
	var all []model.User
	kw := strings.ToLower(strings.TrimSpace(filter.Keyword))
	for _, u := range m.sorted() {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if kw != "" && !strings.Contains(strings.ToLower(u.Name+" "+u.Email+" "+u.PRN), kw) {
			continue
		}
		all = append(all, u)
	}
	return paginate(all, page), int64(len(all)), nil
}

func (m *mockUserRepo) ListByRole(_ context.Context, role string) ([]model.User, error) {
	var result []model.User
	for _, u := range m.sorted() {
		if u.Role == role {
			result = append(result, u)
		}
	}
	return result, nil
}

func (m *mockUserRepo) CountByRole(_ context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, u := range m.users {
		counts[u.Role]++
	}
	return counts, nil
}

func (m *mockUserRepo) sorted() []model.User {
	result := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ── Mock TimetableRepository ──

type mockTimetableRepo struct {
	entries    map[string]*model.TimetableEntry
	nextID     int
	replaceErr error
}

func newMockTimetableRepo() *mockTimetableRepo {
	return &mockTimetableRepo{entries: make(map[string]*model.TimetableEntry)}
}

func (m *mockTimetableRepo) Create(_ context.Context, entry *model.TimetableEntry) error {
	if entry.EntryID == "" {
		m.nextID++
		entry.EntryID = fmt.Sprintf("entry-%d", m.nextID)
	}
	m.entries[entry.EntryID] = entry
	return nil
}

func (m *mockTimetableRepo) GetByID(_ context.Context, id string) (*model.TimetableEntry, error) {
	if e, ok := m.entries[id]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockTimetableRepo) GetByIDs(_ context.Context, ids []string) ([]model.TimetableEntry, error) {
	var result []model.TimetableEntry
	for _, id := range ids {
		if e, ok := m.entries[id]; ok {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *mockTimetableRepo) Update(_ context.Context, entry *model.TimetableEntry) error {
	if _, ok := m.entries[entry.EntryID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.entries[entry.EntryID] = entry
	return nil
}

func (m *mockTimetableRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.entries[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *mockTimetableRepo) List(_ context.Context, filter repository.TimetableFilter, page repository.Page) ([]model.TimetableEntry, int64, error) {
	var all []model.TimetableEntry
	for _, e := range m.sorted() {
		if matchTimetableFilter(&e, filter) {
			all = append(all, e)
		}
	}
	return paginate(all, page), int64(len(all)), nil
}

func (m *mockTimetableRepo) ListByCourseSemester(_ context.Context, course string, semester int) ([]model.TimetableEntry, error) {
	var result []model.TimetableEntry
	for _, e := range m.sorted() {
		if e.Course == course && e.Semester == semester {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockTimetableRepo) DeleteByFilter(_ context.Context, filter repository.TimetableFilter) (int64, error) {
	var n int64
	for id, e := range m.entries {
		if matchTimetableFilter(e, filter) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

func (m *mockTimetableRepo) ReplaceByCourseSemester(ctx context.Context, entries []model.TimetableEntry) ([]repository.PairReplacement, error) {
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}

	type pair struct {
		course   string
		semester int
	}
	seen := make(map[pair]bool)
	var pairs []pair
	for _, e := range entries {
		p := pair{e.Course, e.Semester}
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].course != pairs[j].course {
			return pairs[i].course < pairs[j].course
		}
		return pairs[i].semester < pairs[j].semester
	})

	result := make([]repository.PairReplacement, 0, len(pairs))
	for _, p := range pairs {
		sem := p.semester
		n, _ := m.DeleteByFilter(ctx, repository.TimetableFilter{Course: p.course, Semester: &sem})
		result = append(result, repository.PairReplacement{Course: p.course, Semester: p.semester, Deleted: n})
	}
	for i := range entries {
		e := entries[i]
		_ = m.Create(ctx, &e)
	}
	return result, nil
}

func (m *mockTimetableRepo) Count(_ context.Context) (int64, error) {
	return int64(len(m.entries)), nil
}

func (m *mockTimetableRepo) sorted() []model.TimetableEntry {
	result := make([]model.TimetableEntry, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntryID < result[j].EntryID })
	return result
}

func matchTimetableFilter(e *model.TimetableEntry, filter repository.TimetableFilter) bool {
	if filter.Course != "" && e.Course != filter.Course {
		return false
	}
	if filter.Semester != nil && e.Semester != *filter.Semester {
		return false
	}
	return true
}

// ── Mock RequestRepository ──

type mockRequestRepo struct {
	requests  map[string]*model.MissedClassRequest
	nextID    int
	decideErr error
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[string]*model.MissedClassRequest)}
}

func (m *mockRequestRepo) Create(_ context.Context, req *model.MissedClassRequest) error {
	if req.RequestID == "" {
		m.nextID++
		req.RequestID = fmt.Sprintf("req-%d", m.nextID)
	}
	m.requests[req.RequestID] = req
	return nil
}

func (m *mockRequestRepo) GetByID(_ context.Context, id string) (*model.MissedClassRequest, error) {
	if r, ok := m.requests[id]; ok {
		return r, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRequestRepo) ListByStudent(_ context.Context, studentID string) ([]model.MissedClassRequest, error) {
	var result []model.MissedClassRequest
	for _, r := range m.requests {
		if r.StudentID == studentID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedAt.After(result[j].SubmittedAt) })
	return result, nil
}

func (m *mockRequestRepo) ListPendingByApprovers(_ context.Context, approverIDs []string) ([]model.MissedClassRequest, error) {
	ids := make(map[string]bool, len(approverIDs))
	for _, id := range approverIDs {
		ids[id] = true
	}
	var result []model.MissedClassRequest
	for _, r := range m.requests {
		if r.IsPending() && ids[r.ApproverID] {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedAt.Before(result[j].SubmittedAt) })
	return result, nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter repository.RequestFilter, page repository.Page) ([]model.MissedClassRequest, int64, error) {
	all, _ := m.ListAll(ctx, filter)
	return paginate(all, page), int64(len(all)), nil
}

func (m *mockRequestRepo) ListAll(_ context.Context, filter repository.RequestFilter) ([]model.MissedClassRequest, error) {
	kw := strings.ToLower(strings.TrimSpace(filter.Keyword))
	var result []model.MissedClassRequest
	for _, r := range m.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if kw != "" {
			text := strings.ToLower(r.StudentName + " " + r.StudentPRN)
			for _, c := range r.MissedClasses {
				text += " " + strings.ToLower(c.SubjectName)
			}
			if !strings.Contains(text, kw) {
				continue
			}
		}
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedAt.After(result[j].SubmittedAt) })
	return result, nil
}

func (m *mockRequestRepo) Decide(_ context.Context, id string, d repository.Decision) error {
	if m.decideErr != nil {
		return m.decideErr
	}
	r, ok := m.requests[id]
	if !ok || !r.IsPending() {
		return pkgerrors.ErrOptimisticLock
	}
	r.Status = d.Status
	r.ApproverComment = d.Comment
	decidedAt := d.DecidedAt
	decidedBy := d.DecidedBy
	r.DecidedAt = &decidedAt
	r.DecidedBy = &decidedBy
	return nil
}

func (m *mockRequestRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, r := range m.requests {
		counts[r.Status]++
	}
	return counts, nil
}

// ── Mock EventRepository ──

type mockEventRepo struct {
	events map[string]*model.Event
	nextID int
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{events: make(map[string]*model.Event)}
}

func (m *mockEventRepo) Create(_ context.Context, event *model.Event) error {
	if event.EventID == "" {
		m.nextID++
		event.EventID = fmt.Sprintf("event-%d", m.nextID)
	}
	m.events[event.EventID] = event
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	if e, ok := m.events[id]; ok {
		return e, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEventRepo) List(_ context.Context) ([]model.Event, error) {
	var result []model.Event
	for _, e := range m.events {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockEventRepo) Update(_ context.Context, event *model.Event) error {
	if _, ok := m.events[event.EventID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.events[event.EventID] = event
	return nil
}

func (m *mockEventRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.events[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.events, id)
	return nil
}

// ── Mock 外部依赖 ──

type mockTokenStore struct {
	blacklist map[string]time.Duration
	resets    map[string]string
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{
		blacklist: make(map[string]time.Duration),
		resets:    make(map[string]string),
	}
}

func (m *mockTokenStore) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	m.blacklist[jti] = ttl
	return nil
}

func (m *mockTokenStore) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	_, ok := m.blacklist[jti]
	return ok, nil
}

func (m *mockTokenStore) StoreResetToken(_ context.Context, token, userID string, _ time.Duration) error {
	m.resets[token] = userID
	return nil
}

func (m *mockTokenStore) ConsumeResetToken(_ context.Context, token string) (string, error) {
	userID, ok := m.resets[token]
	if !ok {
		return "", pkgredis.ErrKeyNotFound
	}
	delete(m.resets, token)
	return userID, nil
}

type mockMailer struct {
	sent []mail.Message
	err  error
}

func (m *mockMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockVerifier struct {
	identity *idtoken.Identity
	err      error
}

func (m *mockVerifier) Verify(_ string) (*idtoken.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.identity, nil
}

// ── 测试辅助 ──

type testRepos struct {
	repo      *repository.Repository
	users     *mockUserRepo
	timetable *mockTimetableRepo
	requests  *mockRequestRepo
	events    *mockEventRepo
}

func newTestRepos() *testRepos {
	r := &testRepos{
		users:     newMockUserRepo(),
		timetable: newMockTimetableRepo(),
		requests:  newMockRequestRepo(),
		events:    newMockEventRepo(),
	}
	r.repo = &repository.Repository{
		User:      r.users,
		Timetable: r.timetable,
		Request:   r.requests,
		Event:     r.events,
	}
	return r
}

func (r *testRepos) addUser(id, name, role string) *model.User {
	u := &model.User{
		UserID: id,
		Name:   name,
		Email:  id + "@college.edu",
		Role:   role,
	}
	u.Version = 1
	r.users.users[id] = u
	return u
}

func (r *testRepos) addStudent(id, name, course string, semester int) *model.User {
	u := r.addUser(id, name, model.RoleStudent)
	u.PRN = "PRN-" + id
	u.Course = course
	u.Semester = &semester
	return u
}

func (r *testRepos) addEntry(id, course string, semester int, day, slot, subject string) *model.TimetableEntry {
	e := &model.TimetableEntry{
		EntryID:     id,
		Day:         day,
		TimeSlot:    slot,
		SubjectName: subject,
		Course:      course,
		Semester:    semester,
	}
	r.timetable.entries[id] = e
	return e
}

func paginate[T any](all []T, page repository.Page) []T {
	if page.Limit <= 0 {
		return all
	}
	if page.Offset >= len(all) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end]
}
