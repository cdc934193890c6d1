package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"attendease/backend/internal/dto"
	"attendease/backend/internal/model"
	"attendease/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoRequests   = errors.New("没有符合条件的申请")
	ErrExportNoTimetable  = errors.New("暂无课表")
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// ExportService 导出业务接口
//
// 导出内容以 bytes.Buffer 返回，由 Handler 层设置响应头后写入
type ExportService interface {
	// ExportRequests 按筛选条件导出缺课申请为 Excel
	ExportRequests(ctx context.Context, req *dto.RequestListRequest) (*bytes.Buffer, string, error)
	// ExportStudentCalendar 导出学生课表为 iCalendar
	ExportStudentCalendar(ctx context.Context, studentID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService 创建 ExportService 实例；loc 为课表时间所在时区
func NewExportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ExportService {
	if loc == nil {
		loc = time.Local
	}
	return &exportService{repo: repo, loc: loc, logger: logger, now: time.Now}
}

// ═══════════════════════════════════════════════════════════
// ExportRequests 缺课申请 Excel
// ═══════════════════════════════════════════════════════════

var requestSheetHeaders = []string{"学生姓名", "PRN", "缺课课程", "原因", "审批人", "状态", "审批意见", "提交时间", "审批时间"}

func (s *exportService) ExportRequests(ctx context.Context, req *dto.RequestListRequest) (*bytes.Buffer, string, error) {
	records, err := s.repo.Request.ListAll(ctx, repository.RequestFilter{Status: req.Status, Keyword: req.Keyword})
	if err != nil {
		s.logger.Error("查询申请失败", zap.Error(err))
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", ErrExportNoRequests
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "缺课申请"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	widths := []float64{16, 14, 40, 36, 18, 10, 30, 18, 18}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(sheetName, col, col, w)
	}

	// 表头
	for i, h := range requestSheetHeaders {
		f.SetCellValue(sheetName, cell(colName(i), 1), h)
	}
	f.SetCellStyle(sheetName, "A1", cell(colName(len(requestSheetHeaders)-1), 1), headerStyle)

	// 数据行
	for i, r := range records {
		row := i + 2
		values := []interface{}{
			r.StudentName,
			r.StudentPRN,
			describeMissedClasses(r.MissedClasses),
			r.Reason,
			r.ApproverName,
			r.Status,
			r.ApproverComment,
			r.SubmittedAt.In(s.loc).Format("2006-01-02 15:04"),
			"",
		}
		if r.DecidedAt != nil {
			values[8] = r.DecidedAt.In(s.loc).Format("2006-01-02 15:04")
		}
		for col, v := range values {
			f.SetCellValue(sheetName, cell(colName(col), row), v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("missed_class_requests_%s.xlsx", s.now().In(s.loc).Format("20060102"))
	return buf, filename, nil
}

func describeMissedClasses(classes []model.MissedClass) string {
	parts := make([]string, 0, len(classes))
	for _, c := range classes {
		when := c.Day
		if c.Date != "" {
			when = c.Date
		}
		parts = append(parts, fmt.Sprintf("%s (%s %s)", c.SubjectName, when, c.TimeSlot))
	}
	return strings.Join(parts, "; ")
}

// ═══════════════════════════════════════════════════════════
// ExportStudentCalendar 学生课表 iCalendar
// ═══════════════════════════════════════════════════════════
//
// 有日期的条目导出为单次事件；仅有星期的条目导出为每周重复事件，
// 从下一个对应星期开始。时间段无法解析时导出为全天事件。

func (s *exportService) ExportStudentCalendar(ctx context.Context, studentID string) (*bytes.Buffer, string, error) {
	entries, err := studentEntries(ctx, s.repo, studentID)
	if err != nil {
		return nil, "", err
	}
	if len(entries) == 0 {
		return nil, "", ErrExportNoTimetable
	}

	now := s.now().In(s.loc)
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//AttendEase//Timetable//EN")
	cal.SetXWRCalName(fmt.Sprintf("%s Semester %d", entries[0].Course, entries[0].Semester))
	cal.SetXWRTimezone(s.loc.String())

	for i := range entries {
		e := &entries[i]
		day, recurring := s.entryDay(e, now)

		evt := cal.AddEvent(e.EntryID + "@attendease")
		evt.SetDtStampTime(now)
		evt.SetSummary(e.SubjectName)
		if e.FacultyName != "" {
			evt.SetDescription("Faculty: " + e.FacultyName)
		}

		if start, end, ok := parseTimeSlot(e.TimeSlot); ok {
			evt.SetStartAt(day.Add(start))
			evt.SetEndAt(day.Add(end))
		} else {
			evt.SetAllDayStartAt(day)
			evt.SetAllDayEndAt(day.AddDate(0, 0, 1))
		}
		if recurring {
			evt.AddRrule("FREQ=WEEKLY;BYDAY=" + icsWeekday(day.Weekday()))
		}
	}

	buf := bytes.NewBufferString(cal.Serialize())
	return buf, "timetable.ics", nil
}

// entryDay 返回条目所在日期（当天零点）及是否为每周重复
func (s *exportService) entryDay(e *model.TimetableEntry, now time.Time) (time.Time, bool) {
	if e.Date != nil {
		d := *e.Date
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc), false
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	target := weekdayIndex(e.Day)
	offset := (target - int(today.Weekday()) + 7) % 7
	return today.AddDate(0, 0, offset), true
}

// 时间段支持 "09:00 - 10:00"、"9:00-10:30"、"9:00 AM - 10:00 AM"
var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM", "3PM", "3 PM"}

// parseTimeSlot 解析时间段为相对当天零点的起止偏移
func parseTimeSlot(slot string) (time.Duration, time.Duration, bool) {
	normalized := strings.NewReplacer("–", "-", "—", "-", " to ", "-").Replace(slot)
	parts := strings.Split(normalized, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}

	start, ok := parseClock(parts[0])
	if !ok {
		return 0, 0, false
	}
	end, ok := parseClock(parts[1])
	if !ok || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func parseClock(s string) (time.Duration, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
		}
	}
	return 0, false
}

func weekdayIndex(day string) int {
	for i := time.Sunday; i <= time.Saturday; i++ {
		if i.String() == day {
			return int(i)
		}
	}
	return int(time.Monday)
}

func icsWeekday(d time.Weekday) string {
	return strings.ToUpper(d.String()[:2])
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
