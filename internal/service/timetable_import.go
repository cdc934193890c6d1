package service

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"attendease/backend/config"
	"attendease/backend/internal/model"
)

// ════════════════════════════════════════════════════════════
// 课表导入流水线：行归一化 → 行校验 → 教师解析 → 批量替换
// ════════════════════════════════════════════════════════════

// ── 行归一化 ──

// NormalizedRow 归一化后的原始行，缺失字段为空串
type NormalizedRow struct {
	Date     string
	Day      string
	TimeSlot string
	Subject  string
	Faculty  string
	Course   string
	Semester string
}

// 每个标准字段可接受的列名写法，按顺序取第一个存在的键
var (
	dateKeys     = []string{"Date", "date"}
	dayKeys      = []string{"Day", "day"}
	timeSlotKeys = []string{"Time Slot", "time slot", "time_slot", "TimeSlot", "timeslot"}
	subjectKeys  = []string{"Subject", "subject", "subject_name", "Subject Name"}
	facultyKeys  = []string{"Faculty", "faculty", "faculty_name", "Faculty Name"}
	courseKeys   = []string{"Course", "course"}
	semesterKeys = []string{"Semester", "semester"}
)

// NormalizeRow 将任意一条记录映射为标准字段
// 非记录类型（nil、基本类型、数组）返回 ok=false
func NormalizeRow(raw interface{}) (NormalizedRow, bool) {
	var rec map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		rec = v
	case map[string]string:
		rec = make(map[string]interface{}, len(v))
		for k, s := range v {
			rec[k] = s
		}
	default:
		return NormalizedRow{}, false
	}

	return NormalizedRow{
		Date:     pick(rec, dateKeys),
		Day:      pick(rec, dayKeys),
		TimeSlot: pick(rec, timeSlotKeys),
		Subject:  pick(rec, subjectKeys),
		Faculty:  pick(rec, facultyKeys),
		Course:   pick(rec, courseKeys),
		Semester: pick(rec, semesterKeys),
	}, true
}

// pick 返回第一个存在的键对应的值；null 与不可表示为文本的值视为不存在
func pick(rec map[string]interface{}, keys []string) string {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok {
			continue
		}
		if s, ok := stringify(v); ok {
			return s
		}
	}
	return ""
}

func stringify(v interface{}) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// ── 行校验 ──

// ValidatedEntry 通过校验的课表行
type ValidatedEntry struct {
	Date        *time.Time
	Day         string
	TimeSlot    string
	SubjectName string
	FacultyName string
	Course      string
	Semester    int
}

// rowFields 参与 validator 校验的字段
type rowFields struct {
	Day      string `validate:"required,weekday"`
	TimeSlot string `validate:"required,max=50"`
	Subject  string `validate:"required,max=100"`
	Faculty  string `validate:"max=100"`
	Course   string `validate:"required,max=100"`
	Semester int    `validate:"min=1,max=32767"`
}

var fieldLabels = map[string]string{
	"Day":      "day",
	"TimeSlot": "time slot",
	"Subject":  "subject",
	"Faculty":  "faculty",
	"Course":   "course",
	"Semester": "semester",
}

// 接受的日期格式
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var weekdayNames = map[string]string{
	"sunday": "Sunday", "sun": "Sunday",
	"monday": "Monday", "mon": "Monday",
	"tuesday": "Tuesday", "tue": "Tuesday",
	"wednesday": "Wednesday", "wed": "Wednesday",
	"thursday": "Thursday", "thu": "Thursday",
	"friday": "Friday", "fri": "Friday",
	"saturday": "Saturday", "sat": "Saturday",
}

// RowValidator 课表行校验器，按排课模式决定日期或星期字段的要求
type RowValidator struct {
	mode     string
	validate *validator.Validate
}

// NewRowValidator 创建行校验器
func NewRowValidator(mode string) *RowValidator {
	v := validator.New()
	err := v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := weekdayNames[strings.ToLower(fl.Field().String())]
		return ok
	})
	if err != nil {
		panic(fmt.Sprintf("注册 weekday 校验规则失败: %v", err))
	}
	return &RowValidator{mode: mode, validate: v}
}

// Validate 校验单行，返回可入库的条目或可读的失败原因
func (v *RowValidator) Validate(row NormalizedRow) (*ValidatedEntry, error) {
	entry := &ValidatedEntry{}

	day := strings.TrimSpace(row.Day)
	if v.mode == config.ScheduleModeDate {
		raw := strings.TrimSpace(row.Date)
		if raw == "" {
			return nil, errors.New("date 不能为空")
		}
		d, err := ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("date %q 不是有效日期", raw)
		}
		entry.Date = &d
		day = d.Weekday().String()
	}

	semester, err := parseSemester(row.Semester)
	if err != nil {
		return nil, err
	}

	fields := rowFields{
		Day:      day,
		TimeSlot: strings.TrimSpace(row.TimeSlot),
		Subject:  strings.TrimSpace(row.Subject),
		Faculty:  strings.TrimSpace(row.Faculty),
		Course:   strings.TrimSpace(row.Course),
		Semester: semester,
	}
	if err := v.validate.Struct(fields); err != nil {
		return nil, describeValidation(err)
	}

	entry.Day = weekdayNames[strings.ToLower(fields.Day)]
	entry.TimeSlot = fields.TimeSlot
	entry.SubjectName = fields.Subject
	entry.FacultyName = fields.Faculty
	entry.Course = fields.Course
	entry.Semester = fields.Semester
	return entry, nil
}

// ParseDate 按支持的格式依次解析日期
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期 %q", s)
}

// NormalizeWeekday 将星期名规范为 Monday 形式，无法识别时返回 false
func NormalizeWeekday(s string) (string, bool) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	return d, ok
}

// maxSemester 与 semester SMALLINT 列的上限一致
const maxSemester = math.MaxInt16

func parseSemester(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("semester 不能为空")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return 0, errors.New("semester 必须为正整数")
		}
		if n > maxSemester {
			return 0, fmt.Errorf("semester %d 超出范围", n)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("semester %q 不是整数", s)
	}
	if f < 1 {
		return 0, errors.New("semester 必须为正整数")
	}
	if f > maxSemester {
		return 0, fmt.Errorf("semester %q 超出范围", s)
	}
	return int(f), nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	label := fieldLabels[fe.Field()]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s 不能为空", label)
	case "weekday":
		return fmt.Errorf("day %q 不是有效的星期", fe.Value())
	case "max":
		return fmt.Errorf("%s 长度不能超过 %s", label, fe.Param())
	case "min":
		return fmt.Errorf("%s 必须为正整数", label)
	default:
		return fmt.Errorf("%s 无效", label)
	}
}

// ── 教师解析 ──

// FacultyDirectory 教师姓名 → 用户 ID 索引，每次导入重新构建
// 匹配仅忽略大小写与首尾空白；同名教师视为有歧义，不做匹配
type FacultyDirectory struct {
	byName    map[string]string
	ambiguous map[string]bool
}

// NewFacultyDirectory 根据教师用户列表构建索引
func NewFacultyDirectory(faculty []model.User) *FacultyDirectory {
	d := &FacultyDirectory{
		byName:    make(map[string]string, len(faculty)),
		ambiguous: make(map[string]bool),
	}
	for _, u := range faculty {
		key := facultyKey(u.Name)
		if key == "" {
			continue
		}
		if existing, ok := d.byName[key]; ok && existing != u.UserID {
			d.ambiguous[key] = true
			continue
		}
		d.byName[key] = u.UserID
	}
	for key := range d.ambiguous {
		delete(d.byName, key)
	}
	return d
}

// Resolve 按姓名查找教师 ID，未找到返回空串
func (d *FacultyDirectory) Resolve(name string) string {
	return d.byName[facultyKey(name)]
}

// IsAmbiguous 该姓名是否对应多名教师
func (d *FacultyDirectory) IsAmbiguous(name string) bool {
	return d.ambiguous[facultyKey(name)]
}

func facultyKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ── 文件解析 ──

var (
	ErrUploadUnsupportedFormat = errors.New("仅支持 .csv、.xlsx 或 .ics 文件")
	ErrUploadNoHeader          = errors.New("文件缺少表头行")
	ErrUploadParseFailed       = errors.New("文件解析失败")
)

// ParseUploadFile 将 CSV / XLSX 文件解析为以表头为键的记录列表
func ParseUploadFile(filename string, r io.Reader) ([]interface{}, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return parseCSV(r)
	case strings.HasSuffix(lower, ".xlsx"):
		return parseXLSX(r)
	default:
		return nil, ErrUploadUnsupportedFormat
	}
}

func parseCSV(r io.Reader) ([]interface{}, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: CSV %v", ErrUploadParseFailed, err)
	}
	return recordsToRows(records)
}

func parseXLSX(r io.Reader) ([]interface{}, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: Excel %v", ErrUploadParseFailed, err)
	}
	defer f.Close()

	records, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("%w: 读取工作表 %v", ErrUploadParseFailed, err)
	}
	return recordsToRows(records)
}

// recordsToRows 首行为表头，其余每行按列名组装为 map；全空行跳过
func recordsToRows(records [][]string) ([]interface{}, error) {
	if len(records) == 0 {
		return nil, ErrUploadNoHeader
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([]interface{}, 0, len(records)-1)
	for _, rec := range records[1:] {
		blank := true
		row := make(map[string]interface{}, len(header))
		for i, h := range header {
			if h == "" || i >= len(rec) {
				continue
			}
			row[h] = rec[i]
			if strings.TrimSpace(rec[i]) != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}
