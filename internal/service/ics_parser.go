package service

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"attendease/backend/config"
	"attendease/backend/internal/model"
)

// ── ICS 课表导入 ──────────────────────────────────────────────
//
// 职责：将 iCalendar (RFC 5545) 文件中的 VEVENT 转为导入记录，
// 之后与 CSV / XLSX 一样走 Upload 的校验与批量替换流程。
//
//   - SUMMARY → subject；DESCRIPTION 中 "Faculty:" 行或 ORGANIZER 的 CN → faculty
//   - DTSTART/DTEND 确定时间段 "HH:MM - HH:MM"，全天事件记为 "All day"
//   - 每周重复事件：weekday 模式下输出一行星期记录；
//     date 模式下按 COUNT / UNTIL / EXDATE 展开为逐次日期
//   - subject+date+day+slot 相同的记录合并
//   - course / semester 不在 ICS 中，由上传方指定
// ─────────────────────────────────────────────────────────────

const (
	icsMaxFileSize = 5 * 1024 * 1024 // 5MB
	icsAllDaySlot  = "All day"
	// 无 COUNT / UNTIL 的重复事件在 date 模式下展开的周数（约一个学期）
	icsDefaultWeeks   = 18
	icsMaxOccurrences = 60
)

var (
	ErrICSInvalid  = errors.New("ICS 文件格式无效")
	ErrICSNoEvents = errors.New("ICS 文件中没有课程事件")
)

// ICSImportOptions ICS 导入参数
type ICSImportOptions struct {
	Course   string
	Semester string
	Mode     string // date | weekday
	Location *time.Location
}

// icsRow ICS 解析中间结构
type icsRow struct {
	Date     string
	Day      string
	TimeSlot string
	Subject  string
	Faculty  string
}

// ParseICSUpload 解析 ICS 内容为导入记录
func ParseICSUpload(r io.Reader, opts ICSImportOptions) ([]interface{}, error) {
	cal, err := ics.ParseCalendar(io.LimitReader(r, icsMaxFileSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrICSInvalid, err)
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	// 阶段 1: 解析所有 VEVENT
	var rows []icsRow
	for _, evt := range cal.Events() {
		rows = append(rows, expandVEvent(evt, opts.Mode, loc)...)
	}
	if len(rows) == 0 {
		return nil, ErrICSNoEvents
	}

	// 阶段 2: 合并重复记录
	merged := mergeICSRows(rows)

	// 阶段 3: 转为与表格上传一致的记录
	result := make([]interface{}, 0, len(merged))
	for _, row := range merged {
		rec := map[string]interface{}{
			"subject":   row.Subject,
			"time_slot": row.TimeSlot,
			"faculty":   row.Faculty,
			"course":    opts.Course,
			"semester":  opts.Semester,
		}
		if row.Date != "" {
			rec["date"] = row.Date
		}
		if row.Day != "" {
			rec["day"] = row.Day
		}
		result = append(result, rec)
	}
	return result, nil
}

// expandVEvent 将单个 VEVENT 转为一条或多条记录
// 缺少 DTSTART 时仍输出记录，由行校验给出失败原因
func expandVEvent(evt *ics.VEvent, mode string, loc *time.Location) []icsRow {
	base := icsRow{
		Subject: strings.TrimSpace(propertyValue(evt, ics.ComponentPropertySummary)),
		Faculty: eventFaculty(evt),
	}

	start, allDay, err := parseICSDateTime(evt, ics.ComponentPropertyDtStart, loc)
	if err != nil {
		return []icsRow{base}
	}
	base.TimeSlot = eventTimeSlot(evt, start, allDay, loc)

	rule := parseRRule(propertyValue(evt, ics.ComponentPropertyRrule))
	if rule.freq != "WEEKLY" {
		base.Date = start.Format(model.DateLayout)
		base.Day = start.Weekday().String()
		return []icsRow{base}
	}

	if mode == config.ScheduleModeWeekday {
		base.Day = start.Weekday().String()
		return []icsRow{base}
	}

	dates := occurrenceDates(evt, start, rule, loc)
	rows := make([]icsRow, 0, len(dates))
	for _, d := range dates {
		row := base
		row.Date = d.Format(model.DateLayout)
		row.Day = d.Weekday().String()
		rows = append(rows, row)
	}
	return rows
}

// eventTimeSlot 由 DTSTART/DTEND 推出时间段；无 DTEND 时使用 DURATION，默认 1 小时
func eventTimeSlot(evt *ics.VEvent, start time.Time, allDay bool, loc *time.Location) string {
	if allDay {
		return icsAllDaySlot
	}
	end, _, err := parseICSDateTime(evt, ics.ComponentPropertyDtEnd, loc)
	if err != nil {
		dur, ok := parseICSDuration(propertyValue(evt, ics.ComponentPropertyDuration))
		if !ok {
			dur = time.Hour
		}
		end = start.Add(dur)
	}
	return start.Format("15:04") + " - " + end.Format("15:04")
}

// eventFaculty 优先读取 DESCRIPTION 中的 "Faculty:" 行，其次 ORGANIZER 的 CN
func eventFaculty(evt *ics.VEvent) string {
	for _, line := range strings.Split(propertyValue(evt, ics.ComponentPropertyDescription), "\n") {
		line = strings.TrimSpace(line)
		if len(line) > len("faculty:") && strings.EqualFold(line[:len("faculty:")], "faculty:") {
			return strings.TrimSpace(line[len("faculty:"):])
		}
	}
	if org := evt.GetProperty(ics.ComponentPropertyOrganizer); org != nil {
		if cn := org.ICalParameters[string(ics.ParameterCn)]; len(cn) > 0 {
			return strings.Trim(strings.TrimSpace(cn[0]), `"`)
		}
	}
	return ""
}

// occurrenceDates 根据 RRULE / EXDATE 生成每次上课的日期
func occurrenceDates(evt *ics.VEvent, start time.Time, rule rruleParams, loc *time.Location) []time.Time {
	exDates := parseExDates(evt, loc)

	interval := rule.interval
	if interval < 1 {
		interval = 1
	}
	limit := icsMaxOccurrences
	if rule.count > 0 && rule.count < limit {
		limit = rule.count
	}
	if rule.count == 0 && rule.until.IsZero() {
		limit = icsDefaultWeeks
	}

	var dates []time.Time
	current := start
	for n := 0; n < limit; n++ {
		if !rule.until.IsZero() && current.After(rule.until) {
			break
		}
		if !exDates[current.Format("20060102")] {
			dates = append(dates, current)
		}
		current = current.AddDate(0, 0, 7*interval)
	}
	return dates
}

// rruleParams RRULE 解析结果
type rruleParams struct {
	freq     string
	interval int
	count    int
	until    time.Time
}

// parseRRule 解析 RRULE 字符串（如 FREQ=WEEKLY;COUNT=16;INTERVAL=1）
func parseRRule(value string) rruleParams {
	r := rruleParams{interval: 1}
	for _, part := range strings.Split(value, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToUpper(kv[0]) {
		case "FREQ":
			r.freq = strings.ToUpper(kv[1])
		case "INTERVAL":
			r.interval, _ = strconv.Atoi(kv[1])
		case "COUNT":
			r.count, _ = strconv.Atoi(kv[1])
		case "UNTIL":
			t, err := time.Parse("20060102T150405Z", kv[1])
			if err != nil {
				// 仅日期的 UNTIL 包含当天
				if t, err = time.Parse("20060102", kv[1]); err == nil {
					t = t.Add(24*time.Hour - time.Second)
				}
			}
			r.until = t
		}
	}
	return r
}

// parseExDates 解析事件中所有 EXDATE（支持逗号分隔的多个值）
func parseExDates(evt *ics.VEvent, loc *time.Location) map[string]bool {
	exDates := make(map[string]bool)
	for _, prop := range evt.Properties {
		if prop.IANAToken != string(ics.ComponentPropertyExdate) {
			continue
		}
		for _, v := range strings.Split(prop.Value, ",") {
			if t, ok := parseICSValue(strings.TrimSpace(v), tzidOf(prop.ICalParameters), loc); ok {
				exDates[t.Format("20060102")] = true
			}
		}
	}
	return exDates
}

// mergeICSRows 合并相同课程的重复记录，保持首次出现的顺序
func mergeICSRows(rows []icsRow) []icsRow {
	seen := make(map[icsRow]bool, len(rows))
	result := make([]icsRow, 0, len(rows))
	for _, r := range rows {
		if seen[r] {
			continue
		}
		seen[r] = true
		result = append(result, r)
	}
	return result
}

// ── 辅助函数 ──

func propertyValue(evt *ics.VEvent, prop ics.ComponentProperty) string {
	if p := evt.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func tzidOf(params map[string][]string) string {
	for k, v := range params {
		if strings.ToUpper(k) == "TZID" && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// parseICSDateTime 从 VEVENT 中解析日期时间属性，allDay 表示仅有日期
func parseICSDateTime(evt *ics.VEvent, propName ics.ComponentProperty, loc *time.Location) (time.Time, bool, error) {
	prop := evt.GetProperty(propName)
	if prop == nil {
		return time.Time{}, false, fmt.Errorf("missing property %s", propName)
	}
	t, ok := parseICSValue(prop.Value, tzidOf(prop.ICalParameters), loc)
	if !ok {
		return time.Time{}, false, fmt.Errorf("无法解析日期: %s", prop.Value)
	}
	return t, len(prop.Value) == len("20060102"), nil
}

// parseICSValue 支持 UTC、带 TZID 的本地时间、浮动时间与纯日期
func parseICSValue(val, tzid string, loc *time.Location) (time.Time, bool) {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		t, err := time.Parse(layout, val)
		if err != nil {
			continue
		}
		if strings.HasSuffix(layout, "Z") {
			return t.In(loc), true
		}
		if tzid != "" {
			if tzLoc, err := time.LoadLocation(tzid); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, tzLoc).In(loc), true
			}
		}
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
	}
	return time.Time{}, false
}

// parseICSDuration 解析 PT1H30M 形式的时长
func parseICSDuration(val string) (time.Duration, bool) {
	val = strings.ToUpper(strings.TrimSpace(val))
	if !strings.HasPrefix(val, "PT") {
		return 0, false
	}
	d, err := time.ParseDuration(strings.ToLower(strings.TrimPrefix(val, "PT")))
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
