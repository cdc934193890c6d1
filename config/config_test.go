package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:    ServerConfig{Port: 8080},
		Auth:      AuthConfig{JWTSecret: "0123456789abcdef0123"},
		Mail:      MailConfig{Provider: "log"},
		Timetable: TimetableConfig{ScheduleMode: ScheduleModeDate},
		Request:   RequestConfig{AdminQueueID: "admin-queue"},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("期望校验通过，实际: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := map[string]func(c *Config){
		"空密钥":         func(c *Config) { c.Auth.JWTSecret = "" },
		"密钥过短":        func(c *Config) { c.Auth.JWTSecret = "short" },
		"端口越界":        func(c *Config) { c.Server.Port = 70000 },
		"未知排课模式":      func(c *Config) { c.Timetable.ScheduleMode = "monthly" },
		"sendgrid 缺密钥": func(c *Config) { c.Mail.Provider = "sendgrid" },
		"未知邮件通道":      func(c *Config) { c.Mail.Provider = "smtp" },
		"管理员队列为空":     func(c *Config) { c.Request.AdminQueueID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("期望校验失败")
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
auth:
  jwt_secret: "file-secret-value-0123456789"
timetable:
  schedule_mode: weekday
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	t.Setenv("ATTEND_REQUEST_ADMIN_QUEUE_ID", "office")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 失败: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("期望 port=9090，实际=%d", cfg.Server.Port)
	}
	if cfg.Timetable.ScheduleMode != ScheduleModeWeekday {
		t.Errorf("期望 schedule_mode=weekday，实际=%s", cfg.Timetable.ScheduleMode)
	}
	if cfg.Request.AdminQueueID != "office" {
		t.Errorf("环境变量应覆盖默认值，实际=%s", cfg.Request.AdminQueueID)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Errorf("期望默认 access_token_ttl=15m，实际=%v", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Timetable.MaxUploadRows != 2000 {
		t.Errorf("期望默认 max_upload_rows=2000，实际=%d", cfg.Timetable.MaxUploadRows)
	}
}
