package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"attendease/backend/config"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// Message 一封待发送的邮件
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	Text      string
	HTML      string
}

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender 根据配置选择发送通道
func NewSender(cfg *config.MailConfig, logger *zap.Logger) Sender {
	if cfg.Provider == "sendgrid" {
		return NewSendgridSender(cfg, logger)
	}
	return NewLogSender(logger)
}

// ── SendGrid ──

// SendgridSender 通过 SendGrid v3 API 发送邮件
type SendgridSender struct {
	key    string
	host   string
	from   *sgmail.Email
	logger *zap.Logger
}

// NewSendgridSender 创建 SendGrid 发送器
func NewSendgridSender(cfg *config.MailConfig, logger *zap.Logger) *SendgridSender {
	return &SendgridSender{
		key:    cfg.SendgridAPIKey,
		host:   defaultHost,
		from:   sgmail.NewEmail(cfg.FromName, cfg.From),
		logger: logger,
	}
}

// Send 同步发送邮件，状态码 >= 400 视为失败
func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, endpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("发送邮件失败: status=%d body=%s", res.StatusCode, res.Body)
	}

	s.logger.Debug("邮件已发送", zap.String("to", msg.ToAddress), zap.String("subject", msg.Subject))
	return nil
}

func (s *SendgridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = "[AttendEase] " + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

// ── 日志通道 ──

// LogSender 仅记录日志，不真正发送（开发环境）
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender 创建日志发送器
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send 将邮件内容写入日志
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("邮件（日志通道）",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}
