package logger

import (
	"fmt"
	"os"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"attendease/backend/config"
)

// NewLogger 根据配置初始化 Zap 日志实例
// 配置了 rollbar_token 时，Error 及以上级别的日志会同步上报 Rollbar
func NewLogger(cfg *config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	switch cfg.Format {
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		zapCfg = zap.NewProductionConfig()
	}

	// 解析日志级别
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 %q: %w", cfg.Level, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	opts := []zap.Option{}
	if cfg.RollbarToken != "" {
		rollbar.SetToken(cfg.RollbarToken)
		rollbar.SetEnvironment(cfg.Environment)
		if host, err := os.Hostname(); err == nil {
			rollbar.SetServerHost(host)
		}
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, NewRollbarCore(zapcore.ErrorLevel))
		}))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("初始化日志器失败: %w", err)
	}

	return logger, nil
}

// ── Rollbar ──

// reporter 上报函数，测试中可替换
type reporter func(level zapcore.Level, msg string, extras map[string]interface{})

func rollbarReport(level zapcore.Level, msg string, extras map[string]interface{}) {
	if level >= zapcore.DPanicLevel {
		rollbar.Critical(msg, extras)
		return
	}
	rollbar.Error(msg, extras)
}

// RollbarCore 将达到阈值的日志条目转发至 Rollbar
type RollbarCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
	report reporter
}

// NewRollbarCore 创建 Rollbar 日志核心
func NewRollbarCore(min zapcore.Level) *RollbarCore {
	return &RollbarCore{LevelEnabler: min, report: rollbarReport}
}

func (c *RollbarCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *RollbarCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *RollbarCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	if ent.Caller.Defined {
		enc.Fields["caller"] = ent.Caller.TrimmedPath()
	}
	c.report(ent.Level, ent.Message, enc.Fields)
	return nil
}

func (c *RollbarCore) Sync() error {
	rollbar.Wait()
	return nil
}
