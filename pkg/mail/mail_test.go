package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"attendease/backend/config"
)

func newTestSendgrid(host string) *SendgridSender {
	s := NewSendgridSender(&config.MailConfig{
		Provider:       "sendgrid",
		SendgridAPIKey: "SG.test",
		From:           "no-reply@attendease.local",
		FromName:       "AttendEase",
	}, zap.NewNop())
	s.host = host
	return s
}

func TestSendgridSender_Send(t *testing.T) {
	var body map[string]interface{}
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := newTestSendgrid(srv.URL)
	err := s.Send(context.Background(), Message{
		ToAddress: "asha@college.edu",
		ToName:    "Asha",
		Subject:   "申请已通过",
		Text:      "您的缺课申请已通过",
	})
	if err != nil {
		t.Fatalf("Send 失败: %v", err)
	}
	if auth != "Bearer SG.test" {
		t.Errorf("Authorization 头不符: %s", auth)
	}
	if path != endpoint {
		t.Errorf("请求路径不符: %s", path)
	}
	from, _ := body["from"].(map[string]interface{})
	if from["email"] != "no-reply@attendease.local" {
		t.Errorf("发件人不符: %v", body["from"])
	}
	contents, _ := body["content"].([]interface{})
	if len(contents) != 1 {
		t.Errorf("仅纯文本时应只有 1 段内容，实际 %d", len(contents))
	}
}

func TestSendgridSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	s := newTestSendgrid(srv.URL)
	if err := s.Send(context.Background(), Message{ToAddress: "a@b.c", Subject: "x", Text: "y"}); err == nil {
		t.Error("4xx 响应应返回错误")
	}
}

func TestNewSender_Provider(t *testing.T) {
	if _, ok := NewSender(&config.MailConfig{Provider: "log"}, zap.NewNop()).(*LogSender); !ok {
		t.Error("provider=log 应返回 LogSender")
	}
	if _, ok := NewSender(&config.MailConfig{Provider: "sendgrid", SendgridAPIKey: "k"}, zap.NewNop()).(*SendgridSender); !ok {
		t.Error("provider=sendgrid 应返回 SendgridSender")
	}
}
