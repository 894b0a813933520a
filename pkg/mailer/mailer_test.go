package mailer

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"contest-review/config"
)

func TestSend_NotConfigured(t *testing.T) {
	cases := []config.MailConfig{
		{},
		{SMTPHost: "smtp.example.com", SMTPPort: 587},
		{From: "noreply@example.com"},
	}
	for _, cfg := range cases {
		s := NewSMTPSender(&cfg, zap.NewNop())
		if err := s.Send(context.Background(), "a@example.com", "主题", "<p>正文</p>"); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("配置 %+v 期望 ErrNotConfigured，实际: %v", cfg, err)
		}
	}
}

func TestSend_CanceledContext(t *testing.T) {
	cfg := config.MailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587, From: "noreply@example.com"}
	s := NewSMTPSender(&cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, "a@example.com", "主题", "<p>正文</p>"); !errors.Is(err, context.Canceled) {
		t.Errorf("已取消的 context 应直接返回，实际: %v", err)
	}
}
