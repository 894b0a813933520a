package mailer

import (
	"context"
	"crypto/tls"
	"errors"

	mail "github.com/go-mail/mail/v2"
	"go.uber.org/zap"

	"contest-review/config"
)

// ErrNotConfigured SMTP 未配置（缺少 host 或 from）
var ErrNotConfigured = errors.New("SMTP 未配置（mail.smtp_host / mail.from）")

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPSender 基于 go-mail 的 SMTP 发送器
type SMTPSender struct {
	cfg    *config.MailConfig
	dialer *mail.Dialer
	logger *zap.Logger
}

// NewSMTPSender 创建 SMTP 发送器
// 587 端口强制 STARTTLS；SkipTLSVerify 仅用于本地开发
func NewSMTPSender(cfg *config.MailConfig, logger *zap.Logger) *SMTPSender {
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.SMTPHost,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	return &SMTPSender{cfg: cfg, dialer: d, logger: logger}
}

// Send 发送一封 HTML 邮件
// SMTP 层错误原样返回（*textproto.Error），由调用方的重试策略区分 4xx/5xx
func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	if s.cfg.SMTPHost == "" || s.cfg.From == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Warn("SMTP 发送失败", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}
