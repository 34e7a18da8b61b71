package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	To       string
}

// Email sends plain-text alerts over SMTP. With incomplete settings
// it degrades to a logged no-op.
type Email struct {
	cfg    EmailConfig
	logger *zap.Logger
}

// NewEmail creates an email notifier.
func NewEmail(cfg EmailConfig, logger *zap.Logger) *Email {
	return &Email{cfg: cfg, logger: logger}
}

// Notify sends the alert to the configured recipient.
func (e *Email) Notify(ctx context.Context, subject, message string) error {
	if e.cfg.Host == "" || e.cfg.Username == "" || e.cfg.Password == "" || e.cfg.To == "" {
		e.logger.Warn("email configuration incomplete, alert not sent")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.cfg.Username, e.cfg.To, subject, message)

	if err := smtp.SendMail(addr, auth, e.cfg.Username, []string{e.cfg.To}, []byte(body)); err != nil {
		return fmt.Errorf("failed to send email alert: %w", err)
	}
	return nil
}
