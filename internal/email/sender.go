// Package email sends the platform's notification e-mails over SMTP.
package email

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"corridor-platform/internal/config"
)

// Sender delivers one HTML message
type Sender interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends mail through a single SMTP relay
type SMTPSender struct {
	config config.SMTPConfig
	auth   smtp.Auth
}

// NewSMTPSender creates a sender; credentials are optional
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.User != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		config: cfg,
		auth:   auth,
	}
}

// SendMail sends an HTML message. to may carry a display name.
func (s *SMTPSender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rcpt, err := mail.ParseAddress(sanitizeHeader(to))
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	body := buildMessage(s.fromHeader(), rcpt.String(), subject, htmlBody, time.Now())

	if s.auth != nil {
		return smtp.SendMail(addr, s.auth, s.config.From, []string{rcpt.Address}, body)
	}

	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(rcpt.Address); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return c.Quit()
}

func (s *SMTPSender) fromHeader() string {
	if strings.TrimSpace(s.config.FromName) == "" {
		return s.config.From
	}
	return (&mail.Address{Name: s.config.FromName, Address: s.config.From}).String()
}

func buildMessage(from, to, subject, htmlBody string, date time.Time) []byte {
	lines := []string{
		"From: " + sanitizeHeader(from),
		"To: " + sanitizeHeader(to),
		"Subject: " + sanitizeHeader(subject),
		"Date: " + date.Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"",
		htmlBody,
	}
	return []byte(strings.Join(lines, "\r\n"))
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
