package service

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/xxxsen/rentdesk/internal/config"
	"github.com/xxxsen/rentdesk/internal/job"
)

type smtpSender struct {
	cfg config.MailConfig
}

// NewEmailSender returns the SMTP sender used by the email job handlers.
func NewEmailSender(cfg config.MailConfig) job.Sender {
	return &smtpSender{cfg: cfg}
}

func (s *smtpSender) Send(to, subject, body string) error {
	from := strings.TrimSpace(s.cfg.From)
	if s.cfg.Host == "" || s.cfg.Port == 0 || from == "" {
		return fmt.Errorf("%w: mail not configured", job.ErrPermanent)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := []byte("From: " + from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" + body)
	return smtp.SendMail(addr, auth, from, []string{to}, msg)
}
