package mailer

import (
	"gopkg.in/gomail.v2"

	"github.com/deptconnect/deptconnect-api/pkg/config"
)

// Mailer delivers transactional email. Callers treat delivery as
// fire-and-forget; failures are logged by the dispatch queue, never
// surfaced to the HTTP caller.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTP sends mail through a plain SMTP relay.
type SMTP struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTP builds a mailer from SMTP settings.
func NewSMTP(cfg config.SMTPConfig) *SMTP {
	return &SMTP{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send composes and delivers a single plain-text message.
func (s *SMTP) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return s.dialer.DialAndSend(msg)
}
