package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/queue-api/internal/config"
	"github.com/jwalitptl/queue-api/pkg/logger"
)

// SMTPService delivers mail through an SMTP relay, one connection per message.
type SMTPService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg config.SMTPConfig) *SMTPService {
	return &SMTPService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	msg := newMessage(s.from, to, subject, content)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email to %s: %w", to, ctx.Err())
	}
}

func newMessage(from, to, subject, content string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)
	return m
}

// LogService only logs outgoing mail. It is used when no SMTP host is
// configured.
type LogService struct {
	log *logger.Logger
}

func NewLogService(log *logger.Logger) *LogService {
	return &LogService{log: log}
}

func (s *LogService) SendCustom(_ context.Context, to string, subject string, _ string) error {
	s.log.Info("email delivery disabled, dropping message", "to", to, "subject", subject)
	return nil
}

// New picks the SMTP sender when cfg names a host.
func New(cfg config.SMTPConfig, log *logger.Logger) Service {
	if cfg.Enabled() {
		return NewSMTPService(cfg)
	}
	return NewLogService(log)
}
