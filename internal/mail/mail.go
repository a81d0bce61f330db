// Package mail renders and delivers account emails (confirmation and password reset codes).
package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Message is a rendered email ready to send.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends multipart (text + HTML) mail over SMTP using gomail.
type SMTPSender struct {
	dialer dialer
	from   string
}

// NewSMTPSender returns an SMTP sender. user and password may be empty for unauthenticated relays.
func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	return &SMTPSender{dialer: gomail.NewDialer(host, port, user, password), from: from}
}

// Send builds the MIME message and delivers it. gomail does not take a context; ctx is only
// checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mail: send %q: %w", msg.Subject, err)
	}
	return nil
}

// LogSender logs messages instead of sending them. Used when SMTP is not configured.
type LogSender struct {
	log *zap.Logger
}

// NewLogSender returns a sender that writes each message to log at info level.
func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

// Send logs the recipient, subject and text body.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("mail: not sent (SMTP not configured)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody),
	)
	return nil
}
