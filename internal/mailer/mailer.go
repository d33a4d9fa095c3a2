// Package mailer delivers verification codes to users by email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/wneessen/go-mail"
)

// Mailer sends a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	config SMTPConfig
	send   func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPMailer checks the client options once and returns a mailer that
// dials a fresh connection for every message.
func NewSMTPMailer(config SMTPConfig) (*SMTPMailer, error) {
	opts := clientOptions(config)
	if _, err := mail.NewClient(config.Host, opts...); err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	m := &SMTPMailer{config: config}
	m.send = func(ctx context.Context, msg *mail.Msg) error {
		client, err := mail.NewClient(config.Host, opts...)
		if err != nil {
			return err
		}
		return client.DialAndSendWithContext(ctx, msg)
	}
	return m, nil
}

func clientOptions(config SMTPConfig) []mail.Option {
	opts := []mail.Option{
		mail.WithPort(config.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(config.Username),
			mail.WithPassword(config.Password),
		)
	}
	return opts
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return errors.New("invalid header value")
	}

	msg := mail.NewMsg()
	if err := msg.From(m.config.From); err != nil {
		return fmt.Errorf("sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetMessageID()
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	log.Printf("[MAIL] Sent %q to %s", subject, to)
	return nil
}

// LogMailer writes messages to the process log instead of sending them.
// Used in development when no SMTP host is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, body string) error {
	log.Printf("[MAIL] (log only) to=%s subject=%q body=%q", to, subject, body)
	return nil
}
