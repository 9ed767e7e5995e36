// Package mail hands rendered digests to an SMTP relay.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
)

// ErrInvalidAddress marks an e-mail that no retry can deliver.
var ErrInvalidAddress = errors.New("mail: invalid address")

type Email struct {
	FromName string
	From     string
	To       string
	Subject  string
	HTMLBody string
}

// Sender transmits one e-mail and returns the Message-ID it was sent with.
type Sender interface {
	Send(ctx context.Context, e Email) (string, error)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of "starttls" (default), "tls" or "none".
	TLS string
}

type SMTPSender struct {
	cfg SMTPConfig
}

var _ Sender = (*SMTPSender)(nil)

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Build assembles the MIME message without sending it.
func Build(e Email) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if e.FromName != "" {
		if err := m.FromFormat(e.FromName, e.From); err != nil {
			return nil, fmt.Errorf("%w: from %q: %v", ErrInvalidAddress, e.From, err)
		}
	} else if err := m.From(e.From); err != nil {
		return nil, fmt.Errorf("%w: from %q: %v", ErrInvalidAddress, e.From, err)
	}
	if err := m.To(e.To); err != nil {
		return nil, fmt.Errorf("%w: to %q: %v", ErrInvalidAddress, e.To, err)
	}
	m.Subject(e.Subject)
	m.SetBodyString(gomail.TypeTextHTML, e.HTMLBody)
	m.SetMessageID()
	m.SetDate()
	return m, nil
}

func messageID(m *gomail.Msg) string {
	if ids := m.GetGenHeader(gomail.HeaderMessageID); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{gomail.WithPort(s.cfg.Port)}

	switch s.cfg.TLS {
	case "none":
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	case "tls":
		opts = append(opts, gomail.WithSSL())
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}

	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// Send fails hard on any transport error; retries are left to the queue.
func (s *SMTPSender) Send(ctx context.Context, e Email) (string, error) {
	m, err := Build(e)
	if err != nil {
		return "", err
	}

	client, err := gomail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return "", fmt.Errorf("mail: new client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("mail: send to %s: %w", e.To, err)
	}
	return messageID(m), nil
}

// LogSender writes e-mails to the log instead of sending them. It backs
// dry runs and local development.
type LogSender struct {
	Logger *slog.Logger
}

var _ Sender = (*LogSender)(nil)

func (s *LogSender) Send(_ context.Context, e Email) (string, error) {
	m, err := Build(e)
	if err != nil {
		return "", err
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := messageID(m)
	logger.Info("dry-run e-mail", "message_id", id, "to", e.To, "subject", e.Subject, "bytes", len(e.HTMLBody))
	return id, nil
}
