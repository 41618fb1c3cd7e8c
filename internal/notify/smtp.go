// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"
)

// SMTPConfig configures SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPTransport sends mail through an SMTP relay using STARTTLS when offered.
type SMTPTransport struct {
	client *mail.Client
	from   Sender
}

// NewSMTPTransport creates an SMTPTransport. Authentication is enabled only
// when a username is configured.
func NewSMTPTransport(cfg SMTPConfig, from Sender) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, oops.Code("NOTIFY_SMTP_INVALID").Errorf("smtp host is required")
	}
	if from.Email == "" {
		return nil, oops.Code("NOTIFY_SMTP_INVALID").Errorf("sender email is required")
	}

	opts := []mail.Option{mail.WithTLSPortPolicy(mail.TLSOpportunistic)}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("NOTIFY_SMTP_INVALID").With("host", cfg.Host).Wrap(err)
	}
	return &SMTPTransport{client: client, from: from}, nil
}

// Send delivers msg.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m, err := buildMIME(t.from, msg)
	if err != nil {
		return err
	}
	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("NOTIFY_SMTP_FAILED").With("operation", "dial and send").Wrap(err)
	}
	return nil
}

// buildMIME assembles a multipart/alternative message with the text part
// first so clients prefer HTML when they can render it.
func buildMIME(from Sender, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(from.Name, from.Email); err != nil {
		return nil, oops.Code("NOTIFY_INVALID_ADDRESS").With("field", "from").Wrap(errRejected(err))
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("NOTIFY_INVALID_ADDRESS").With("field", "to").Wrap(errRejected(err))
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}
