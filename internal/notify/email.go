// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/tomtom215/warden/internal/config"
)

// EmailChannel sends plain-text alerts over SMTP.
type EmailChannel struct {
	cfg        config.EmailConfig
	recipients RecipientSource
	timeout    time.Duration
	useTLS     bool
}

// NewEmailChannel validates cfg. Messages go to cfg.To plus the email of every
// principal in the message audience, when recipients is non-nil.
func NewEmailChannel(cfg config.EmailConfig, recipients RecipientSource) (*EmailChannel, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: SMTP host is required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid SMTP port %d", ErrInvalidConfig, cfg.Port)
	}
	if !strings.Contains(cfg.From, "@") {
		return nil, fmt.Errorf("%w: SMTP from address is required", ErrInvalidConfig)
	}
	return &EmailChannel{
		cfg:        cfg,
		recipients: recipients,
		timeout:    30 * time.Second,
		useTLS:     cfg.Port != 25,
	}, nil
}

// Name returns ChannelEmail.
func (c *EmailChannel) Name() string { return ChannelEmail }

// Send mails msg to each resolved address.
func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	to, err := c.resolve(ctx, msg.Audience)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		return nil
	}

	var errs []error
	for _, addr := range to {
		if err := c.sendSMTP(ctx, addr, buildEmail(c.cfg.From, addr, msg)); err != nil {
			errs = append(errs, fmt.Errorf("mail %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func (c *EmailChannel) resolve(ctx context.Context, roles []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	for _, addr := range c.cfg.To {
		add(addr)
	}
	if c.recipients != nil && len(roles) > 0 {
		principals, err := c.recipients.PrincipalsWithRoles(ctx, roles)
		if err != nil {
			return nil, fmt.Errorf("resolve recipients: %w", err)
		}
		for _, p := range principals {
			add(p.Email)
		}
	}
	return out, nil
}

func buildEmail(from, to string, msg Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: Warden <%s>\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: [%s] %s\r\n", strings.ToUpper(severityOrInfo(msg.Severity)), msg.Title)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	sb.WriteString("\r\n")
	return sb.String()
}

func severityOrInfo(s string) string {
	if s == "" {
		return SeverityInfo
	}
	return s
}

func (c *EmailChannel) sendSMTP(ctx context.Context, to, body string) error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }() //nolint:errcheck // best effort
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // best effort
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }() //nolint:errcheck // best effort

	if c.useTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("start TLS: %w", err)
			}
		}
	}
	if c.cfg.Username != "" && c.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	_ = client.Quit() //nolint:errcheck // message already accepted
	return nil
}
