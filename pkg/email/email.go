// Package email sends transactional email through Postmark. A noop
// sender stands in when Postmark is not configured, so development
// environments run without credentials.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrz1836/postmark"
)

var (
	ErrInvalidConfig = errors.New("email: invalid config")
	ErrSendFailed    = errors.New("email: failed to send")
)

// Config holds email service configuration. Empty tokens disable real
// sending.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@hyperhash.app"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@hyperhash.app"`
}

// Enabled reports whether Postmark credentials are configured.
func (c Config) Enabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}

// Message is one outbound transactional email.
type Message struct {
	To       string
	Subject  string
	BodyHTML string
	Tag      string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type postmarkSender struct {
	client *postmark.Client
	cfg    Config
}

// NewPostmarkSender creates a Postmark-backed sender.
func NewPostmarkSender(cfg Config) (Sender, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: postmark tokens are required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: sender email is required", ErrInvalidConfig)
	}
	return &postmarkSender{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		cfg:    cfg,
	}, nil
}

// Send implements Sender through Postmark's transactional API.
func (s *postmarkSender) Send(ctx context.Context, msg Message) error {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.cfg.SenderEmail,
		ReplyTo:    s.cfg.SupportEmail,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.BodyHTML,
		TrackOpens: true,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// NoopSender logs outbound messages instead of delivering them. Used when
// Postmark is not configured.
type NoopSender struct {
	log *slog.Logger
}

// NewNoopSender creates a sender that only logs.
func NewNoopSender(log *slog.Logger) *NoopSender {
	return &NoopSender{log: log}
}

// Send implements Sender.
func (s *NoopSender) Send(ctx context.Context, msg Message) error {
	s.log.InfoContext(ctx, "email sending disabled, message dropped",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("tag", msg.Tag))
	return nil
}
