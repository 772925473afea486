package notifications

import (
	"context"
	"fmt"
	"html"

	"github.com/resendlabs/resend-go"
	"go.uber.org/zap"
)

// Message is a single outgoing e-mail.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Sender delivers e-mails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender sends e-mails through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a sender using apiKey. from is "Name <address>".
func NewResendSender(apiKey, from string) (*ResendSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	return &ResendSender{client: resend.NewClient(apiKey), from: from}, nil
}

// Send implements Sender. resend-go v1 has no context-aware send, so ctx is
// checked before the request is issued; a request already in flight runs to
// completion.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send cancelled: %w", err)
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    "<pre>" + html.EscapeString(msg.Text) + "</pre>",
		Text:    msg.Text,
	}
	if _, err := s.client.Emails.Send(params); err != nil {
		return fmt.Errorf("send via resend: %w", err)
	}
	return nil
}

// LogSender only logs e-mails. It is used when no provider is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}
