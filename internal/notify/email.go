package notify

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
)

// EmailConfig holds Postmark transactional-email credentials. Grounded on
// the pack's dmitrymomot-foundation postmark integration.
type EmailConfig struct {
	ServerToken string
	FromAddress string
}

// EmailSender delivers notifications as transactional email via Postmark.
type EmailSender struct {
	client *postmark.Client
	from   string
}

// NewEmailSender builds an EmailSender. A zero-value ServerToken yields a
// sender that reports itself unavailable rather than erroring, so callers
// can wire it unconditionally and let Dispatch degrade gracefully.
func NewEmailSender(cfg EmailConfig) *EmailSender {
	if cfg.ServerToken == "" {
		return &EmailSender{}
	}
	return &EmailSender{
		client: postmark.NewClient(cfg.ServerToken, ""),
		from:   cfg.FromAddress,
	}
}

func (e *EmailSender) Available() bool {
	return e.client != nil && e.from != ""
}

func (e *EmailSender) Send(ctx context.Context, msg Message) error {
	to, _ := msg.Context["email_address"].(string)
	if to == "" {
		return fmt.Errorf("notify: email message missing email_address in context")
	}

	resp, err := e.client.SendEmail(ctx, postmark.Email{
		From:     e.from,
		To:       to,
		Subject:  msg.Subject,
		TextBody: msg.Body,
		Tag:      "ai-task-notification",
	})
	if err != nil {
		return fmt.Errorf("notify: postmark send failed: %w", err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("notify: postmark error %d: %s", resp.ErrorCode, resp.Message)
	}
	return nil
}
