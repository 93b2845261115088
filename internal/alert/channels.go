package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
)

// LogSender writes alerts through the structured logger — always
// available, and the channel every built-in rule defaults to.
type LogSender struct {
	log *zap.SugaredLogger
}

func NewLogSender() *LogSender {
	return &LogSender{log: logging.Component("alert.log")}
}

func (s *LogSender) Send(a Alert) error {
	s.log.Warnw("alert fired", "rule", a.RuleName, "severity", a.Severity, "message", a.Message, "alert_id", a.ID)
	return nil
}

// ConsoleSender writes a plain line to stdout, for local/dev visibility
// distinct from structured log output.
type ConsoleSender struct{}

func (ConsoleSender) Send(a Alert) error {
	fmt.Printf("[ALERT %s] %s: %s\n", a.Severity, a.RuleName, a.Message)
	return nil
}

// WebhookSender POSTs the alert as JSON to a configured URL.
type WebhookSender struct {
	url    string
	client *http.Client
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *WebhookSender) Send(a Alert) error {
	if s.url == "" {
		return fmt.Errorf("alert: webhook sender has no url configured")
	}
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SlackSender posts a simple text message to a Slack incoming webhook URL —
// the same wire shape as WebhookSender, kept as a distinct type since
// Slack's payload envelope ({"text": ...}) differs from the raw Alert JSON.
type SlackSender struct {
	webhookURL string
	client     *http.Client
}

func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{webhookURL: webhookURL, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *SlackSender) Send(a Alert) error {
	if s.webhookURL == "" {
		return fmt.Errorf("alert: slack sender has no webhook configured")
	}
	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("[%s] %s: %s", a.Severity, a.RuleName, a.Message),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert: slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// EmailSender delivers alerts via the shared notify.EmailSender — an alert
// channel is just another caller of the NotificationDispatcher's email
// transport, avoiding a second Postmark client.
type EmailSender struct {
	send func(subject, body, to string) error
	to   []string
}

// NewEmailSender wraps a send function (typically notify's EmailSender.Send
// adapted to take an address) and the configured recipient list.
func NewEmailSender(send func(subject, body, to string) error, to []string) *EmailSender {
	return &EmailSender{send: send, to: to}
}

func (s *EmailSender) Send(a Alert) error {
	if len(s.to) == 0 {
		return fmt.Errorf("alert: email sender has no recipients configured")
	}
	var firstErr error
	for _, addr := range s.to {
		if err := s.send(fmt.Sprintf("[%s] %s", a.Severity, a.RuleName), a.Message, addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
