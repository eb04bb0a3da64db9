// Package notify delivers operator alerts. Every alert is written to the
// structured log; when a webhook URL is configured it is also posted
// there on a best-effort basis.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Severity classifies an alert for the operator channel.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

const webhookTimeout = 10 * time.Second

// Notifier sends alerts. A nil webhook URL means log-only delivery.
type Notifier struct {
	Logger     *slog.Logger
	WebhookURL string
	Client     *http.Client
}

// New builds a notifier. webhookURL may be empty.
func New(logger *slog.Logger, webhookURL string) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		Logger:     logger,
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: webhookTimeout},
	}
}

type payload struct {
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Notify delivers one alert. Webhook failures are logged and swallowed;
// an alert must never fail the operation that raised it.
func (n *Notifier) Notify(ctx context.Context, severity Severity, message string, fields map[string]string) {
	args := make([]any, 0, 2*len(fields)+2)
	args = append(args, "severity", string(severity))
	for k, v := range fields {
		args = append(args, k, v)
	}

	switch severity {
	case SeverityCritical:
		n.Logger.Error(message, args...)
	case SeverityWarning:
		n.Logger.Warn(message, args...)
	default:
		n.Logger.Info(message, args...)
	}

	if n.WebhookURL == "" {
		return
	}
	if err := n.post(ctx, payload{
		Severity:  severity,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		n.Logger.Warn("alert webhook delivery failed", "error", err)
	}
}

// Info raises an informational notification.
func (n *Notifier) Info(ctx context.Context, message string, fields map[string]string) {
	n.Notify(ctx, SeverityInfo, message, fields)
}

// Critical raises a CRITICAL alert that demands operator attention.
func (n *Notifier) Critical(ctx context.Context, message string, fields map[string]string) {
	n.Notify(ctx, SeverityCritical, message, fields)
}

func (n *Notifier) post(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
