package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const webhookTimeout = 10 * time.Second

// Webhook posts events to a Slack, Teams or generic HTTP endpoint.
type Webhook struct {
	kind   string
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier. kind is one of slack | teams | http.
func NewWebhook(kind, url string) *Webhook {
	return &Webhook{
		kind:   kind,
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
	}
}

// Name implements Notifier.
func (w *Webhook) Name() string { return "webhook/" + w.kind }

// Notify implements Notifier. A webhook whose URL resolved empty is skipped.
func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	if w.url == "" {
		return nil
	}

	var payload interface{}
	switch w.kind {
	case "slack":
		payload = map[string]string{
			"text": fmt.Sprintf("*%s* %s", statusLabel(ev.Status), ev.Message()),
		}
	case "teams":
		payload = map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": statusColor(ev.Status),
			"summary":    ev.Sensor,
			"title":      fmt.Sprintf("sensorsd: %s %s limits", ev.Sensor, ev.State),
			"text":       ev.Message(),
		}
	case "http":
		payload = map[string]interface{}{"event": ev}
	default:
		return fmt.Errorf("unknown webhook type %q", w.kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return w.post(ctx, body)
}

// Close implements Notifier.
func (w *Webhook) Close() error { return nil }

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func statusLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[OK]"
	}
}

func statusColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "2ECC71"
	}
}
