package surface

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// LogAlerter writes download errors to the structured log.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a *LogAlerter) ShowError(message string) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Error("download error", "message", message)
}

// WebhookAlerter logs download errors and forwards them to a webhook so the
// user sees the failure even when no front end is attached.
type WebhookAlerter struct {
	WebhookURL string
	Logger     *slog.Logger
}

func (a *WebhookAlerter) ShowError(message string) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Error("download error", "message", message)

	if err := a.notify("❌ Download failed: " + message); err != nil {
		logger.Error("failed to send alert webhook", "err", err)
	}
}

func (a *WebhookAlerter) notify(content string) error {
	if a.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := map[string]string{"content": content}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := http.Post(a.WebhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}
