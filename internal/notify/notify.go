package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Alert is the JSON payload posted to the configured webhook when the
// reporter observes a latency regression.
type Alert struct {
	Kind            string    `json:"kind"`
	P99Millis       float64   `json:"p99_ms"`
	ThresholdMillis float64   `json:"threshold_ms"`
	UniqueKeys      uint64    `json:"unique_keys"`
	Events          uint64    `json:"events"`
	At              time.Time `json:"at"`
}

type Client struct {
	webhookURL string
	httpClient *http.Client
}

// NewClient creates a webhook notifier for latency alerts
func NewClient(url string) *Client {
	return &Client{
		webhookURL: url,
		httpClient: &http.Client{
			Timeout: 500 * time.Millisecond, // Fail fast to keep the reporter speedy
		},
	}
}

// Send posts the alert to the webhook
func (c *Client) Send(ctx context.Context, alert Alert) error {
	jsonBody, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook error: status %d", resp.StatusCode)
	}

	return nil
}
