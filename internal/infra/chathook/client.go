// Package chathook posts summaries to a team-chat incoming webhook.
// Delivery here is best-effort: failures are logged by the caller and
// never enter the push retry queue.
package chathook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client posts messages to a single incoming webhook URL.
type Client struct {
	webhookURL string
	client     *http.Client
}

// NewClient creates a webhook client. An empty URL yields a disabled
// client whose Post is a no-op.
func NewClient(webhookURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool {
	return c.webhookURL != ""
}

type hookPayload struct {
	Text string `json:"text"`
}

// Post sends a plain-text message to the webhook.
func (c *Client) Post(ctx context.Context, text string) error {
	if !c.Enabled() {
		return nil
	}

	payload, err := json.Marshal(hookPayload{Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
