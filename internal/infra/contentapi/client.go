// Package contentapi talks to the upstream content platform to resolve
// the kind of a discovered item (live stream, upcoming premiere, or a
// regular item ready for processing).
package contentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
)

// Client queries the classification endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a classification client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type classifyResponse struct {
	ItemID string `json:"item_id"`
	Kind   string `json:"kind"`
}

// Classify returns the kind of the item with the given id.
func (c *Client) Classify(ctx context.Context, itemID string) (domain.ItemKind, error) {
	endpoint := fmt.Sprintf("%s/v1/items/%s/classification", c.baseURL, url.PathEscape(itemID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build classify request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("classify request returned status %d", resp.StatusCode)
	}

	var body classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode classify response: %w", err)
	}

	switch domain.ItemKind(body.Kind) {
	case domain.KindLive, domain.KindUpcoming, domain.KindNone:
		return domain.ItemKind(body.Kind), nil
	default:
		return "", fmt.Errorf("unknown item kind %q for %s", body.Kind, itemID)
	}
}
