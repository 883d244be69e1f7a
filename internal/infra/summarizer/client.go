// Package summarizer calls the extraction+summarization service. The
// service performs no retries of its own; the caller's timeout race is
// authoritative.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoCaptions is returned when the service rejects an item because no
// captions or extractable content exist for it.
var ErrNoCaptions = errors.New("no captions available")

// Result holds the extracted transcript and its summary.
type Result struct {
	Transcript string `json:"transcript"`
	Summary    string `json:"summary"`
}

// Client is the HTTP client for the summarization service.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a summarizer client. The HTTP client carries no
// timeout; cancellation comes from the request context.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

type processRequest struct {
	URL string `json:"url"`
}

type processError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Process extracts and summarizes the content behind itemURL.
func (c *Client) Process(ctx context.Context, itemURL string) (*Result, error) {
	payload, err := json.Marshal(processRequest{URL: itemURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal process request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/process", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build process request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("process request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var pe processError
		if err := json.NewDecoder(resp.Body).Decode(&pe); err == nil && pe.Code == "no_captions" {
			return nil, fmt.Errorf("%w: %s", ErrNoCaptions, pe.Message)
		}
		return nil, fmt.Errorf("process request rejected with status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("process request returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode process response: %w", err)
	}
	return &result, nil
}
