// Package push sends batched messages to the delivery provider and
// returns per-message tickets. Error tickets carry a provider error
// code; classification of those codes lives with the caller.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MaxBatchSize is the provider-mandated maximum number of messages per
// send request.
const MaxBatchSize = 100

// TicketStatus is the provider's per-message acknowledgment status.
type TicketStatus string

const (
	TicketOK    TicketStatus = "ok"
	TicketError TicketStatus = "error"
)

// Message is one provider push message, addressed to a single token.
type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Ticket is the provider acknowledgment for one message. Tickets are
// returned in request order; the provider contract guarantees the
// positional correlation.
type Ticket struct {
	Status    TicketStatus `json:"status"`
	ID        string       `json:"id,omitempty"`
	ErrorCode string       `json:"error_code,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// Client is the HTTP client for the delivery provider.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a delivery provider client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type sendResponse struct {
	Tickets []Ticket `json:"tickets"`
}

// Send delivers one batch of messages. The batch must not exceed
// MaxBatchSize; chunking is the caller's responsibility.
func (c *Client) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds provider limit %d", len(messages), MaxBatchSize)
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/push/send", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("send request returned status %d", resp.StatusCode)
	}

	var body sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode tickets: %w", err)
	}
	if len(body.Tickets) != len(messages) {
		return nil, fmt.Errorf("provider returned %d tickets for %d messages", len(body.Tickets), len(messages))
	}
	return body.Tickets, nil
}
