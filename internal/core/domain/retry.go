package domain

import "time"

// RetryKey identifies a pending push retry. One entry exists per
// (user, device) pair; a newer failure overwrites the older entry.
type RetryKey struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// RetryEntry is a failed notification attempt waiting for its backoff
// to elapse.
type RetryEntry struct {
	Key          RetryKey  `json:"key"`
	AttemptCount int       `json:"attempt_count"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	ErrorCode    string    `json:"error_code"`
	LastError    string    `json:"last_error"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
}
