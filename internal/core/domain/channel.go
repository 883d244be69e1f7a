package domain

import "time"

// Channel is a watched content channel. Created on first subscription,
// mutated by the feed poller, never deleted by this subsystem.
type Channel struct {
	ID               string     `db:"id"`
	Title            string     `db:"title"`
	FeedURL          string     `db:"feed_url"`
	IsActive         bool       `db:"is_active"`
	Cursor           string     `db:"last_item_id"`
	LastErrorMessage *string    `db:"last_error_message"`
	LastErrorAt      *time.Time `db:"last_error_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}
