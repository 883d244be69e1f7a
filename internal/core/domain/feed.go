package domain

import "time"

// FeedEntry is one entry of a channel feed, ordered newest first as
// published by the transport.
type FeedEntry struct {
	ID          string
	Title       string
	Link        string
	PublishedAt time.Time
}
