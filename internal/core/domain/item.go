package domain

import "time"

// ItemKind classifies a discovered item. Items in the "none" kind are
// ready for normal processing; "live" items are held back until a later
// poll cycle observes them as "none".
type ItemKind string

const (
	KindLive     ItemKind = "live"
	KindUpcoming ItemKind = "upcoming"
	KindNone     ItemKind = "none"
)

// ItemStatus is the processing state of an item.
// Transitions: pending -> processing -> {completed, failed}, with a
// failed attempt under retry budget looping back to pending.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

// MaxItemRetries is the retry budget per item. Reaching it forces a
// terminal failed status.
const MaxItemRetries = 3

// Item is a discovered piece of content. The ID is globally unique and
// an Item is created at most once regardless of how many poll cycles
// observe it.
type Item struct {
	ID                    string     `db:"id"`
	ChannelID             string     `db:"channel_id"`
	Title                 string     `db:"title"`
	URL                   string     `db:"url"`
	PublishedAt           time.Time  `db:"published_at"`
	Kind                  ItemKind   `db:"kind"`
	Status                ItemStatus `db:"status"`
	RetryCount            int        `db:"retry_count"`
	Summary               *string    `db:"summary"`
	Transcript            *string    `db:"transcript"`
	ErrorMessage          *string    `db:"error_message"`
	Processed             bool       `db:"processed"`
	ProcessingStartedAt   *time.Time `db:"processing_started_at"`
	ProcessingCompletedAt *time.Time `db:"processing_completed_at"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

// RetryEligible reports whether the item should be re-queued on the
// next poll cycle.
func (i *Item) RetryEligible() bool {
	return i.Status == StatusPending && i.RetryCount < MaxItemRetries
}
