// Package poller scans every known channel feed on a fixed interval,
// decides which entries are novel and feeds them into the processing
// scheduler.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/feed"
	"github.com/chanwatch/chanwatch/internal/infra/storage"
	"github.com/chanwatch/chanwatch/internal/metrics"
)

// shortFormPattern structurally identifies short-form entries by their
// canonical link. Short-form items are never summarized.
var shortFormPattern = regexp.MustCompile(`/shorts/`)

// FeedSource fetches the ordered entry list of a channel feed.
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]domain.FeedEntry, error)
}

// Oracle classifies a discovered item as live, upcoming or none.
type Oracle interface {
	Classify(ctx context.Context, itemID string) (domain.ItemKind, error)
}

// Enqueuer accepts items for the processing scheduler's queue.
type Enqueuer interface {
	Enqueue(items ...*domain.Item)
}

// Candidate is the latest actionable feed entry of a channel with its
// oracle classification.
type Candidate struct {
	Entry domain.FeedEntry
	Kind  domain.ItemKind
}

const defaultBackfillCount = 3

// Poller discovers new items across all channels.
type Poller struct {
	channels      storage.ChannelRepository
	items         storage.ItemRepository
	source        FeedSource
	oracle        Oracle
	queue         Enqueuer
	backfillCount int
	log           *slog.Logger
}

// NewPoller creates a feed poller. A backfillCount of zero falls back
// to the default of 3.
func NewPoller(channels storage.ChannelRepository, items storage.ItemRepository, source FeedSource, oracle Oracle, queue Enqueuer, backfillCount int, log *slog.Logger) *Poller {
	if backfillCount <= 0 {
		backfillCount = defaultBackfillCount
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		channels:      channels,
		items:         items,
		source:        source,
		oracle:        oracle,
		queue:         queue,
		backfillCount: backfillCount,
		log:           log,
	}
}

// Poll runs one poll cycle: scan every channel sequentially, gate each
// candidate through dedup, then gather the retry-eligible carryover and
// ended live streams, and enqueue everything for processing.
func (p *Poller) Poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
	}()

	channels, err := p.channels.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", err)
	}

	enqueued := make(map[string]bool)

	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.pollChannel(ctx, ch, enqueued); err != nil {
			// Absorbed: a bad channel never aborts the cycle.
			p.log.Error("Channel poll failed", "channel", ch.ID, "error", err)
		}
	}

	if err := p.enqueueCarryover(ctx, enqueued); err != nil {
		p.log.Error("Failed to gather retry carryover", "error", err)
	}
	if err := p.reclassifyLive(ctx, enqueued); err != nil {
		p.log.Error("Failed to reclassify live items", "error", err)
	}

	p.log.Info("Poll cycle complete",
		"channels", len(channels), "enqueued", len(enqueued), "took", time.Since(start))
	return nil
}

// pollChannel fetches one channel's feed, maintains the circuit
// breaker and gates the candidate entry. A channel with an empty
// cursor has never been scanned; its first cycle backfills the newest
// actionable entries instead of taking just the latest one.
func (p *Poller) pollChannel(ctx context.Context, ch *domain.Channel, enqueued map[string]bool) error {
	if ch.Cursor == "" {
		created, err := p.backfill(ctx, ch, p.backfillCount, enqueued)
		if err != nil {
			return p.handleFetchError(ctx, ch, err)
		}
		if created > 0 {
			p.log.Info("Backfilled new channel", "channel", ch.ID, "items", created)
		}
		return p.reactivate(ctx, ch)
	}

	candidate, err := p.LatestEntry(ctx, ch)
	if err != nil {
		return p.handleFetchError(ctx, ch, err)
	}
	if err := p.reactivate(ctx, ch); err != nil {
		return err
	}

	if candidate == nil {
		return nil
	}
	return p.gate(ctx, ch, candidate, enqueued)
}

// handleFetchError trips the circuit breaker on a gone feed; anything
// else is left for the next cycle.
func (p *Poller) handleFetchError(ctx context.Context, ch *domain.Channel, err error) error {
	if errors.Is(err, feed.ErrNotFound) {
		metrics.FeedFetchErrors.WithLabelValues("not_found").Inc()
		if markErr := p.channels.MarkInactive(ctx, ch.ID, err.Error()); markErr != nil {
			return fmt.Errorf("failed to deactivate channel: %w", markErr)
		}
		p.log.Warn("Channel feed gone, deactivated", "channel", ch.ID)
		return nil
	}
	metrics.FeedFetchErrors.WithLabelValues("transient").Inc()
	return err
}

// reactivate resets the circuit breaker after a successful fetch.
func (p *Poller) reactivate(ctx context.Context, ch *domain.Channel) error {
	if ch.IsActive {
		return nil
	}
	if err := p.channels.MarkActive(ctx, ch.ID); err != nil {
		return fmt.Errorf("failed to reactivate channel: %w", err)
	}
	p.log.Info("Channel feed recovered, reactivated", "channel", ch.ID)
	return nil
}

// LatestEntry returns the channel's latest actionable entry: the first
// feed entry that is neither short-form nor classified upcoming. It
// returns nil when that entry is already the channel cursor.
func (p *Poller) LatestEntry(ctx context.Context, ch *domain.Channel) (*Candidate, error) {
	entries, err := p.source.Fetch(ctx, ch.FeedURL)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if shortFormPattern.MatchString(entry.Link) {
			continue
		}

		kind, err := p.oracle.Classify(ctx, entry.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to classify %s: %w", entry.ID, err)
		}
		if kind == domain.KindUpcoming {
			continue
		}

		if entry.ID == ch.Cursor {
			return nil, nil
		}
		return &Candidate{Entry: entry, Kind: kind}, nil
	}
	return nil, nil
}

// Backfill creates and enqueues up to n actionable entries for a
// channel, oldest first, each through the dedup gate. Used when a
// channel is first added.
func (p *Poller) Backfill(ctx context.Context, ch *domain.Channel, n int) (int, error) {
	return p.backfill(ctx, ch, n, make(map[string]bool))
}

func (p *Poller) backfill(ctx context.Context, ch *domain.Channel, n int, enqueued map[string]bool) (int, error) {
	entries, err := p.source.Fetch(ctx, ch.FeedURL)
	if err != nil {
		return 0, err
	}

	var actionable []Candidate
	for _, entry := range entries {
		if len(actionable) == n {
			break
		}
		if shortFormPattern.MatchString(entry.Link) {
			continue
		}
		kind, err := p.oracle.Classify(ctx, entry.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to classify %s: %w", entry.ID, err)
		}
		if kind == domain.KindUpcoming {
			continue
		}
		actionable = append(actionable, Candidate{Entry: entry, Kind: kind})
	}

	// Oldest first, so the cursor lands on the newest entry.
	created := 0
	for i := len(actionable) - 1; i >= 0; i-- {
		c := actionable[i]
		before := len(enqueued)
		if err := p.gate(ctx, ch, &c, enqueued); err != nil {
			return created, err
		}
		ch.Cursor = c.Entry.ID
		if len(enqueued) > before {
			created++
		}
	}
	return created, nil
}

// gate is the dedup and state gate. It never creates a second Item for
// an id the store has already seen, resynchronizes the cursor when a
// prior cursor update was lost, and enqueues only items that still need
// processing.
func (p *Poller) gate(ctx context.Context, ch *domain.Channel, c *Candidate, enqueued map[string]bool) error {
	if c.Entry.ID == ch.Cursor {
		return nil
	}

	existing, err := p.items.Get(ctx, c.Entry.ID)
	if err != nil {
		return fmt.Errorf("failed to look up item: %w", err)
	}

	if existing != nil {
		// Seen before: a prior cursor update must have failed. Resync
		// the cursor so the entry stops re-surfacing; re-queue only if
		// the item still awaits processing.
		if err := p.channels.UpdateCursor(ctx, ch.ID, c.Entry.ID); err != nil {
			return fmt.Errorf("failed to resync cursor: %w", err)
		}
		if existing.Status == domain.StatusPending && !enqueued[existing.ID] {
			enqueued[existing.ID] = true
			p.queue.Enqueue(existing)
		}
		return nil
	}

	item := &domain.Item{
		ID:          c.Entry.ID,
		ChannelID:   ch.ID,
		Title:       c.Entry.Title,
		URL:         c.Entry.Link,
		PublishedAt: c.Entry.PublishedAt,
		Kind:        c.Kind,
		Status:      domain.StatusPending,
	}
	if err := p.items.Create(ctx, item); err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	if err := p.channels.UpdateCursor(ctx, ch.ID, c.Entry.ID); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	metrics.ItemsDiscovered.WithLabelValues(ch.ID).Inc()
	p.log.Info("Discovered item", "item", item.ID, "channel", ch.ID, "kind", item.Kind)

	if !enqueued[item.ID] {
		enqueued[item.ID] = true
		p.queue.Enqueue(item)
	}
	return nil
}

// enqueueCarryover re-queues persisted items that are still pending
// with retry budget remaining.
func (p *Poller) enqueueCarryover(ctx context.Context, enqueued map[string]bool) error {
	items, err := p.items.ListRetryEligible(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if enqueued[item.ID] {
			continue
		}
		enqueued[item.ID] = true
		p.queue.Enqueue(item)
	}
	return nil
}

// reclassifyLive asks the oracle about every item still marked live;
// streams that have ended become kind none and are queued for
// summarization.
func (p *Poller) reclassifyLive(ctx context.Context, enqueued map[string]bool) error {
	items, err := p.items.ListByKind(ctx, domain.KindLive)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Processed {
			continue
		}
		kind, err := p.oracle.Classify(ctx, item.ID)
		if err != nil {
			p.log.Warn("Failed to reclassify live item", "item", item.ID, "error", err)
			continue
		}
		if kind != domain.KindNone {
			continue
		}

		item.Kind = domain.KindNone
		if err := p.items.Update(ctx, item); err != nil {
			p.log.Error("Failed to update reclassified item", "item", item.ID, "error", err)
			continue
		}
		p.log.Info("Live stream ended, queued for summarization", "item", item.ID)
		if !enqueued[item.ID] {
			enqueued[item.ID] = true
			p.queue.Enqueue(item)
		}
	}
	return nil
}
