package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/push"
	"github.com/chanwatch/chanwatch/internal/infra/storage"
	"github.com/chanwatch/chanwatch/internal/metrics"
)

const (
	defaultScanInterval = 30 * time.Second

	// staleAfter is the housekeeping cutoff: entries this far past
	// their NextRetryAt are assumed orphaned by a stalled timer.
	staleAfter = 24 * time.Hour
)

// Sender is the single-message resend surface the retry queue needs
// from the delivery provider.
type Sender interface {
	Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error)
}

// RetryQueue re-sends classified-retryable notification failures with
// exponential backoff. One entry exists per (user, device) key.
type RetryQueue struct {
	store        EntryStore
	tokens       storage.TokenRepository
	sender       Sender
	scanInterval time.Duration
	log          *slog.Logger
	now          func() time.Time
	stop         chan struct{}
	done         chan struct{}
}

// NewRetryQueue creates a retry queue. A zero scanInterval falls back
// to the 30s default.
func NewRetryQueue(store EntryStore, tokens storage.TokenRepository, sender Sender, scanInterval time.Duration, log *slog.Logger) *RetryQueue {
	if scanInterval == 0 {
		scanInterval = defaultScanInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryQueue{
		store:        store,
		tokens:       tokens,
		sender:       sender,
		scanInterval: scanInterval,
		log:          log,
		now:          time.Now,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Enqueue records a classified-retryable failure. The attempt count is
// previous+1; exceeding the code's budget drops the entry as a
// permanent failure. Backoff doubles per attempt: base * 2^(attempt-1).
func (q *RetryQueue) Enqueue(ctx context.Context, key domain.RetryKey, c Classification, lastErr string, msg push.Message) error {
	attempt := 1
	prev, err := q.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read retry entry: %w", err)
	}
	if prev != nil {
		attempt = prev.AttemptCount + 1
	}

	if attempt > c.MaxRetries {
		if err := q.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("failed to drop exhausted entry: %w", err)
		}
		metrics.PushRetries.WithLabelValues("exhausted").Inc()
		q.log.Warn("Push retry budget exhausted",
			"user", key.UserID, "device", key.DeviceID, "code", c.Code, "attempts", attempt)
		return nil
	}

	backoff := c.BackoffBase * time.Duration(1<<(attempt-1))
	entry := &domain.RetryEntry{
		Key:          key,
		AttemptCount: attempt,
		NextRetryAt:  q.now().Add(backoff),
		ErrorCode:    c.Code,
		LastError:    lastErr,
		Title:        msg.Title,
		Body:         msg.Body,
	}
	if err := q.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to store retry entry: %w", err)
	}

	q.log.Debug("Push retry scheduled",
		"user", key.UserID, "device", key.DeviceID, "code", c.Code,
		"attempt", attempt, "backoff", backoff)
	return nil
}

// Start runs the scan loop until the context is cancelled or Stop is
// called.
func (q *RetryQueue) Start(ctx context.Context) {
	defer close(q.done)

	ticker := time.NewTicker(q.scanInterval)
	defer ticker.Stop()

	sweep := time.NewTicker(staleAfter / 24)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-ticker.C:
			if err := q.ProcessDue(ctx); err != nil {
				q.log.Error("Retry scan failed", "error", err)
			}
		case <-sweep.C:
			q.Sweep(ctx)
		}
	}
}

// Stop terminates the scan loop and waits for it to exit.
func (q *RetryQueue) Stop() {
	close(q.stop)
	<-q.done
}

// ProcessDue re-sends every entry whose backoff has elapsed.
func (q *RetryQueue) ProcessDue(ctx context.Context) error {
	due, err := q.store.Due(ctx, q.now())
	if err != nil {
		return fmt.Errorf("failed to list due entries: %w", err)
	}

	for _, entry := range due {
		q.retryOne(ctx, entry)
	}

	if depth, err := q.store.Len(ctx); err == nil {
		metrics.PushRetryDepth.Set(float64(depth))
	}
	return nil
}

// retryOne issues a single direct resend for one due entry.
func (q *RetryQueue) retryOne(ctx context.Context, entry *domain.RetryEntry) {
	// The token may have been deleted or deactivated since the failure.
	token, err := q.tokens.GetByDevice(ctx, entry.Key.UserID, entry.Key.DeviceID)
	if err != nil {
		q.log.Error("Failed to re-fetch token for retry", "user", entry.Key.UserID, "error", err)
		return
	}
	if token == nil || !token.IsActive {
		if err := q.store.Remove(ctx, entry.Key); err != nil {
			q.log.Error("Failed to drop orphaned retry entry", "error", err)
		}
		metrics.PushRetries.WithLabelValues("token_gone").Inc()
		return
	}

	msg := push.Message{To: token.Token, Title: entry.Title, Body: entry.Body}
	tickets, err := q.sender.Send(ctx, []push.Message{msg})
	if err != nil || len(tickets) == 0 {
		// Transport failure: leave the entry; reclassify under the same
		// code so the backoff keeps growing.
		errMsg := "no ticket returned"
		if err != nil {
			errMsg = err.Error()
		}
		q.requeueOrDrop(ctx, entry, Classify(entry.ErrorCode), errMsg, msg)
		return
	}

	ticket := tickets[0]
	if ticket.Status == push.TicketOK {
		if err := q.store.Remove(ctx, entry.Key); err != nil {
			q.log.Error("Failed to remove resolved retry entry", "error", err)
			return
		}
		metrics.PushRetries.WithLabelValues("delivered").Inc()
		q.log.Info("Push retry delivered", "user", entry.Key.UserID, "device", entry.Key.DeviceID)
		return
	}

	q.requeueOrDrop(ctx, entry, Classify(ticket.ErrorCode), ticket.Message, msg)
}

func (q *RetryQueue) requeueOrDrop(ctx context.Context, entry *domain.RetryEntry, c Classification, lastErr string, msg push.Message) {
	if !c.Retryable {
		if err := q.store.Remove(ctx, entry.Key); err != nil {
			q.log.Error("Failed to drop non-retryable entry", "error", err)
		}
		metrics.PushRetries.WithLabelValues("non_retryable").Inc()
		return
	}
	if err := q.Enqueue(ctx, entry.Key, c, lastErr, msg); err != nil {
		q.log.Error("Failed to re-enqueue retry entry", "error", err)
	}
	metrics.PushRetries.WithLabelValues("requeued").Inc()
}

// Sweep purges entries whose NextRetryAt is more than 24 hours in the
// past.
func (q *RetryQueue) Sweep(ctx context.Context) {
	purged, err := q.store.PurgeOlderThan(ctx, q.now().Add(-staleAfter))
	if err != nil {
		q.log.Error("Retry queue sweep failed", "error", err)
		return
	}
	if purged > 0 {
		q.log.Warn("Purged stale retry entries", "count", purged)
	}
}
