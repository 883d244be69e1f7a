package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/storage"
	"github.com/chanwatch/chanwatch/internal/infra/summarizer"
	"github.com/chanwatch/chanwatch/internal/metrics"
	"github.com/chanwatch/chanwatch/internal/notify"
)

const defaultProcessTimeout = 120 * time.Second

// Summarizer extracts and summarizes one item's content.
type Summarizer interface {
	Process(ctx context.Context, itemURL string) (*summarizer.Result, error)
}

// Notifier fans a message out to a channel's subscribers.
type Notifier interface {
	Notify(ctx context.Context, channelID string, msg notify.Message) (int, error)
}

// Worker runs the per-item state machine:
// pending -> processing -> {completed, failed}, with a failed attempt
// under retry budget looping back to pending.
type Worker struct {
	items      storage.ItemRepository
	channels   storage.ChannelRepository
	summarizer Summarizer
	notifier   Notifier
	timeout    time.Duration

	// noCaptionsTerminal makes a "no captions" rejection immediately
	// terminal instead of consuming retry budget like a generic
	// failure. Both behaviors existed historically; this keeps the
	// choice explicit.
	noCaptionsTerminal bool

	log *slog.Logger
	now func() time.Time
}

// NewWorker creates a summarization worker. A zero timeout falls back
// to the 120s default.
func NewWorker(items storage.ItemRepository, channels storage.ChannelRepository, sum Summarizer, notifier Notifier, timeout time.Duration, noCaptionsTerminal bool, log *slog.Logger) *Worker {
	if timeout == 0 {
		timeout = defaultProcessTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		items:              items,
		channels:           channels,
		summarizer:         sum,
		notifier:           notifier,
		timeout:            timeout,
		noCaptionsTerminal: noCaptionsTerminal,
		log:                log,
		now:                time.Now,
	}
}

// Process runs one item through the state machine. Live items are
// never summarized; they stay untouched until a poll cycle reclassifies
// them.
func (w *Worker) Process(ctx context.Context, item *domain.Item) error {
	if item.Kind == domain.KindLive {
		w.log.Debug("Skipping live item", "item", item.ID)
		return nil
	}

	started := w.now()
	item.Status = domain.StatusProcessing
	item.ProcessingStartedAt = &started
	if err := w.items.Update(ctx, item); err != nil {
		return fmt.Errorf("failed to mark item processing: %w", err)
	}

	procCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := w.summarizer.Process(procCtx, item.URL)
	if err != nil {
		return w.handleFailure(ctx, item, err)
	}
	return w.handleSuccess(ctx, item, result)
}

func (w *Worker) handleSuccess(ctx context.Context, item *domain.Item, result *summarizer.Result) error {
	completed := w.now()
	item.Status = domain.StatusCompleted
	item.Processed = true
	item.Summary = &result.Summary
	item.Transcript = &result.Transcript
	item.ErrorMessage = nil
	item.ProcessingCompletedAt = &completed
	if err := w.items.Update(ctx, item); err != nil {
		return fmt.Errorf("failed to complete item: %w", err)
	}
	metrics.ItemsProcessed.WithLabelValues("completed").Inc()

	title := item.Title
	if ch, err := w.channels.Get(ctx, item.ChannelID); err == nil {
		title = fmt.Sprintf("%s: %s", ch.Title, item.Title)
	}

	reached, err := w.notifier.Notify(ctx, item.ChannelID, notify.Message{
		Title: title,
		Body:  result.Summary,
	})
	if err != nil {
		// Delivery failures are absorbed here; the item stays completed.
		w.log.Error("Notification dispatch failed", "item", item.ID, "error", err)
		return nil
	}

	w.log.Info("Item summarized", "item", item.ID, "channel", item.ChannelID, "reached", reached)
	return nil
}

func (w *Worker) handleFailure(ctx context.Context, item *domain.Item, procErr error) error {
	errMsg := procErr.Error()
	if errors.Is(procErr, context.DeadlineExceeded) {
		errMsg = fmt.Sprintf("summarization timed out after %s", w.timeout)
	}
	item.ErrorMessage = &errMsg

	if w.noCaptionsTerminal && errors.Is(procErr, summarizer.ErrNoCaptions) {
		item.Status = domain.StatusFailed
		item.Processed = true
		if err := w.items.Update(ctx, item); err != nil {
			return fmt.Errorf("failed to fail item: %w", err)
		}
		metrics.ItemsProcessed.WithLabelValues("no_captions").Inc()
		w.log.Warn("Item has no captions, marked failed", "item", item.ID)
		return nil
	}

	item.RetryCount++
	if item.RetryCount >= domain.MaxItemRetries {
		item.Status = domain.StatusFailed
		item.Processed = true
		if err := w.items.Update(ctx, item); err != nil {
			return fmt.Errorf("failed to fail item: %w", err)
		}
		metrics.ItemsProcessed.WithLabelValues("failed").Inc()
		w.log.Error("Item retry budget exhausted",
			"item", item.ID, "retries", item.RetryCount, "error", errMsg)
		return nil
	}

	// Back to pending; the next poll cycle re-queues it.
	item.Status = domain.StatusPending
	item.Processed = false
	if err := w.items.Update(ctx, item); err != nil {
		return fmt.Errorf("failed to reset item to pending: %w", err)
	}
	metrics.ItemsProcessed.WithLabelValues("retry").Inc()
	w.log.Warn("Item processing failed, will retry",
		"item", item.ID, "attempt", item.RetryCount, "error", errMsg)
	return nil
}
