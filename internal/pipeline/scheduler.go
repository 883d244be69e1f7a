// Package pipeline owns the work queue of discovered items and the
// per-item summarization state machine.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chanwatch/chanwatch/internal/core/domain"
)

const defaultBatchSize = 3

// ItemProcessor runs the summarization state machine for one item.
type ItemProcessor interface {
	Process(ctx context.Context, item *domain.Item) error
}

// Scheduler drains a FIFO queue of items in fixed-size batches. Drains
// are single-flight: a drain started while another is running returns
// immediately, and items enqueued during a drain are picked up by it.
type Scheduler struct {
	worker    ItemProcessor
	batchSize int
	log       *slog.Logger

	mu       sync.Mutex
	queue    []*domain.Item
	draining bool
}

// NewScheduler creates a scheduler. A zero batchSize falls back to the
// default of 3.
func NewScheduler(worker ItemProcessor, batchSize int, log *slog.Logger) *Scheduler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		worker:    worker,
		batchSize: batchSize,
		log:       log,
	}
}

// Enqueue appends items to the queue.
func (s *Scheduler) Enqueue(items ...*domain.Item) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, items...)
	s.mu.Unlock()
}

// QueueLen returns the current queue depth.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Drain processes the queue batch by batch until it is empty. Each
// batch settles fully before the next starts; an item's failure never
// aborts its siblings.
func (s *Scheduler) Drain(ctx context.Context) {
	s.mu.Lock()
	if s.draining {
		// An in-progress drain will pick up whatever was enqueued.
		s.mu.Unlock()
		return
	}
	s.draining = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.draining = false
		s.mu.Unlock()
	}()

	for {
		batch := s.nextBatch()
		if len(batch) == 0 {
			return
		}

		var wg sync.WaitGroup
		for _, item := range batch {
			wg.Add(1)
			go func(item *domain.Item) {
				defer wg.Done()
				if err := s.worker.Process(ctx, item); err != nil {
					s.log.Error("Item processing failed", "item", item.ID, "error", err)
				}
			}(item)
		}
		wg.Wait()

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Scheduler) nextBatch() []*domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(s.batchSize, len(s.queue))
	if n == 0 {
		return nil
	}
	batch := s.queue[:n]
	s.queue = append([]*domain.Item(nil), s.queue[n:]...)
	return batch
}
