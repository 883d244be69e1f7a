package health

import (
	"context"
	"sync"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/storage"
	"github.com/chanwatch/chanwatch/internal/notify"
)

// Monitor aggregates health status from the pipeline's queues and
// stores. Checks are cached briefly to keep the endpoint cheap.
type Monitor struct {
	channels storage.ChannelRepository
	items    storage.ItemRepository
	retries  notify.EntryStore

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor.
func NewMonitor(channels storage.ChannelRepository, items storage.ItemRepository, retries notify.EntryStore) *Monitor {
	return &Monitor{
		channels: channels,
		items:    items,
		retries:  retries,
	}
}

// CheckHealth returns the current health report, recomputing at most
// once per 10s.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.Status != "" {
		return m.lastReport
	}

	report := Report{Status: StatusHealthy}

	if pending, err := m.items.CountByStatus(ctx, domain.StatusPending); err == nil {
		report.PendingItems = pending
	}
	if failed, err := m.items.CountByStatus(ctx, domain.StatusFailed); err == nil {
		report.FailedItems = failed
	}
	if depth, err := m.retries.Len(ctx); err == nil {
		report.PushRetryDepth = depth
	}
	if channels, err := m.channels.List(ctx); err == nil {
		for _, ch := range channels {
			if ch.IsActive {
				report.ActiveChannels++
			} else {
				report.InactiveChannels++
			}
		}
	} else {
		report.Status = StatusDegraded
	}

	if report.PendingItems > 100 || report.PushRetryDepth > 500 {
		report.Status = StatusCritical
	} else if report.PendingItems > 20 || report.FailedItems > 0 || report.PushRetryDepth > 50 {
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
