package health

import (
	"context"
	"fmt"
	"testing"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/storage/memory"
	"github.com/chanwatch/chanwatch/internal/notify"
)

type monitorFixture struct {
	channels *memory.ChannelRepo
	items    *memory.ItemRepo
	retries  *notify.MemoryStore
	monitor  *Monitor
}

func newMonitorFixture() *monitorFixture {
	store := memory.NewMemoryStorage()
	f := &monitorFixture{
		channels: memory.NewChannelRepo(store),
		items:    memory.NewItemRepo(store),
		retries:  notify.NewMemoryStore(),
	}
	f.monitor = NewMonitor(f.channels, f.items, f.retries)
	return f
}

func (f *monitorFixture) addItems(t *testing.T, status domain.ItemStatus, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		item := &domain.Item{ID: fmt.Sprintf("%s-%d", status, i), Status: status}
		if err := f.items.Create(context.Background(), item); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
}

func TestCheckHealth_EmptyPipelineIsHealthy(t *testing.T) {
	f := newMonitorFixture()
	report := f.monitor.CheckHealth(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
}

func TestCheckHealth_FailedItemsDegrade(t *testing.T) {
	f := newMonitorFixture()
	f.addItems(t, domain.StatusFailed, 1)

	report := f.monitor.CheckHealth(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.Status)
	}
	if report.FailedItems != 1 {
		t.Errorf("expected 1 failed item reported, got %d", report.FailedItems)
	}
}

func TestCheckHealth_PendingBacklogIsCritical(t *testing.T) {
	f := newMonitorFixture()
	f.addItems(t, domain.StatusPending, 101)

	report := f.monitor.CheckHealth(context.Background())
	if report.Status != StatusCritical {
		t.Errorf("expected critical, got %s", report.Status)
	}
}

func TestCheckHealth_CountsChannelsByActivity(t *testing.T) {
	f := newMonitorFixture()
	ctx := context.Background()
	_ = f.channels.Save(ctx, &domain.Channel{ID: "a", IsActive: true})
	_ = f.channels.Save(ctx, &domain.Channel{ID: "b", IsActive: true})
	_ = f.channels.Save(ctx, &domain.Channel{ID: "c"})

	report := f.monitor.CheckHealth(ctx)
	if report.ActiveChannels != 2 || report.InactiveChannels != 1 {
		t.Errorf("expected 2 active / 1 inactive, got %d / %d",
			report.ActiveChannels, report.InactiveChannels)
	}
}

func TestCheckHealth_IsCached(t *testing.T) {
	f := newMonitorFixture()
	ctx := context.Background()

	first := f.monitor.CheckHealth(ctx)
	if first.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", first.Status)
	}

	// New failures inside the cache window are not visible yet.
	f.addItems(t, domain.StatusFailed, 1)
	second := f.monitor.CheckHealth(ctx)
	if second.Status != StatusHealthy {
		t.Errorf("expected cached healthy report, got %s", second.Status)
	}
}
