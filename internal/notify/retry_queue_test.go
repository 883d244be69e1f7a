package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/push"
	"github.com/chanwatch/chanwatch/internal/infra/storage/memory"
)

type mockSender struct {
	sent    [][]push.Message
	tickets []push.Ticket
	err     error
}

func (m *mockSender) Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error) {
	m.sent = append(m.sent, messages)
	if m.err != nil {
		return nil, m.err
	}
	if m.tickets != nil {
		return m.tickets, nil
	}
	tickets := make([]push.Ticket, len(messages))
	for i := range tickets {
		tickets[i] = push.Ticket{Status: push.TicketOK}
	}
	return tickets, nil
}

func newQueueFixture(sender *mockSender) (*RetryQueue, *MemoryStore, *memory.TokenRepo) {
	store := NewMemoryStore()
	tokens := memory.NewTokenRepo(memory.NewMemoryStorage())
	q := NewRetryQueue(store, tokens, sender, time.Second, nil)
	return q, store, tokens
}

func testKey() domain.RetryKey {
	return domain.RetryKey{UserID: "u1", DeviceID: "d1"}
}

func testMsg() push.Message {
	return push.Message{To: "tok1", Title: "t", Body: "b"}
}

func TestEnqueue_BackoffDoublesPerAttempt(t *testing.T) {
	q, store, _ := newQueueFixture(&mockSender{})
	base := time.Unix(1000, 0)
	q.now = func() time.Time { return base }
	c := Classify("MessageRateExceeded") // base 2s, max 5

	ctx := context.Background()
	var prev time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		if err := q.Enqueue(ctx, testKey(), c, "rate limited", testMsg()); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		entry, _ := store.Get(ctx, testKey())
		if entry == nil {
			t.Fatalf("attempt %d: expected entry stored", attempt)
		}
		if entry.AttemptCount != attempt {
			t.Errorf("expected attempt %d, got %d", attempt, entry.AttemptCount)
		}
		backoff := entry.NextRetryAt.Sub(base)
		if want := 2 * time.Second * time.Duration(1<<(attempt-1)); backoff != want {
			t.Errorf("attempt %d: expected backoff %s, got %s", attempt, want, backoff)
		}
		if backoff <= prev {
			t.Errorf("attempt %d: backoff %s did not grow past %s", attempt, backoff, prev)
		}
		prev = backoff
	}
}

func TestEnqueue_ExhaustedBudgetDropsEntry(t *testing.T) {
	q, store, _ := newQueueFixture(&mockSender{})
	c := Classify("InternalServerError") // max 3
	ctx := context.Background()

	for i := 0; i < c.MaxRetries; i++ {
		if err := q.Enqueue(ctx, testKey(), c, "boom", testMsg()); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	// One past the budget drops the entry instead of scheduling.
	if err := q.Enqueue(ctx, testKey(), c, "boom", testMsg()); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if entry, _ := store.Get(ctx, testKey()); entry != nil {
		t.Errorf("expected exhausted entry dropped, got attempt %d", entry.AttemptCount)
	}
}

func TestEnqueue_OverwritesPerKey(t *testing.T) {
	q, store, _ := newQueueFixture(&mockSender{})
	c := Classify("ProviderUnavailable")
	ctx := context.Background()

	if err := q.Enqueue(ctx, testKey(), c, "first", testMsg()); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	newer := push.Message{To: "tok1", Title: "newer", Body: "payload"}
	if err := q.Enqueue(ctx, testKey(), c, "second", newer); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if n, _ := store.Len(ctx); n != 1 {
		t.Fatalf("expected one entry per key, got %d", n)
	}
	entry, _ := store.Get(ctx, testKey())
	if entry.Title != "newer" || entry.LastError != "second" {
		t.Errorf("expected newest payload kept, got %+v", entry)
	}
}

func TestProcessDue_DeliveredEntryIsRemoved(t *testing.T) {
	sender := &mockSender{}
	q, store, tokens := newQueueFixture(sender)
	tokens.AddToken(&domain.DeliveryToken{Token: "tok1", UserID: "u1", DeviceID: "d1", IsActive: true})

	ctx := context.Background()
	err := store.Upsert(ctx, &domain.RetryEntry{
		Key: testKey(), AttemptCount: 1, NextRetryAt: time.Now().Add(-time.Second),
		ErrorCode: "ProviderUnavailable", Title: "t", Body: "b",
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	if len(sender.sent) != 1 || len(sender.sent[0]) != 1 {
		t.Fatalf("expected one single-message resend, got %v", sender.sent)
	}
	if sender.sent[0][0].To != "tok1" {
		t.Errorf("expected resend addressed to current token, got %s", sender.sent[0][0].To)
	}
	if entry, _ := store.Get(ctx, testKey()); entry != nil {
		t.Error("expected delivered entry removed")
	}
}

func TestProcessDue_SkipsEntriesNotYetDue(t *testing.T) {
	sender := &mockSender{}
	q, store, tokens := newQueueFixture(sender)
	tokens.AddToken(&domain.DeliveryToken{Token: "tok1", UserID: "u1", DeviceID: "d1", IsActive: true})

	ctx := context.Background()
	err := store.Upsert(ctx, &domain.RetryEntry{
		Key: testKey(), AttemptCount: 1, NextRetryAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Error("entry with future NextRetryAt must not be resent")
	}
	if entry, _ := store.Get(ctx, testKey()); entry == nil {
		t.Error("expected pending entry kept")
	}
}

func TestProcessDue_GoneTokenDropsEntry(t *testing.T) {
	sender := &mockSender{}
	q, store, _ := newQueueFixture(sender) // no token seeded

	ctx := context.Background()
	err := store.Upsert(ctx, &domain.RetryEntry{
		Key: testKey(), AttemptCount: 1, NextRetryAt: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	if len(sender.sent) != 0 {
		t.Error("no resend must happen without a live token")
	}
	if entry, _ := store.Get(ctx, testKey()); entry != nil {
		t.Error("expected orphaned entry dropped")
	}
}

func TestProcessDue_ErrorTicketRequeuesWithGrowingBackoff(t *testing.T) {
	sender := &mockSender{tickets: []push.Ticket{
		{Status: push.TicketError, ErrorCode: "ProviderUnavailable", Message: "still down"},
	}}
	q, store, tokens := newQueueFixture(sender)
	tokens.AddToken(&domain.DeliveryToken{Token: "tok1", UserID: "u1", DeviceID: "d1", IsActive: true})

	ctx := context.Background()
	err := store.Upsert(ctx, &domain.RetryEntry{
		Key: testKey(), AttemptCount: 1, NextRetryAt: time.Now().Add(-time.Second),
		ErrorCode: "ProviderUnavailable",
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	entry, _ := store.Get(ctx, testKey())
	if entry == nil {
		t.Fatal("expected entry requeued")
	}
	if entry.AttemptCount != 2 {
		t.Errorf("expected attempt 2, got %d", entry.AttemptCount)
	}
	if entry.LastError != "still down" {
		t.Errorf("expected ticket message recorded, got %q", entry.LastError)
	}
}

func TestProcessDue_NonRetryableTicketDropsEntry(t *testing.T) {
	sender := &mockSender{tickets: []push.Ticket{
		{Status: push.TicketError, ErrorCode: "DeviceNotRegistered"},
	}}
	q, store, tokens := newQueueFixture(sender)
	tokens.AddToken(&domain.DeliveryToken{Token: "tok1", UserID: "u1", DeviceID: "d1", IsActive: true})

	ctx := context.Background()
	err := store.Upsert(ctx, &domain.RetryEntry{
		Key: testKey(), AttemptCount: 1, NextRetryAt: time.Now().Add(-time.Second),
		ErrorCode: "ProviderUnavailable",
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	if entry, _ := store.Get(ctx, testKey()); entry != nil {
		t.Error("expected non-retryable failure to drop the entry")
	}
}

func TestProcessDue_TransportFailureKeepsEntry(t *testing.T) {
	sender := &mockSender{err: errors.New("connection refused")}
	q, store, tokens := newQueueFixture(sender)
	tokens.AddToken(&domain.DeliveryToken{Token: "tok1", UserID: "u1", DeviceID: "d1", IsActive: true})

	ctx := context.Background()
	err := store.Upsert(ctx, &domain.RetryEntry{
		Key: testKey(), AttemptCount: 1, NextRetryAt: time.Now().Add(-time.Second),
		ErrorCode: "ProviderUnavailable",
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := q.ProcessDue(ctx); err != nil {
		t.Fatalf("ProcessDue failed: %v", err)
	}

	entry, _ := store.Get(ctx, testKey())
	if entry == nil {
		t.Fatal("expected entry kept through a transport failure")
	}
	if entry.AttemptCount != 2 {
		t.Errorf("expected attempt bumped to 2, got %d", entry.AttemptCount)
	}
}

func TestSweep_PurgesStaleEntries(t *testing.T) {
	q, store, _ := newQueueFixture(&mockSender{})
	ctx := context.Background()

	stale := &domain.RetryEntry{
		Key:         domain.RetryKey{UserID: "u1", DeviceID: "d1"},
		NextRetryAt: time.Now().Add(-25 * time.Hour),
	}
	fresh := &domain.RetryEntry{
		Key:         domain.RetryKey{UserID: "u2", DeviceID: "d2"},
		NextRetryAt: time.Now().Add(-time.Minute),
	}
	for _, e := range []*domain.RetryEntry{stale, fresh} {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	q.Sweep(ctx)

	if entry, _ := store.Get(ctx, stale.Key); entry != nil {
		t.Error("expected stale entry purged")
	}
	if entry, _ := store.Get(ctx, fresh.Key); entry == nil {
		t.Error("expected fresh entry kept")
	}
}

func TestStartStop(t *testing.T) {
	q, _, _ := newQueueFixture(&mockSender{})
	q.scanInterval = 5 * time.Millisecond

	go q.Start(context.Background())
	time.Sleep(15 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
