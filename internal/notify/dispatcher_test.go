package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/push"
	"github.com/chanwatch/chanwatch/internal/infra/storage/memory"
)

// codedSender answers each message with a ticket looked up by its
// target token, so tests stay independent of batch ordering.
type codedSender struct {
	sent        [][]push.Message
	ticketsByTo map[string]push.Ticket
}

func (m *codedSender) Send(ctx context.Context, messages []push.Message) ([]push.Ticket, error) {
	m.sent = append(m.sent, messages)
	tickets := make([]push.Ticket, len(messages))
	for i, msg := range messages {
		if ticket, ok := m.ticketsByTo[msg.To]; ok {
			tickets[i] = ticket
			continue
		}
		tickets[i] = push.Ticket{Status: push.TicketOK}
	}
	return tickets, nil
}

type dispatchFixture struct {
	sender     *codedSender
	tokens     *memory.TokenRepo
	subs       *memory.SubscriptionRepo
	retryStore *MemoryStore
	dispatcher *Dispatcher
}

func newDispatchFixture() *dispatchFixture {
	store := memory.NewMemoryStorage()
	f := &dispatchFixture{
		sender:     &codedSender{ticketsByTo: make(map[string]push.Ticket)},
		tokens:     memory.NewTokenRepo(store),
		subs:       memory.NewSubscriptionRepo(store),
		retryStore: NewMemoryStore(),
	}
	retries := NewRetryQueue(f.retryStore, f.tokens, f.sender, time.Second, nil)
	f.dispatcher = NewDispatcher(f.subs, f.tokens, f.sender, retries, nil, nil)
	return f
}

func (f *dispatchFixture) subscribe(userID string, tokens ...string) {
	f.subs.Subscribe(userID, "ch1")
	for i, tok := range tokens {
		f.tokens.AddToken(&domain.DeliveryToken{
			Token:    tok,
			UserID:   userID,
			DeviceID: fmt.Sprintf("%s-dev%d", userID, i),
			IsActive: true,
		})
	}
}

func TestNotify_CountsUsersNotTokens(t *testing.T) {
	f := newDispatchFixture()
	f.subscribe("u1", "tok-a", "tok-b") // both deliver
	f.subscribe("u2", "tok-c")          // delivers
	f.subscribe("u3")                   // no tokens at all

	reached, err := f.dispatcher.Notify(context.Background(), "ch1", Message{Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if reached != 2 {
		t.Errorf("expected 2 users reached, got %d", reached)
	}
}

func TestNotify_UserReachedIfAnyTokenDelivers(t *testing.T) {
	f := newDispatchFixture()
	f.subscribe("u1", "tok-a", "tok-b")
	f.sender.ticketsByTo["tok-a"] = push.Ticket{Status: push.TicketError, ErrorCode: "ProviderUnavailable"}

	reached, err := f.dispatcher.Notify(context.Background(), "ch1", Message{Title: "t"})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if reached != 1 {
		t.Errorf("one ok ticket is enough to count the user, got %d", reached)
	}
}

func TestNotify_NoSubscribersSendsNothing(t *testing.T) {
	f := newDispatchFixture()

	reached, err := f.dispatcher.Notify(context.Background(), "ch1", Message{Title: "t"})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if reached != 0 || len(f.sender.sent) != 0 {
		t.Errorf("expected no sends, got reached=%d sends=%d", reached, len(f.sender.sent))
	}
}

func TestNotify_ChunksOversizedBatches(t *testing.T) {
	f := newDispatchFixture()
	tokens := make([]string, push.MaxBatchSize+50)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%03d", i)
	}
	f.subscribe("u1", tokens...)

	if _, err := f.dispatcher.Notify(context.Background(), "ch1", Message{Title: "t"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if len(f.sender.sent) != 2 {
		t.Fatalf("expected 2 provider batches, got %d", len(f.sender.sent))
	}
	if got := len(f.sender.sent[0]); got != push.MaxBatchSize {
		t.Errorf("expected first batch of %d, got %d", push.MaxBatchSize, got)
	}
	if got := len(f.sender.sent[1]); got != 50 {
		t.Errorf("expected second batch of 50, got %d", got)
	}
}

func TestNotify_DeleteTokenActionRemovesTokenAndSkipsQueue(t *testing.T) {
	f := newDispatchFixture()
	f.subscribe("u1", "tok-a")
	f.sender.ticketsByTo["tok-a"] = push.Ticket{Status: push.TicketError, ErrorCode: "DeviceNotRegistered"}

	if _, err := f.dispatcher.Notify(context.Background(), "ch1", Message{Title: "t"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if tok, _ := f.tokens.GetByDevice(context.Background(), "u1", "u1-dev0"); tok != nil {
		t.Error("expected token deleted")
	}
	if n, _ := f.retryStore.Len(context.Background()); n != 0 {
		t.Error("delete_token failures must never enter the retry queue")
	}
}

func TestNotify_DeactivateTokenAction(t *testing.T) {
	f := newDispatchFixture()
	f.subscribe("u1", "tok-a")
	f.sender.ticketsByTo["tok-a"] = push.Ticket{Status: push.TicketError, ErrorCode: "MessageTooBig"}

	if _, err := f.dispatcher.Notify(context.Background(), "ch1", Message{Title: "t"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	tok, _ := f.tokens.GetByDevice(context.Background(), "u1", "u1-dev0")
	if tok == nil {
		t.Fatal("deactivated token must still exist")
	}
	if tok.IsActive {
		t.Error("expected token deactivated")
	}
	if n, _ := f.retryStore.Len(context.Background()); n != 0 {
		t.Error("deactivate_token failures must never enter the retry queue")
	}
}

func TestNotify_RetryableFailureEntersQueue(t *testing.T) {
	f := newDispatchFixture()
	f.subscribe("u1", "tok-a")
	f.sender.ticketsByTo["tok-a"] = push.Ticket{
		Status: push.TicketError, ErrorCode: "ProviderUnavailable", Message: "down",
	}

	if _, err := f.dispatcher.Notify(context.Background(), "ch1", Message{Title: "news", Body: "summary"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	key := domain.RetryKey{UserID: "u1", DeviceID: "u1-dev0"}
	entry, _ := f.retryStore.Get(context.Background(), key)
	if entry == nil {
		t.Fatal("expected a retry entry for the failed device")
	}
	if entry.AttemptCount != 1 || entry.ErrorCode != "ProviderUnavailable" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Title != "news" || entry.Body != "summary" {
		t.Error("expected original payload preserved for the resend")
	}

	// The token itself is untouched.
	tok, _ := f.tokens.GetByDevice(context.Background(), "u1", "u1-dev0")
	if tok == nil || !tok.IsActive {
		t.Error("retryable failures must not touch the token")
	}
}

func TestNotify_UnknownCodeEntersQueueForInvestigation(t *testing.T) {
	f := newDispatchFixture()
	f.subscribe("u1", "tok-a")
	f.sender.ticketsByTo["tok-a"] = push.Ticket{Status: push.TicketError, ErrorCode: "NeverSeenBefore"}

	if _, err := f.dispatcher.Notify(context.Background(), "ch1", Message{Title: "t"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	key := domain.RetryKey{UserID: "u1", DeviceID: "u1-dev0"}
	if entry, _ := f.retryStore.Get(context.Background(), key); entry == nil {
		t.Error("unknown codes get one queued retry")
	}
}
