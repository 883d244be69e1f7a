package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/chathook"
	"github.com/chanwatch/chanwatch/internal/infra/push"
	"github.com/chanwatch/chanwatch/internal/infra/storage"
	"github.com/chanwatch/chanwatch/internal/metrics"
)

// Message is one notification to fan out to a channel's subscribers.
type Message struct {
	Title string
	Body  string
}

// Dispatcher resolves subscribers and their delivery tokens, sends
// batched provider messages and classifies per-ticket failures.
type Dispatcher struct {
	subs    storage.SubscriptionRepository
	tokens  storage.TokenRepository
	sender  Sender
	retries *RetryQueue
	hook    *chathook.Client
	log     *slog.Logger
}

// NewDispatcher creates a dispatcher. hook may be nil or disabled.
func NewDispatcher(subs storage.SubscriptionRepository, tokens storage.TokenRepository, sender Sender, retries *RetryQueue, hook *chathook.Client, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		subs:    subs,
		tokens:  tokens,
		sender:  sender,
		retries: retries,
		hook:    hook,
		log:     log,
	}
}

// addressed pairs a provider message with the token it targets, so
// tickets (returned in request order) can be correlated back.
type addressed struct {
	msg   push.Message
	token *domain.DeliveryToken
}

// Notify fans msg out to every subscriber of the channel and returns
// how many users were reached. A user counts as reached if at least one
// of their tokens produced an ok ticket; a user with zero active tokens
// counts as unreached.
func (d *Dispatcher) Notify(ctx context.Context, channelID string, msg Message) (int, error) {
	userIDs, err := d.subs.ListUserIDs(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve subscribers: %w", err)
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	// One id per fan-out; it rides in every message payload so client
	// reports can be correlated back to this dispatch.
	notificationID := uuid.NewString()

	var batch []addressed
	for _, userID := range userIDs {
		tokens, err := d.tokens.ListActiveByUser(ctx, userID)
		if err != nil {
			d.log.Error("Failed to resolve tokens", "user", userID, "error", err)
			continue
		}
		for _, token := range tokens {
			batch = append(batch, addressed{
				msg: push.Message{
					To:    token.Token,
					Title: msg.Title,
					Body:  msg.Body,
					Data:  map[string]string{"notification_id": notificationID},
				},
				token: token,
			})
		}
	}

	reached := make(map[string]bool)
	for start := 0; start < len(batch); start += push.MaxBatchSize {
		end := min(start+push.MaxBatchSize, len(batch))
		d.sendBatch(ctx, batch[start:end], msg, reached)
	}

	d.postToChat(ctx, msg)

	d.log.Info("Notification dispatched",
		"id", notificationID, "channel", channelID,
		"subscribers", len(userIDs), "reached", len(reached))
	return len(reached), nil
}

// sendBatch sends one provider batch and handles its tickets. A failed
// send or error ticket never aborts the remaining batches.
func (d *Dispatcher) sendBatch(ctx context.Context, batch []addressed, msg Message, reached map[string]bool) {
	messages := make([]push.Message, len(batch))
	for i, a := range batch {
		messages[i] = a.msg
	}

	tickets, err := d.sender.Send(ctx, messages)
	if err != nil {
		d.log.Error("Provider batch send failed", "size", len(batch), "error", err)
		metrics.NotificationsSent.WithLabelValues("transport_error").Add(float64(len(batch)))
		return
	}

	for i, ticket := range tickets {
		target := batch[i]
		if ticket.Status == push.TicketOK {
			reached[target.token.UserID] = true
			metrics.NotificationsSent.WithLabelValues("ok").Inc()
			continue
		}
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		d.handleErrorTicket(ctx, target, ticket, msg)
	}
}

// handleErrorTicket classifies one error ticket and applies its action.
func (d *Dispatcher) handleErrorTicket(ctx context.Context, target addressed, ticket push.Ticket, msg Message) {
	c := Classify(ticket.ErrorCode)

	d.log.Warn("Delivery ticket error",
		"user", target.token.UserID, "device", target.token.DeviceID,
		"code", ticket.ErrorCode, "action", c.Action, "severity", c.Severity)

	switch c.Action {
	case ActionDeleteToken:
		if err := d.tokens.Delete(ctx, target.token.Token); err != nil {
			d.log.Error("Failed to delete token", "error", err)
			return
		}
		metrics.TokensRemoved.WithLabelValues("delete").Inc()
	case ActionDeactivateToken:
		if err := d.tokens.Deactivate(ctx, target.token.Token); err != nil {
			d.log.Error("Failed to deactivate token", "error", err)
			return
		}
		metrics.TokensRemoved.WithLabelValues("deactivate").Inc()
	}

	if c.needsRetryQueue() {
		key := domain.RetryKey{UserID: target.token.UserID, DeviceID: target.token.DeviceID}
		if err := d.retries.Enqueue(ctx, key, c, ticket.Message, target.msg); err != nil {
			d.log.Error("Failed to enqueue push retry", "error", err)
		}
	}
}

// postToChat mirrors the notification to the team-chat webhook.
// Best-effort: failures are logged and never retried.
func (d *Dispatcher) postToChat(ctx context.Context, msg Message) {
	if d.hook == nil || !d.hook.Enabled() {
		return
	}
	if err := d.hook.Post(ctx, msg.Title+"\n"+msg.Body); err != nil {
		d.log.Warn("Chat webhook post failed", "error", err)
	}
}
