package storage

import (
	"context"
	"errors"

	"github.com/chanwatch/chanwatch/internal/core/domain"
)

// ErrChannelNotFound is returned when a channel doesn't exist.
var ErrChannelNotFound = errors.New("channel not found")

// ChannelRepository handles channel storage operations.
type ChannelRepository interface {
	// Get retrieves a channel by id.
	Get(ctx context.Context, id string) (*domain.Channel, error)

	// List retrieves all channels, active or not. Inactive channels are
	// still fetched each cycle so a successful fetch can reset them.
	List(ctx context.Context) ([]*domain.Channel, error)

	// ListActive retrieves all active channels.
	ListActive(ctx context.Context) ([]*domain.Channel, error)

	// Save inserts or updates a channel.
	Save(ctx context.Context, ch *domain.Channel) error

	// UpdateCursor advances the channel watermark.
	UpdateCursor(ctx context.Context, id string, cursor string) error

	// MarkInactive trips the channel circuit breaker, recording the error.
	MarkInactive(ctx context.Context, id string, errMsg string) error

	// MarkActive resets the circuit breaker and clears the recorded error.
	MarkActive(ctx context.Context, id string) error
}

// ItemRepository handles item storage operations.
type ItemRepository interface {
	// Get retrieves an item by id. Returns (nil, nil) when absent.
	Get(ctx context.Context, id string) (*domain.Item, error)

	// Create inserts a new item.
	Create(ctx context.Context, item *domain.Item) error

	// Update persists the full mutable state of an item.
	Update(ctx context.Context, item *domain.Item) error

	// ListRetryEligible retrieves items with status pending and retry
	// budget remaining.
	ListRetryEligible(ctx context.Context) ([]*domain.Item, error)

	// ListByKind retrieves items of a given kind.
	ListByKind(ctx context.Context, kind domain.ItemKind) ([]*domain.Item, error)

	// CountByStatus returns the number of items in a status.
	CountByStatus(ctx context.Context, status domain.ItemStatus) (int, error)
}

// TokenRepository handles delivery token reads and removals. Token
// registration is owned by the delivery provider collaborator.
type TokenRepository interface {
	// ListActiveByUser retrieves a user's active tokens.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.DeliveryToken, error)

	// GetByDevice retrieves the token for (userID, deviceID), active or
	// not. Returns (nil, nil) when absent.
	GetByDevice(ctx context.Context, userID, deviceID string) (*domain.DeliveryToken, error)

	// Deactivate flips a token inactive (soft removal).
	Deactivate(ctx context.Context, token string) error

	// Delete removes a token permanently.
	Delete(ctx context.Context, token string) error
}

// SubscriptionRepository resolves the subscriber set of a channel.
type SubscriptionRepository interface {
	// ListUserIDs retrieves the ids of all users subscribed to a channel.
	ListUserIDs(ctx context.Context, channelID string) ([]string, error)
}
