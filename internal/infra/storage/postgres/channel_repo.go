package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/storage"
)

// ChannelRepo implements storage.ChannelRepository using PostgreSQL.
type ChannelRepo struct {
	db *DB
}

// NewChannelRepo creates a new PostgreSQL channel repository.
func NewChannelRepo(db *DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

// Get retrieves a channel by id.
func (r *ChannelRepo) Get(ctx context.Context, id string) (*domain.Channel, error) {
	query := `
		SELECT id, title, feed_url, is_active, last_item_id, last_error_message, last_error_at, created_at, updated_at
		FROM channels
		WHERE id = $1
	`
	var ch domain.Channel
	err := r.db.GetContext(ctx, &ch, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &ch, nil
}

// List retrieves all channels ordered by id for a stable scan order.
func (r *ChannelRepo) List(ctx context.Context) ([]*domain.Channel, error) {
	query := `
		SELECT id, title, feed_url, is_active, last_item_id, last_error_message, last_error_at, created_at, updated_at
		FROM channels
		ORDER BY id
	`
	var channels []*domain.Channel
	if err := r.db.SelectContext(ctx, &channels, query); err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// ListActive retrieves all active channels ordered by id for a stable
// scan order.
func (r *ChannelRepo) ListActive(ctx context.Context) ([]*domain.Channel, error) {
	query := `
		SELECT id, title, feed_url, is_active, last_item_id, last_error_message, last_error_at, created_at, updated_at
		FROM channels
		WHERE is_active = TRUE
		ORDER BY id
	`
	var channels []*domain.Channel
	if err := r.db.SelectContext(ctx, &channels, query); err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// Save inserts or updates a channel.
func (r *ChannelRepo) Save(ctx context.Context, ch *domain.Channel) error {
	query := `
		INSERT INTO channels (id, title, feed_url, is_active, last_item_id, last_error_message, last_error_at, created_at, updated_at)
		VALUES (:id, :title, :feed_url, :is_active, :last_item_id, :last_error_message, :last_error_at, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			feed_url = EXCLUDED.feed_url,
			is_active = EXCLUDED.is_active,
			last_item_id = EXCLUDED.last_item_id,
			last_error_message = EXCLUDED.last_error_message,
			last_error_at = EXCLUDED.last_error_at,
			updated_at = NOW()
	`
	if _, err := r.db.NamedExecContext(ctx, query, ch); err != nil {
		return fmt.Errorf("failed to save channel: %w", err)
	}
	return nil
}

// UpdateCursor advances the channel watermark.
func (r *ChannelRepo) UpdateCursor(ctx context.Context, id string, cursor string) error {
	query := `
		UPDATE channels
		SET last_item_id = $2, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, cursor); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}
	return nil
}

// MarkInactive trips the channel circuit breaker.
func (r *ChannelRepo) MarkInactive(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE channels
		SET is_active = FALSE, last_error_message = $2, last_error_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, errMsg); err != nil {
		return fmt.Errorf("failed to mark channel inactive: %w", err)
	}
	return nil
}

// MarkActive resets the circuit breaker and clears the recorded error.
func (r *ChannelRepo) MarkActive(ctx context.Context, id string) error {
	query := `
		UPDATE channels
		SET is_active = TRUE, last_error_message = NULL, last_error_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark channel active: %w", err)
	}
	return nil
}
