package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chanwatch/chanwatch/internal/core/domain"
)

// ItemRepo implements storage.ItemRepository using PostgreSQL.
type ItemRepo struct {
	db *DB
}

// NewItemRepo creates a new PostgreSQL item repository.
func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

const itemColumns = `
	id, channel_id, title, url, published_at, kind, status, retry_count,
	summary, transcript, error_message, processed,
	processing_started_at, processing_completed_at, created_at, updated_at
`

// Get retrieves an item by id. Returns (nil, nil) when absent.
func (r *ItemRepo) Get(ctx context.Context, id string) (*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`

	var item domain.Item
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// Create inserts a new item.
func (r *ItemRepo) Create(ctx context.Context, item *domain.Item) error {
	query := `
		INSERT INTO items (id, channel_id, title, url, published_at, kind, status, retry_count, processed, created_at, updated_at)
		VALUES (:id, :channel_id, :title, :url, :published_at, :kind, :status, :retry_count, :processed, NOW(), NOW())
	`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// Update persists the full mutable state of an item.
func (r *ItemRepo) Update(ctx context.Context, item *domain.Item) error {
	query := `
		UPDATE items SET
			kind = :kind,
			status = :status,
			retry_count = :retry_count,
			summary = :summary,
			transcript = :transcript,
			error_message = :error_message,
			processed = :processed,
			processing_started_at = :processing_started_at,
			processing_completed_at = :processing_completed_at,
			updated_at = NOW()
		WHERE id = :id
	`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return nil
}

// ListRetryEligible retrieves pending items with retry budget remaining.
func (r *ItemRepo) ListRetryEligible(ctx context.Context) ([]*domain.Item, error) {
	query := `SELECT ` + itemColumns + `
		FROM items
		WHERE status = $1 AND retry_count < $2
		ORDER BY published_at
	`
	var items []*domain.Item
	if err := r.db.SelectContext(ctx, &items, query, domain.StatusPending, domain.MaxItemRetries); err != nil {
		return nil, fmt.Errorf("failed to list retry-eligible items: %w", err)
	}
	return items, nil
}

// ListByKind retrieves items of a given kind.
func (r *ItemRepo) ListByKind(ctx context.Context, kind domain.ItemKind) ([]*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE kind = $1 ORDER BY published_at`

	var items []*domain.Item
	if err := r.db.SelectContext(ctx, &items, query, kind); err != nil {
		return nil, fmt.Errorf("failed to list items by kind: %w", err)
	}
	return items, nil
}

// CountByStatus returns the number of items in a status.
func (r *ItemRepo) CountByStatus(ctx context.Context, status domain.ItemStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM items WHERE status = $1`, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}
