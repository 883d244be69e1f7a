package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chanwatch/chanwatch/internal/core/domain"
)

// TokenRepo implements storage.TokenRepository using PostgreSQL.
type TokenRepo struct {
	db *DB
}

// NewTokenRepo creates a new PostgreSQL token repository.
func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// ListActiveByUser retrieves a user's active tokens.
func (r *TokenRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.DeliveryToken, error) {
	query := `
		SELECT token, device_id, user_id, is_active, created_at
		FROM delivery_tokens
		WHERE user_id = $1 AND is_active = TRUE
	`
	var tokens []*domain.DeliveryToken
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

// GetByDevice retrieves the token for (userID, deviceID), active or not.
func (r *TokenRepo) GetByDevice(ctx context.Context, userID, deviceID string) (*domain.DeliveryToken, error) {
	query := `
		SELECT token, device_id, user_id, is_active, created_at
		FROM delivery_tokens
		WHERE user_id = $1 AND device_id = $2
	`
	var token domain.DeliveryToken
	err := r.db.GetContext(ctx, &token, query, userID, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// Deactivate flips a token inactive.
func (r *TokenRepo) Deactivate(ctx context.Context, token string) error {
	query := `UPDATE delivery_tokens SET is_active = FALSE WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to deactivate token: %w", err)
	}
	return nil
}

// Delete removes a token permanently.
func (r *TokenRepo) Delete(ctx context.Context, token string) error {
	query := `DELETE FROM delivery_tokens WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// SubscriptionRepo implements storage.SubscriptionRepository using PostgreSQL.
type SubscriptionRepo struct {
	db *DB
}

// NewSubscriptionRepo creates a new PostgreSQL subscription repository.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// ListUserIDs retrieves the ids of all users subscribed to a channel.
func (r *SubscriptionRepo) ListUserIDs(ctx context.Context, channelID string) ([]string, error) {
	query := `SELECT user_id FROM subscriptions WHERE channel_id = $1`

	var userIDs []string
	if err := r.db.SelectContext(ctx, &userIDs, query, channelID); err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return userIDs, nil
}
