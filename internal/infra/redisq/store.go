// Package redisq is the durable backing store for the push retry
// queue. Entries survive process restarts, unlike the default
// in-memory store.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chanwatch/chanwatch/internal/core/domain"
)

const (
	queueKey  = "push_retries"
	entryTTL  = 48 * time.Hour
	keyPrefix = "push_retry:"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Store implements notify.EntryStore on a Redis sorted set. The member
// is the (user, device) key; the score is NextRetryAt as unix seconds,
// so due entries are a ZRANGEBYSCORE away.
type Store struct {
	rdb *redis.Client
}

// NewStore connects to Redis and verifies the connection.
func NewStore(cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func member(key domain.RetryKey) string {
	return key.UserID + ":" + key.DeviceID
}

func entryKey(key domain.RetryKey) string {
	return keyPrefix + member(key)
}

// Get retrieves the entry for a key. Returns (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key domain.RetryKey) (*domain.RetryEntry, error) {
	data, err := s.rdb.Get(ctx, entryKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retry entry: %w", err)
	}

	var entry domain.RetryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retry entry: %w", err)
	}
	return &entry, nil
}

// Upsert stores an entry, overwriting any prior entry for its key.
func (s *Store) Upsert(ctx context.Context, entry *domain.RetryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal retry entry: %w", err)
	}

	if err := s.rdb.Set(ctx, entryKey(entry.Key), data, entryTTL).Err(); err != nil {
		return fmt.Errorf("failed to set retry entry: %w", err)
	}

	if err := s.rdb.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(entry.NextRetryAt.Unix()),
		Member: member(entry.Key),
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to retry queue: %w", err)
	}
	return nil
}

// Remove deletes the entry for a key.
func (s *Store) Remove(ctx context.Context, key domain.RetryKey) error {
	if err := s.rdb.ZRem(ctx, queueKey, member(key)).Err(); err != nil {
		return fmt.Errorf("zrem failed: %w", err)
	}
	return s.rdb.Del(ctx, entryKey(key)).Err()
}

// Due retrieves all entries with NextRetryAt <= now.
func (s *Store) Due(ctx context.Context, now time.Time) ([]*domain.RetryEntry, error) {
	members, err := s.rdb.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}

	var due []*domain.RetryEntry
	for _, m := range members {
		data, err := s.rdb.Get(ctx, keyPrefix+m).Bytes()
		if err == redis.Nil {
			// Data expired but member still queued; drop it.
			s.rdb.ZRem(ctx, queueKey, m)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get retry entry: %w", err)
		}

		var entry domain.RetryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retry entry: %w", err)
		}
		due = append(due, &entry)
	}
	return due, nil
}

// PurgeOlderThan removes entries scheduled before the cutoff.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	max := fmt.Sprintf("%d", cutoff.Unix())

	members, err := s.rdb.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	for _, m := range members {
		s.rdb.Del(ctx, keyPrefix+m)
	}

	removed, err := s.rdb.ZRemRangeByScore(ctx, queueKey, "-inf", max).Result()
	if err != nil {
		return 0, fmt.Errorf("zremrangebyscore failed: %w", err)
	}
	return int(removed), nil
}

// Len returns the number of queued entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}
