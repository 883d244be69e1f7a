package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
	"github.com/chanwatch/chanwatch/internal/infra/storage"
)

// MemoryStorage backs all repositories with mutex-guarded maps. Used by
// tests and by the no-database mode.
type MemoryStorage struct {
	channels      map[string]*domain.Channel
	items         map[string]*domain.Item
	tokens        map[string]*domain.DeliveryToken
	subscriptions map[string][]string // channelID -> userIDs
	mu            sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		channels:      make(map[string]*domain.Channel),
		items:         make(map[string]*domain.Item),
		tokens:        make(map[string]*domain.DeliveryToken),
		subscriptions: make(map[string][]string),
	}
}

// -----------------------------------------------------------------------------
// Channel Repository
// -----------------------------------------------------------------------------

type ChannelRepo struct {
	store *MemoryStorage
}

func NewChannelRepo(store *MemoryStorage) *ChannelRepo {
	return &ChannelRepo{store: store}
}

func (r *ChannelRepo) Get(ctx context.Context, id string) (*domain.Channel, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	ch, ok := r.store.channels[id]
	if !ok {
		return nil, storage.ErrChannelNotFound
	}
	cp := *ch
	return &cp, nil
}

func (r *ChannelRepo) List(ctx context.Context) ([]*domain.Channel, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	channels := make([]*domain.Channel, 0, len(r.store.channels))
	for _, ch := range r.store.channels {
		cp := *ch
		channels = append(channels, &cp)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })
	return channels, nil
}

func (r *ChannelRepo) ListActive(ctx context.Context) ([]*domain.Channel, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var channels []*domain.Channel
	for _, ch := range r.store.channels {
		if ch.IsActive {
			cp := *ch
			channels = append(channels, &cp)
		}
	}
	return channels, nil
}

func (r *ChannelRepo) Save(ctx context.Context, ch *domain.Channel) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *ch
	cp.UpdatedAt = time.Now()
	r.store.channels[ch.ID] = &cp
	return nil
}

func (r *ChannelRepo) UpdateCursor(ctx context.Context, id string, cursor string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ch, ok := r.store.channels[id]; ok {
		ch.Cursor = cursor
		ch.UpdatedAt = time.Now()
	}
	return nil
}

func (r *ChannelRepo) MarkInactive(ctx context.Context, id string, errMsg string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ch, ok := r.store.channels[id]; ok {
		now := time.Now()
		ch.IsActive = false
		ch.LastErrorMessage = &errMsg
		ch.LastErrorAt = &now
		ch.UpdatedAt = now
	}
	return nil
}

func (r *ChannelRepo) MarkActive(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ch, ok := r.store.channels[id]; ok {
		ch.IsActive = true
		ch.LastErrorMessage = nil
		ch.LastErrorAt = nil
		ch.UpdatedAt = time.Now()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Item Repository
// -----------------------------------------------------------------------------

type ItemRepo struct {
	store *MemoryStorage
}

func NewItemRepo(store *MemoryStorage) *ItemRepo {
	return &ItemRepo{store: store}
}

func (r *ItemRepo) Get(ctx context.Context, id string) (*domain.Item, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	item, ok := r.store.items[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (r *ItemRepo) Create(ctx context.Context, item *domain.Item) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *item
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.store.items[item.ID] = &cp
	return nil
}

func (r *ItemRepo) Update(ctx context.Context, item *domain.Item) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *item
	cp.UpdatedAt = time.Now()
	r.store.items[item.ID] = &cp
	return nil
}

func (r *ItemRepo) ListRetryEligible(ctx context.Context) ([]*domain.Item, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var items []*domain.Item
	for _, item := range r.store.items {
		if item.RetryEligible() {
			cp := *item
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (r *ItemRepo) ListByKind(ctx context.Context, kind domain.ItemKind) ([]*domain.Item, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var items []*domain.Item
	for _, item := range r.store.items {
		if item.Kind == kind {
			cp := *item
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (r *ItemRepo) CountByStatus(ctx context.Context, status domain.ItemStatus) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, item := range r.store.items {
		if item.Status == status {
			count++
		}
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// Token Repository
// -----------------------------------------------------------------------------

type TokenRepo struct {
	store *MemoryStorage
}

func NewTokenRepo(store *MemoryStorage) *TokenRepo {
	return &TokenRepo{store: store}
}

// AddToken seeds a token. Test/dev helper; registration is not part of
// the pipeline.
func (r *TokenRepo) AddToken(t *domain.DeliveryToken) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *t
	r.store.tokens[t.Token] = &cp
}

func (r *TokenRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.DeliveryToken, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var tokens []*domain.DeliveryToken
	for _, t := range r.store.tokens {
		if t.UserID == userID && t.IsActive {
			cp := *t
			tokens = append(tokens, &cp)
		}
	}
	return tokens, nil
}

func (r *TokenRepo) GetByDevice(ctx context.Context, userID, deviceID string) (*domain.DeliveryToken, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, t := range r.store.tokens {
		if t.UserID == userID && t.DeviceID == deviceID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *TokenRepo) Deactivate(ctx context.Context, token string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if t, ok := r.store.tokens[token]; ok {
		t.IsActive = false
	}
	return nil
}

func (r *TokenRepo) Delete(ctx context.Context, token string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.tokens, token)
	return nil
}

// -----------------------------------------------------------------------------
// Subscription Repository
// -----------------------------------------------------------------------------

type SubscriptionRepo struct {
	store *MemoryStorage
}

func NewSubscriptionRepo(store *MemoryStorage) *SubscriptionRepo {
	return &SubscriptionRepo{store: store}
}

// Subscribe seeds a subscription. Test/dev helper.
func (r *SubscriptionRepo) Subscribe(userID, channelID string) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.subscriptions[channelID] = append(r.store.subscriptions[channelID], userID)
}

func (r *SubscriptionRepo) ListUserIDs(ctx context.Context, channelID string) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]string(nil), r.store.subscriptions[channelID]...), nil
}
