package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/commercekit/webhook-dispatch/internal/domain"
)

// SubscriptionSource loads the active subscription set at startup.
type SubscriptionSource interface {
	ListActive(ctx context.Context) ([]domain.Subscription, error)
}

// ActiveCache indexes active subscriptions by subscribed event type for O(1)
// dispatch lookup. It is write-through: every store mutation must call Upsert
// or Evict, and the dispatcher consults only this index, never the database.
type ActiveCache struct {
	mu      sync.RWMutex
	byEvent map[domain.EventType]map[string]domain.Subscription
}

func NewActiveCache() *ActiveCache {
	return &ActiveCache{
		byEvent: make(map[domain.EventType]map[string]domain.Subscription),
	}
}

// Init replaces the index with all currently active subscriptions.
func (c *ActiveCache) Init(ctx context.Context, source SubscriptionSource) error {
	if source == nil {
		return fmt.Errorf("subscription source is required")
	}

	active, err := source.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active subscriptions: %w", err)
	}

	index := make(map[domain.EventType]map[string]domain.Subscription)
	for i := range active {
		sub := active[i]
		for _, event := range sub.Events {
			if index[event] == nil {
				index[event] = make(map[string]domain.Subscription)
			}
			index[event][sub.ID] = sub
		}
	}

	c.mu.Lock()
	c.byEvent = index
	c.mu.Unlock()

	return nil
}

// Upsert removes any prior entries for the subscription and, if it is active,
// re-inserts it under each subscribed event type.
func (c *ActiveCache) Upsert(sub domain.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked(sub.ID)
	if !sub.Active {
		return
	}

	for _, event := range sub.Events {
		if c.byEvent[event] == nil {
			c.byEvent[event] = make(map[string]domain.Subscription)
		}
		c.byEvent[event][sub.ID] = sub
	}
}

// Evict removes the subscription from every event bucket.
func (c *ActiveCache) Evict(subscriptionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(subscriptionID)
}

func (c *ActiveCache) evictLocked(subscriptionID string) {
	for event, bucket := range c.byEvent {
		delete(bucket, subscriptionID)
		if len(bucket) == 0 {
			delete(c.byEvent, event)
		}
	}
}

// Lookup returns snapshot copies of the active subscriptions registered for
// the event. Mutating the result does not affect the index.
func (c *ActiveCache) Lookup(event domain.EventType) []domain.Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bucket := c.byEvent[event]
	if len(bucket) == 0 {
		return nil
	}

	out := make([]domain.Subscription, 0, len(bucket))
	for _, sub := range bucket {
		out = append(out, sub)
	}
	return out
}

// Len reports the number of distinct cached subscriptions.
func (c *ActiveCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, bucket := range c.byEvent {
		for id := range bucket {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// Shutdown exists for lifecycle symmetry; the cache holds no external resources.
func (c *ActiveCache) Shutdown() {}
