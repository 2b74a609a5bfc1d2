package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/domain"
)

// memSubscriptionRepo is an in-memory SubscriptionRepository for tests.
type memSubscriptionRepo struct {
	mu        sync.Mutex
	subs      map[string]domain.Subscription
	createErr error
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{subs: make(map[string]domain.Subscription)}
}

func (r *memSubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[s.ID] = *s
	return nil
}

func (r *memSubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := sub
	return &out, nil
}

func (r *memSubscriptionRepo) GetByIDForOwner(ctx context.Context, id string, ownerID string) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	out := sub
	return &out, nil
}

func (r *memSubscriptionRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range r.subs {
		if sub.OwnerID == ownerID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memSubscriptionRepo) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range r.subs {
		if sub.Active {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *memSubscriptionRepo) Update(ctx context.Context, s *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s.ID]; !ok {
		return domain.ErrNotFound
	}
	r.subs[s.ID] = *s
	return nil
}

func (r *memSubscriptionRepo) Delete(ctx context.Context, id string, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok || sub.OwnerID != ownerID {
		return false, nil
	}
	delete(r.subs, id)
	return true, nil
}

func (r *memSubscriptionRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	sub.Active = active
	r.subs[id] = sub
	return nil
}

// memAttemptRepo is an in-memory AttemptRepository for tests.
type memAttemptRepo struct {
	mu        sync.Mutex
	attempts  []domain.DeliveryAttempt
	createErr error
	countErr  error
	now       func() time.Time
}

func newMemAttemptRepo() *memAttemptRepo {
	return &memAttemptRepo{now: time.Now}
}

func (r *memAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *memAttemptRepo) RecentFailureCount(ctx context.Context, subscriptionID string, window time.Duration) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	since := r.now().UTC().Add(-window)
	var count int64
	for _, a := range r.attempts {
		if a.SubscriptionID == subscriptionID && !a.Success && !a.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *memAttemptRepo) History(ctx context.Context, subscriptionID string, limit int) ([]domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range r.attempts {
		if a.SubscriptionID == subscriptionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptedAt.After(out[j].AttemptedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memAttemptRepo) bySubscription(subscriptionID string) []domain.DeliveryAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range r.attempts {
		if a.SubscriptionID == subscriptionID {
			out = append(out, a)
		}
	}
	return out
}

// recordingPolicy records OnFailure invocations.
type recordingPolicy struct {
	mu    sync.Mutex
	calls []string
}

func (p *recordingPolicy) OnFailure(ctx context.Context, subscriptionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, subscriptionID)
}

func (p *recordingPolicy) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// recordingDeactivator records Deactivate invocations.
type recordingDeactivator struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *recordingDeactivator) Deactivate(ctx context.Context, subscriptionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, subscriptionID)
	return nil
}

func (d *recordingDeactivator) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func testSubscription(id string, events ...domain.EventType) domain.Subscription {
	if len(events) == 0 {
		events = []domain.EventType{domain.EventOrderCreated}
	}
	return domain.Subscription{
		ID:      id,
		OwnerID: "owner-1",
		Name:    "sub " + id,
		URL:     "https://example.com/" + id,
		Events:  events,
		Secret:  "secret-" + id,
		Active:  true,
	}
}
