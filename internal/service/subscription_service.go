package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/cache"
	"github.com/commercekit/webhook-dispatch/internal/domain"
	"github.com/commercekit/webhook-dispatch/internal/observability"
	"github.com/commercekit/webhook-dispatch/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const secretByteLength = 32

// RegisterInput carries the fields accepted when registering a subscription.
type RegisterInput struct {
	OwnerID string
	Name    string
	URL     string
	Events  []string
	Secret  *string
	Headers map[string]string
	Active  *bool
}

// UpdateInput is a partial patch; nil fields are left untouched.
type UpdateInput struct {
	Name    *string
	URL     *string
	Events  *[]string
	Secret  *string
	Headers *map[string]string
	Active  *bool
}

// SubscriptionService owns the subscription store and keeps the active cache
// write-through consistent on every mutation.
type SubscriptionService struct {
	subscriptions repository.SubscriptionRepository
	cache         *cache.ActiveCache
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
	newID         func() string
}

func NewSubscriptionService(
	subscriptions repository.SubscriptionRepository,
	active *cache.ActiveCache,
	logger *zap.Logger,
) (*SubscriptionService, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if active == nil {
		return nil, fmt.Errorf("active subscription cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SubscriptionService{
		subscriptions: subscriptions,
		cache:         active,
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}, nil
}

func (s *SubscriptionService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Register validates and persists a new subscription. The secret is generated
// when omitted and is returned exactly once, on this call.
func (s *SubscriptionService) Register(ctx context.Context, in RegisterInput) (*domain.Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	events := domain.FilterEventTypes(in.Events)
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: no known event types after filtering", domain.ErrValidation)
	}

	secret := ""
	if in.Secret != nil {
		secret = strings.TrimSpace(*in.Secret)
	}
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing secret: %w", err)
		}
		secret = generated
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	now := s.now().UTC()
	sub := &domain.Subscription{
		ID:        s.newID(),
		OwnerID:   strings.TrimSpace(in.OwnerID),
		Name:      strings.TrimSpace(in.Name),
		URL:       strings.TrimSpace(in.URL),
		Events:    events,
		Secret:    secret,
		Headers:   in.Headers,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.cache.Upsert(*sub)
	s.metrics.IncSubscriptionMutation("register")
	s.logger.Info("webhook subscription registered",
		zap.String("subscriptionId", sub.ID),
		zap.String("ownerId", sub.OwnerID),
		zap.Int("events", len(sub.Events)),
	)

	return sub, nil
}

// Update applies a partial patch to an owner's subscription, re-validating
// any changed url or event set, then refreshes the cache entry.
func (s *SubscriptionService) Update(ctx context.Context, subscriptionID string, ownerID string, patch UpdateInput) (*domain.Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sub, err := s.subscriptions.GetByIDForOwner(ctx, strings.TrimSpace(subscriptionID), strings.TrimSpace(ownerID))
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		sub.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.URL != nil {
		sub.URL = strings.TrimSpace(*patch.URL)
	}
	if patch.Events != nil {
		events := domain.FilterEventTypes(*patch.Events)
		if len(events) == 0 {
			return nil, fmt.Errorf("%w: no known event types after filtering", domain.ErrValidation)
		}
		sub.Events = events
	}
	if patch.Secret != nil {
		secret := strings.TrimSpace(*patch.Secret)
		if secret == "" {
			return nil, fmt.Errorf("%w: secret must not be empty", domain.ErrValidation)
		}
		sub.Secret = secret
	}
	if patch.Headers != nil {
		sub.Headers = *patch.Headers
	}
	if patch.Active != nil {
		sub.Active = *patch.Active
	}
	sub.UpdatedAt = s.now().UTC()

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.cache.Upsert(*sub)
	s.metrics.IncSubscriptionMutation("update")

	return sub, nil
}

// Delete removes the subscription; its delivery history is retained for
// audit. The cache entry is evicted unconditionally.
func (s *SubscriptionService) Delete(ctx context.Context, subscriptionID string, ownerID string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	id := strings.TrimSpace(subscriptionID)
	deleted, err := s.subscriptions.Delete(ctx, id, strings.TrimSpace(ownerID))
	if err != nil {
		return false, err
	}

	s.cache.Evict(id)
	if deleted {
		s.metrics.IncSubscriptionMutation("delete")
	}

	return deleted, nil
}

func (s *SubscriptionService) Get(ctx context.Context, subscriptionID string, ownerID string) (*domain.Subscription, error) {
	return s.subscriptions.GetByIDForOwner(ctx, strings.TrimSpace(subscriptionID), strings.TrimSpace(ownerID))
}

func (s *SubscriptionService) List(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	return s.subscriptions.ListByOwner(ctx, strings.TrimSpace(ownerID))
}

// Deactivate is the system-only path used by the auto-disable policy. It does
// not require an owner id and evicts the cache entry immediately.
func (s *SubscriptionService) Deactivate(ctx context.Context, subscriptionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return fmt.Errorf("%w: subscription id is required", domain.ErrValidation)
	}

	if err := s.subscriptions.SetActive(ctx, id, false); err != nil {
		return err
	}

	s.cache.Evict(id)
	s.metrics.IncSubscriptionMutation("deactivate")

	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, secretByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
