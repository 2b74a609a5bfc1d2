package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/commercekit/webhook-dispatch/internal/cache"
	"github.com/commercekit/webhook-dispatch/internal/domain"
	"github.com/commercekit/webhook-dispatch/internal/observability"
	"github.com/commercekit/webhook-dispatch/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DelivererPort abstracts the delivery executor for the dispatcher.
type DelivererPort interface {
	Deliver(ctx context.Context, sub domain.Subscription, event domain.EventType, data any, metadata map[string]any) (DeliveryOutcome, error)
}

// Dispatcher is the public trigger entry point. Domain collaborators call
// TriggerEvent after committing their own state change; per-subscriber
// outcomes never propagate back to them.
type Dispatcher struct {
	cache         *cache.ActiveCache
	subscriptions repository.SubscriptionRepository
	deliverer     DelivererPort
	logger        *zap.Logger
	metrics       *observability.Metrics
}

func NewDispatcher(
	active *cache.ActiveCache,
	subscriptions repository.SubscriptionRepository,
	deliverer DelivererPort,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if active == nil {
		return nil, fmt.Errorf("active subscription cache is required")
	}
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		cache:         active,
		subscriptions: subscriptions,
		deliverer:     deliverer,
		logger:        logger,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// TriggerEvent fans the event out to every active subscription registered for
// it, delivering concurrently and independently. It returns after all
// attempts settle; a slow or failing subscriber delays nothing but this call
// and fails nobody. Results are observable only through the ledger.
func (d *Dispatcher) TriggerEvent(ctx context.Context, event domain.EventType, data any, metadata map[string]any) error {
	if d == nil || d.deliverer == nil {
		return fmt.Errorf("dispatcher is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !event.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", domain.ErrValidation, event)
	}

	matched := d.cache.Lookup(event)
	d.metrics.ObserveDispatchFanout(len(matched))
	if len(matched) == 0 {
		return nil
	}

	logger := observability.WithContextLogger(d.logger, ctx)
	logger.Debug("dispatching event",
		zap.String("event", event.String()),
		zap.Int("matched", len(matched)),
	)

	g := new(errgroup.Group)
	for i := range matched {
		sub := matched[i]
		g.Go(func() error {
			// Delivery failures are ledger entries, not errors; anything
			// surfacing here is an executor-internal fault worth logging.
			if _, err := d.deliverer.Deliver(ctx, sub, event, data, metadata); err != nil {
				logger.Error("delivery attempt could not be executed",
					zap.String("subscriptionId", sub.ID),
					zap.String("event", event.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	return g.Wait()
}

// SendTest delivers a single diagnostic test.webhook event to one explicitly
// identified subscription, bypassing the active cache. The subscription must
// belong to the owner, but need not be active.
func (d *Dispatcher) SendTest(ctx context.Context, subscriptionID string, ownerID string) (DeliveryOutcome, error) {
	if d == nil || d.deliverer == nil {
		return DeliveryOutcome{}, fmt.Errorf("dispatcher is not initialized")
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return DeliveryOutcome{}, fmt.Errorf("%w: subscription id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(ownerID) == "" {
		return DeliveryOutcome{}, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}

	sub, err := d.subscriptions.GetByIDForOwner(ctx, strings.TrimSpace(subscriptionID), strings.TrimSpace(ownerID))
	if err != nil {
		return DeliveryOutcome{}, err
	}

	data := map[string]any{
		"message":         "test webhook delivery",
		"subscription_id": sub.ID,
	}

	return d.deliverer.Deliver(ctx, *sub, domain.EventTestWebhook, data, map[string]any{"test": true})
}
