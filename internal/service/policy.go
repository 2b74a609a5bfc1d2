package service

import (
	"context"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/observability"
	"github.com/commercekit/webhook-dispatch/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultDisableThreshold = 10
	defaultDisableWindow    = 24 * time.Hour
)

// SubscriptionDeactivator is the system-only deactivation port, implemented
// by the subscription service so cache eviction stays write-through.
type SubscriptionDeactivator interface {
	Deactivate(ctx context.Context, subscriptionID string) error
}

// DisablePolicy deactivates a subscription once its failure count within a
// rolling window reaches a threshold. The count is recomputed from the ledger
// on every failure rather than kept as an in-memory counter; the failure path
// is rare relative to the success path, so the extra query is acceptable.
type DisablePolicy struct {
	attempts      repository.AttemptRepository
	subscriptions SubscriptionDeactivator
	threshold     int64
	window        time.Duration
	logger        *zap.Logger
	metrics       *observability.Metrics
}

func NewDisablePolicy(
	attempts repository.AttemptRepository,
	subscriptions SubscriptionDeactivator,
	threshold int,
	window time.Duration,
	logger *zap.Logger,
) (*DisablePolicy, error) {
	if threshold <= 0 {
		threshold = defaultDisableThreshold
	}
	if window <= 0 {
		window = defaultDisableWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DisablePolicy{
		attempts:      attempts,
		subscriptions: subscriptions,
		threshold:     int64(threshold),
		window:        window,
		logger:        logger,
	}, nil
}

func (p *DisablePolicy) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// OnFailure is invoked by the deliverer after every failed attempt. Policy
// errors are logged, never propagated: the delivery outcome is already
// recorded and a policy hiccup must not disturb the dispatch path.
func (p *DisablePolicy) OnFailure(ctx context.Context, subscriptionID string) {
	if p == nil || p.attempts == nil || p.subscriptions == nil {
		return
	}

	count, err := p.attempts.RecentFailureCount(ctx, subscriptionID, p.window)
	if err != nil {
		p.logger.Error("failed to count recent delivery failures",
			zap.String("subscriptionId", subscriptionID),
			zap.Error(err),
		)
		return
	}

	if count < p.threshold {
		return
	}

	if err := p.subscriptions.Deactivate(ctx, subscriptionID); err != nil {
		p.logger.Error("failed to auto-disable subscription",
			zap.String("subscriptionId", subscriptionID),
			zap.Int64("failureCount", count),
			zap.Error(err),
		)
		return
	}

	p.metrics.IncAutoDisabled()
	p.logger.Warn("subscription auto-disabled after repeated delivery failures",
		zap.String("subscriptionId", subscriptionID),
		zap.Int64("failureCount", count),
		zap.Duration("window", p.window),
	)
}
