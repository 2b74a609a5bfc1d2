package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/domain"
	"github.com/commercekit/webhook-dispatch/internal/observability"
	"github.com/commercekit/webhook-dispatch/internal/ratelimit"
	"github.com/commercekit/webhook-dispatch/internal/repository"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultDeliveryTimeout  = 10 * time.Second
	defaultMaxResponseBytes = 4096
	deliveryUserAgent       = "commercekit-webhook/1.0"

	headerWebhookID        = "X-Webhook-Id"
	headerWebhookEvent     = "X-Webhook-Event"
	headerWebhookSignature = "X-Webhook-Signature"
	headerWebhookTimestamp = "X-Webhook-Timestamp"
)

// reservedHeaders may never be overridden by subscription custom headers.
var reservedHeaders = []string{
	"Content-Type",
	"User-Agent",
	headerWebhookID,
	headerWebhookEvent,
	headerWebhookSignature,
	headerWebhookTimestamp,
}

// Envelope is the JSON document posted to a subscriber. The signature is
// computed over the exact serialized bytes, never a re-serialization.
type Envelope struct {
	ID        string           `json:"id"`
	EventType domain.EventType `json:"event_type"`
	Timestamp string           `json:"timestamp"`
	Data      any              `json:"data"`
	Metadata  map[string]any   `json:"metadata"`
}

// DeliveryOutcome summarizes one attempt for the caller. Delivery failures
// are outcomes, not errors.
type DeliveryOutcome struct {
	AttemptID  string
	EventType  domain.EventType
	HTTPStatus int
	Success    bool
}

// FailureHandler is consulted after every failed delivery.
type FailureHandler interface {
	OnFailure(ctx context.Context, subscriptionID string)
}

// Deliverer performs a single signed HTTP delivery attempt per invocation
// and records it in the ledger unconditionally.
type Deliverer struct {
	client           *resty.Client
	attempts         repository.AttemptRepository
	policy           FailureHandler
	limiter          ratelimit.RateLimiter
	metrics          *observability.Metrics
	logger           *zap.Logger
	maxResponseBytes int
	now              func() time.Time
	newID            func() string
}

func NewDeliverer(
	attempts repository.AttemptRepository,
	policy FailureHandler,
	timeout time.Duration,
	maxResponseBytes int,
	logger *zap.Logger,
) (*Deliverer, error) {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewDelivererWithClient(attempts, policy, client, maxResponseBytes, logger)
}

func NewDelivererWithClient(
	attempts repository.AttemptRepository,
	policy FailureHandler,
	client *resty.Client,
	maxResponseBytes int,
	logger *zap.Logger,
) (*Deliverer, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if maxResponseBytes <= 0 {
		maxResponseBytes = defaultMaxResponseBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDeliveryTimeout)
	}
	client.SetRetryCount(0)

	return &Deliverer{
		client:           client,
		attempts:         attempts,
		policy:           policy,
		logger:           logger,
		maxResponseBytes: maxResponseBytes,
		now:              time.Now,
		newID:            uuid.NewString,
	}, nil
}

func (d *Deliverer) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

func (d *Deliverer) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if d == nil {
		return
	}
	d.limiter = limiter
}

// Deliver builds a signed envelope and performs exactly one HTTP POST to the
// subscription endpoint. It returns an error only for malformed input or
// ledger failures; transport failures and non-2xx responses are recorded as
// failed attempts and reported through the outcome.
func (d *Deliverer) Deliver(
	ctx context.Context,
	sub domain.Subscription,
	event domain.EventType,
	data any,
	metadata map[string]any,
) (DeliveryOutcome, error) {
	if d == nil || d.client == nil {
		return DeliveryOutcome{}, fmt.Errorf("deliverer is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateDeliveryTarget(sub, event); err != nil {
		return DeliveryOutcome{}, err
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	envelope := Envelope{
		ID:        d.newID(),
		EventType: event,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Data:      data,
		Metadata:  metadata,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("failed to serialize envelope: %w", err)
	}

	signature, err := SignPayload(sub.Secret, body)
	if err != nil {
		return DeliveryOutcome{}, fmt.Errorf("failed to sign envelope: %w", err)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, endpointHost(sub.URL)); err != nil {
			return DeliveryOutcome{}, fmt.Errorf("delivery rate limiter wait failed: %w", err)
		}
	}

	headers := mergeHeaders(sub.Headers)
	headers["Content-Type"] = "application/json"
	headers["User-Agent"] = deliveryUserAgent
	headers[headerWebhookID] = sub.ID
	headers[headerWebhookEvent] = event.String()
	headers[headerWebhookSignature] = signature
	headers[headerWebhookTimestamp] = envelope.Timestamp

	d.metrics.IncDeliveriesInflight()
	defer d.metrics.DecDeliveriesInflight()

	start := d.now()
	response, sendErr := d.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(sub.URL)
	d.metrics.ObserveDeliveryDuration(event.String(), d.now().Sub(start))

	attempt := domain.DeliveryAttempt{
		ID:             d.newID(),
		SubscriptionID: sub.ID,
		EventType:      event,
		RequestBody:    string(body),
		AttemptedAt:    d.now().UTC(),
	}

	switch {
	case sendErr != nil:
		// Transport failure: no response received, status stays 0.
		msg := sendErr.Error()
		attempt.Error = &msg
	case response != nil:
		attempt.HTTPStatus = response.StatusCode()
		attempt.ResponseBody = truncate(response.String(), d.maxResponseBytes)
		attempt.Success = response.StatusCode() >= http.StatusOK && response.StatusCode() < http.StatusMultipleChoices
	}

	if err := d.attempts.Create(ctx, &attempt); err != nil {
		d.logger.Error("failed to record delivery attempt",
			zap.String("subscriptionId", sub.ID),
			zap.String("event", event.String()),
			zap.Error(err),
		)
		return DeliveryOutcome{}, fmt.Errorf("failed to record delivery attempt: %w", err)
	}

	d.metrics.IncDelivery(event.String(), attempt.Success)

	if !attempt.Success {
		d.logger.Warn("webhook delivery failed",
			zap.String("subscriptionId", sub.ID),
			zap.String("event", event.String()),
			zap.Int("httpStatus", attempt.HTTPStatus),
		)
		if d.policy != nil {
			d.policy.OnFailure(ctx, sub.ID)
		}
	}

	return DeliveryOutcome{
		AttemptID:  attempt.ID,
		EventType:  event,
		HTTPStatus: attempt.HTTPStatus,
		Success:    attempt.Success,
	}, nil
}

func validateDeliveryTarget(sub domain.Subscription, event domain.EventType) error {
	if strings.TrimSpace(sub.ID) == "" {
		return fmt.Errorf("subscription id is required")
	}
	if strings.TrimSpace(sub.URL) == "" {
		return fmt.Errorf("subscription url is required")
	}
	if strings.TrimSpace(sub.Secret) == "" {
		return fmt.Errorf("subscription secret is required")
	}
	if !event.IsValid() {
		return fmt.Errorf("invalid event type %q", event)
	}
	return nil
}

// mergeHeaders copies custom headers, dropping any that collide with a
// reserved header regardless of case.
func mergeHeaders(custom map[string]string) map[string]string {
	merged := make(map[string]string, len(custom)+len(reservedHeaders))
	for name, value := range custom {
		if isReservedHeader(name) {
			continue
		}
		merged[name] = value
	}
	return merged
}

func isReservedHeader(name string) bool {
	for _, reserved := range reservedHeaders {
		if strings.EqualFold(name, reserved) {
			return true
		}
	}
	return false
}

func endpointHost(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(parsed.Host)
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}
