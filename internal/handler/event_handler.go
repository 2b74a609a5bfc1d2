package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/domain"
	"github.com/commercekit/webhook-dispatch/internal/observability"
	"github.com/commercekit/webhook-dispatch/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// dispatchBudget bounds a detached fan-out so a wedged subscriber cannot
// leak the goroutine forever. Individual deliveries carry their own timeout.
const dispatchBudget = 2 * time.Minute

type EventDispatcher interface {
	TriggerEvent(ctx context.Context, event domain.EventType, data any, metadata map[string]any) error
}

type WebhookTester interface {
	SendTest(ctx context.Context, subscriptionID string, ownerID string) (service.DeliveryOutcome, error)
}

// EventHandler accepts event notifications from internal producers and hands
// them to the dispatcher without making the producer wait for fan-out.
type EventHandler struct {
	dispatcher EventDispatcher
	logger     *zap.Logger
}

func NewEventHandler(dispatcher EventDispatcher, logger *zap.Logger) (*EventHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("event dispatcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{dispatcher: dispatcher, logger: logger}, nil
}

func RegisterEventRoutes(router fiber.Router, dispatcher EventDispatcher, logger *zap.Logger) error {
	h, err := NewEventHandler(dispatcher, logger)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/events", h.TriggerEvent)

	return nil
}

type triggerEventRequest struct {
	EventType string         `json:"event_type"`
	Data      any            `json:"data"`
	Metadata  map[string]any `json:"metadata"`
}

func (h *EventHandler) TriggerEvent(c *fiber.Ctx) error {
	var req triggerEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	event, err := domain.ParseEventTypeFromString(req.EventType)
	if err != nil {
		return toHTTPError(err)
	}
	if !event.IsSubscribable() {
		return toHTTPError(fmt.Errorf("%w: event type %q cannot be produced externally", domain.ErrValidation, event))
	}

	// Fan-out runs detached from the request: the producer's state change is
	// already committed and subscriber outcomes must not reach it.
	ctx := context.Background()
	if correlationID := requestCorrelationID(c); correlationID != "" {
		ctx = observability.WithCorrelationID(ctx, correlationID)
	}

	go func() {
		ctx, cancel := context.WithTimeout(ctx, dispatchBudget)
		defer cancel()

		if err := h.dispatcher.TriggerEvent(ctx, event, req.Data, req.Metadata); err != nil {
			observability.WithContextLogger(h.logger, ctx).Error("event dispatch failed",
				zap.String("event", event.String()),
				zap.Error(err),
			)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":    "accepted",
		"eventType": event.String(),
	})
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
