package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/commercekit/webhook-dispatch/internal/domain"
	"github.com/commercekit/webhook-dispatch/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	headerOwnerID = "X-Owner-Id"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type WebhookService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.Subscription, error)
	Update(ctx context.Context, subscriptionID string, ownerID string, patch service.UpdateInput) (*domain.Subscription, error)
	Delete(ctx context.Context, subscriptionID string, ownerID string) (bool, error)
	Get(ctx context.Context, subscriptionID string, ownerID string) (*domain.Subscription, error)
	List(ctx context.Context, ownerID string) ([]domain.Subscription, error)
}

type DeliveryHistory interface {
	History(ctx context.Context, subscriptionID string, limit int) ([]domain.DeliveryAttempt, error)
}

type WebhookHandler struct {
	service WebhookService
	history DeliveryHistory
}

func NewWebhookHandler(service WebhookService, history DeliveryHistory) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	if history == nil {
		return nil, fmt.Errorf("delivery history is required")
	}
	return &WebhookHandler{service: service, history: history}, nil
}

func RegisterWebhookRoutes(router fiber.Router, service WebhookService, history DeliveryHistory, tester WebhookTester) error {
	h, err := NewWebhookHandler(service, history)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/webhooks", h.RegisterWebhook)
	v1.Get("/webhooks", h.ListWebhooks)
	v1.Get("/webhooks/:id", h.GetWebhook)
	v1.Patch("/webhooks/:id", h.UpdateWebhook)
	v1.Delete("/webhooks/:id", h.DeleteWebhook)
	v1.Get("/webhooks/:id/deliveries", h.ListDeliveries)

	if tester != nil {
		v1.Post("/webhooks/:id/test", h.TestWebhook(tester))
	}

	return nil
}

type registerWebhookRequest struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Events  []string          `json:"events"`
	Secret  *string           `json:"secret,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Active  *bool             `json:"active,omitempty"`
}

type updateWebhookRequest struct {
	Name    *string            `json:"name,omitempty"`
	URL     *string            `json:"url,omitempty"`
	Events  *[]string          `json:"events,omitempty"`
	Secret  *string            `json:"secret,omitempty"`
	Headers *map[string]string `json:"headers,omitempty"`
	Active  *bool              `json:"active,omitempty"`
}

type webhookResponse struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"ownerId"`
	Name      string            `json:"name"`
	URL       string            `json:"url"`
	Events    []string          `json:"events"`
	Secret    string            `json:"secret,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Active    bool              `json:"active"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type listWebhooksResponse struct {
	Data []webhookResponse `json:"data"`
}

type deliveryAttemptResponse struct {
	ID           string    `json:"id"`
	EventType    string    `json:"eventType"`
	HTTPStatus   int       `json:"httpStatus"`
	RequestBody  string    `json:"requestBody,omitempty"`
	ResponseBody string    `json:"responseBody,omitempty"`
	Error        *string   `json:"error,omitempty"`
	Success      bool      `json:"success"`
	AttemptedAt  time.Time `json:"attemptedAt"`
}

type listDeliveriesResponse struct {
	Data []deliveryAttemptResponse `json:"data"`
}

type testWebhookResponse struct {
	AttemptID  string `json:"attemptId"`
	EventType  string `json:"eventType"`
	HTTPStatus int    `json:"httpStatus"`
	Success    bool   `json:"success"`
}

func (h *WebhookHandler) RegisterWebhook(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req registerWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub, err := h.service.Register(c.Context(), service.RegisterInput{
		OwnerID: ownerID,
		Name:    req.Name,
		URL:     req.URL,
		Events:  req.Events,
		Secret:  req.Secret,
		Headers: req.Headers,
		Active:  req.Active,
	})
	if err != nil {
		return toHTTPError(err)
	}

	// The secret is included only in this response; reads never return it.
	return c.Status(fiber.StatusCreated).JSON(toWebhookResponse(sub, true))
}

func (h *WebhookHandler) GetWebhook(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return toHTTPError(err)
	}

	sub, err := h.service.Get(c.Context(), c.Params("id"), ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toWebhookResponse(sub, false))
}

func (h *WebhookHandler) ListWebhooks(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return toHTTPError(err)
	}

	subs, err := h.service.List(c.Context(), ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]webhookResponse, 0, len(subs))
	for i := range subs {
		data = append(data, toWebhookResponse(&subs[i], false))
	}

	return c.Status(fiber.StatusOK).JSON(listWebhooksResponse{Data: data})
}

func (h *WebhookHandler) UpdateWebhook(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req updateWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sub, err := h.service.Update(c.Context(), c.Params("id"), ownerID, service.UpdateInput{
		Name:    req.Name,
		URL:     req.URL,
		Events:  req.Events,
		Secret:  req.Secret,
		Headers: req.Headers,
		Active:  req.Active,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toWebhookResponse(sub, false))
}

func (h *WebhookHandler) DeleteWebhook(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return toHTTPError(err)
	}

	deleted, err := h.service.Delete(c.Context(), c.Params("id"), ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deleted": deleted,
	})
}

func (h *WebhookHandler) ListDeliveries(c *fiber.Ctx) error {
	ownerID, err := requestOwnerID(c)
	if err != nil {
		return toHTTPError(err)
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxHistoryLimit))
	}

	// Ownership gate before touching the ledger.
	sub, err := h.service.Get(c.Context(), c.Params("id"), ownerID)
	if err != nil {
		return toHTTPError(err)
	}

	attempts, err := h.history.History(c.Context(), sub.ID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		data = append(data, deliveryAttemptResponse{
			ID:           a.ID,
			EventType:    a.EventType.String(),
			HTTPStatus:   a.HTTPStatus,
			RequestBody:  a.RequestBody,
			ResponseBody: a.ResponseBody,
			Error:        a.Error,
			Success:      a.Success,
			AttemptedAt:  a.AttemptedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{Data: data})
}

func (h *WebhookHandler) TestWebhook(tester WebhookTester) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID, err := requestOwnerID(c)
		if err != nil {
			return toHTTPError(err)
		}

		outcome, err := tester.SendTest(c.Context(), c.Params("id"), ownerID)
		if err != nil {
			return toHTTPError(err)
		}

		return c.Status(fiber.StatusOK).JSON(testWebhookResponse{
			AttemptID:  outcome.AttemptID,
			EventType:  outcome.EventType.String(),
			HTTPStatus: outcome.HTTPStatus,
			Success:    outcome.Success,
		})
	}
}

func requestOwnerID(c *fiber.Ctx) (string, error) {
	ownerID := strings.TrimSpace(c.Get(headerOwnerID))
	if ownerID == "" {
		return "", fmt.Errorf("%w: %s header is required", domain.ErrValidation, headerOwnerID)
	}
	return ownerID, nil
}

func toWebhookResponse(sub *domain.Subscription, includeSecret bool) webhookResponse {
	if sub == nil {
		return webhookResponse{}
	}

	events := make([]string, 0, len(sub.Events))
	for _, e := range sub.Events {
		events = append(events, e.String())
	}

	resp := webhookResponse{
		ID:        sub.ID,
		OwnerID:   sub.OwnerID,
		Name:      sub.Name,
		URL:       sub.URL,
		Events:    events,
		Headers:   sub.Headers,
		Active:    sub.Active,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
	if includeSecret {
		resp.Secret = sub.Secret
	}
	return resp
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
