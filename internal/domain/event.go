package domain

import (
	"fmt"
	"strings"
)

// EventType identifies a domain event that subscribers can be notified about.
type EventType string

const (
	EventOrderCreated      EventType = "order.created"
	EventOrderUpdated      EventType = "order.updated"
	EventOrderCancelled    EventType = "order.cancelled"
	EventOrderCompleted    EventType = "order.completed"
	EventProductCreated    EventType = "product.created"
	EventProductUpdated    EventType = "product.updated"
	EventProductDeleted    EventType = "product.deleted"
	EventProductOutOfStock EventType = "product.out_of_stock"
	EventUserRegistered    EventType = "user.registered"
	EventUserUpdated       EventType = "user.updated"
	EventPaymentCompleted  EventType = "payment.completed"
	EventPaymentFailed     EventType = "payment.failed"
	EventReviewCreated     EventType = "review.created"
	EventStoreCreated      EventType = "store.created"
	EventStoreUpdated      EventType = "store.updated"

	// EventTestWebhook is sent only by the diagnostic "send test" operation.
	// It is never part of a subscription's event set.
	EventTestWebhook EventType = "test.webhook"
)

var subscribableEvents = []EventType{
	EventOrderCreated,
	EventOrderUpdated,
	EventOrderCancelled,
	EventOrderCompleted,
	EventProductCreated,
	EventProductUpdated,
	EventProductDeleted,
	EventProductOutOfStock,
	EventUserRegistered,
	EventUserUpdated,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventReviewCreated,
	EventStoreCreated,
	EventStoreUpdated,
}

func (e EventType) String() string { return string(e) }

func (e EventType) IsValid() bool {
	if e == EventTestWebhook {
		return true
	}
	return e.IsSubscribable()
}

// IsSubscribable reports whether subscriptions may register for this event.
func (e EventType) IsSubscribable() bool {
	for _, known := range subscribableEvents {
		if e == known {
			return true
		}
	}
	return false
}

func ParseEventTypeFromString(s string) (EventType, error) {
	e := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("%w: invalid event type %q", ErrValidation, s)
	}
	return e, nil
}

// SubscribableEventTypes returns the closed set of events a subscription may
// register for, in declaration order.
func SubscribableEventTypes() []EventType {
	out := make([]EventType, len(subscribableEvents))
	copy(out, subscribableEvents)
	return out
}

// FilterEventTypes maps raw values to known subscribable event types. Unknown
// values and the internal test event are silently dropped; duplicates are
// collapsed while preserving first-seen order.
func FilterEventTypes(values []string) []EventType {
	seen := make(map[EventType]struct{}, len(values))
	filtered := make([]EventType, 0, len(values))
	for _, raw := range values {
		e := EventType(strings.ToLower(strings.TrimSpace(raw)))
		if !e.IsSubscribable() {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		filtered = append(filtered, e)
	}
	return filtered
}
