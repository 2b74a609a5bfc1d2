package repository

import (
	"time"

	"github.com/commercekit/webhook-dispatch/internal/domain"
)

// SubscriptionModel is the persistence model for webhook_subscriptions.
type SubscriptionModel struct {
	ID        string             `gorm:"type:uuid;primaryKey"`
	OwnerID   string             `gorm:"type:varchar(36);not null;index"`
	Name      string             `gorm:"type:varchar(255);not null"`
	URL       string             `gorm:"type:text;not null"`
	Events    []domain.EventType `gorm:"type:jsonb;serializer:json;not null"`
	Secret    string             `gorm:"type:text;not null"`
	Headers   map[string]string  `gorm:"type:jsonb;serializer:json"`
	Active    bool               `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SubscriptionModel) TableName() string {
	return "webhook_subscriptions"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string           `gorm:"type:uuid;primaryKey"`
	SubscriptionID string           `gorm:"type:uuid;not null"`
	EventType      domain.EventType `gorm:"type:varchar(40);not null"`
	RequestBody    string           `gorm:"type:text;not null"`
	HTTPStatus     int              `gorm:"not null;default:0"`
	ResponseBody   string           `gorm:"type:text"`
	Error          *string          `gorm:"type:text"`
	Success        bool             `gorm:"not null"`
	AttemptedAt    time.Time        `gorm:"not null"`
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func subscriptionModelFromDomain(s *domain.Subscription) *SubscriptionModel {
	if s == nil {
		return nil
	}

	return &SubscriptionModel{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Name:      s.Name,
		URL:       s.URL,
		Events:    s.Events,
		Secret:    s.Secret,
		Headers:   s.Headers,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func subscriptionModelToDomain(m *SubscriptionModel) *domain.Subscription {
	if m == nil {
		return nil
	}

	return &domain.Subscription{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Name:      m.Name,
		URL:       m.URL,
		Events:    m.Events,
		Secret:    m.Secret,
		Headers:   m.Headers,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		SubscriptionID: a.SubscriptionID,
		EventType:      a.EventType,
		RequestBody:    a.RequestBody,
		HTTPStatus:     a.HTTPStatus,
		ResponseBody:   a.ResponseBody,
		Error:          a.Error,
		Success:        a.Success,
		AttemptedAt:    a.AttemptedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		EventType:      m.EventType,
		RequestBody:    m.RequestBody,
		HTTPStatus:     m.HTTPStatus,
		ResponseBody:   m.ResponseBody,
		Error:          m.Error,
		Success:        m.Success,
		AttemptedAt:    m.AttemptedAt,
	}
}
