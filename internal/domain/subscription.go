package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Subscription is a registered webhook endpoint owned by a platform account.
type Subscription struct {
	ID        string            `gorm:"type:uuid;primaryKey"`
	OwnerID   string            `gorm:"type:varchar(36);not null"`
	Name      string            `gorm:"type:varchar(255);not null"`
	URL       string            `gorm:"type:text;not null"`
	Events    []EventType       `gorm:"type:jsonb;serializer:json;not null"`
	Secret    string            `gorm:"type:text;not null"`
	Headers   map[string]string `gorm:"type:jsonb;serializer:json"`
	Active    bool              `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Subscription) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: subscription is required", ErrValidation)
	}
	if strings.TrimSpace(s.OwnerID) == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := ValidateEndpointURL(s.URL); err != nil {
		return err
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("%w: at least one known event type is required", ErrValidation)
	}
	for _, e := range s.Events {
		if !e.IsSubscribable() {
			return fmt.Errorf("%w: event type %q is not subscribable", ErrValidation, e)
		}
	}
	return nil
}

// Subscribed reports whether the subscription's event set contains e.
func (s *Subscription) Subscribed(e EventType) bool {
	if s == nil {
		return false
	}
	for _, known := range s.Events {
		if known == e {
			return true
		}
	}
	return false
}

// ValidateEndpointURL accepts only absolute http or https URLs with a host.
func ValidateEndpointURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: invalid url %q", ErrValidation, raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https, got %q", ErrValidation, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: url must be absolute", ErrValidation)
	}

	return nil
}
