package domain

import "time"

// DeliveryAttempt records the outcome of one envelope delivery to one
// subscriber. Rows are append-only and survive subscription deletion.
type DeliveryAttempt struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	SubscriptionID string    `gorm:"type:uuid;not null"`
	EventType      EventType `gorm:"type:varchar(40);not null"`
	RequestBody    string    `gorm:"type:text;not null"`
	HTTPStatus     int       `gorm:"not null;default:0"`
	ResponseBody   string    `gorm:"type:text"`
	Error          *string   `gorm:"type:text"`
	Success        bool      `gorm:"not null"`
	AttemptedAt    time.Time `gorm:"not null"`
}
