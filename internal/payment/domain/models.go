// Package domain contains payment records and the gateway/webhook contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentStatus is the terminal outcome of one charge attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment records one charge attempt against the external gateway.
type Payment struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID         snowflake.ID  `gorm:"not null;index" json:"user_id"`
	SubscriptionID *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`

	Amount   float64       `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency string        `gorm:"type:text;not null;default:TRY" json:"currency"`
	Status   PaymentStatus `gorm:"type:text;not null" json:"status"`

	Provider          string `gorm:"type:text;not null" json:"provider"`
	ProviderPaymentID string `gorm:"type:text" json:"provider_payment_id,omitempty"`
	FailureReason     string `gorm:"type:text" json:"failure_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// EventRecord is one webhook delivery. The (provider, provider_event_id)
// unique index makes replayed deliveries no-ops.
type EventRecord struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`

	Provider        string `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event" json:"provider"`
	ProviderEventID string `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event" json:"provider_event_id"`
	EventType       string `gorm:"type:text;not null" json:"event_type"`

	SubscriptionID *snowflake.ID  `gorm:"index" json:"subscription_id,omitempty"`
	Payload        datatypes.JSON `gorm:"type:jsonb" json:"payload"`

	ProcessedAt *time.Time `gorm:"" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }
