// Package domain contains persistence models for user subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusSuspended Status = "suspended"
)

// Open reports whether the status counts against the one-open-subscription
// invariant.
func (s Status) Open() bool {
	return s == StatusTrial || s == StatusActive
}

// BillingPeriod is the renewal cadence chosen at subscribe time.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// Subscription captures one user's enrollment in a plan for a span of time.
// A partial unique index over (user_id) filtered to open statuses guarantees
// at most one trial/active row per user.
type Subscription struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID snowflake.ID `gorm:"not null;index" json:"user_id"`
	PlanID snowflake.ID `gorm:"not null;index" json:"plan_id"`

	Plan *plandomain.SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`

	Status        Status        `gorm:"type:text;not null;index" json:"status"`
	BillingPeriod BillingPeriod `gorm:"type:text;not null" json:"billing_period"`

	StartDate       time.Time  `gorm:"not null" json:"start_date"`
	EndDate         time.Time  `gorm:"not null" json:"end_date"`
	NextBillingDate *time.Time `gorm:"" json:"next_billing_date,omitempty"`

	CancelledAt        *time.Time `gorm:"" json:"cancelled_at,omitempty"`
	CancellationReason *string    `gorm:"type:text" json:"cancellation_reason,omitempty"`
	AutoRenew          bool       `gorm:"not null;default:true" json:"auto_renew"`

	// ProviderSubscriptionID links the row to the external payment gateway.
	ProviderSubscriptionID *string `gorm:"type:text" json:"provider_subscription_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
