// Package domain contains the subscription plan catalog model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PlanType identifies a pricing tier.
type PlanType string

const (
	PlanTypeFree       PlanType = "free"
	PlanTypeBasic      PlanType = "basic"
	PlanTypePro        PlanType = "pro"
	PlanTypeEnterprise PlanType = "enterprise"
)

// UnlimitedScanLimit is the catalog sentinel for plans without a monthly
// scan ceiling. Callers must never do arithmetic on it; see the quota gate.
const UnlimitedScanLimit = -1

// SubscriptionPlan is an immutable catalog row. At most one plan exists per
// plan type; the seeder upserts against that unique index.
type SubscriptionPlan struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Name             string       `gorm:"type:text;not null" json:"name"`
	Description      string       `gorm:"type:text" json:"description"`
	PlanType         PlanType     `gorm:"type:text;not null;uniqueIndex:ux_subscription_plans_type" json:"plan_type"`
	MonthlyPrice     float64      `gorm:"type:decimal(10,2);not null" json:"monthly_price"`
	YearlyPrice      float64      `gorm:"type:decimal(10,2);not null" json:"yearly_price"`
	MonthlyScanLimit int          `gorm:"not null" json:"monthly_scan_limit"`
	StorageLimitMB   int64        `gorm:"not null" json:"storage_limit_mb"`
	TrialDays        *int         `gorm:"" json:"trial_days,omitempty"`
	IsActive         bool         `gorm:"not null;default:true" json:"is_active"`

	HasAPIAccess         bool `gorm:"not null;default:false" json:"has_api_access"`
	HasAdvancedAnalytics bool `gorm:"not null;default:false" json:"has_advanced_analytics"`
	HasPrioritySupport   bool `gorm:"not null;default:false" json:"has_priority_support"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (SubscriptionPlan) TableName() string { return "subscription_plans" }

// HasTrial reports whether enrolling in the plan starts with a trial period.
func (p SubscriptionPlan) HasTrial() bool {
	return p.TrialDays != nil && *p.TrialDays > 0
}

// StorageLimitBytes converts the catalog MB limit to bytes.
func (p SubscriptionPlan) StorageLimitBytes() int64 {
	return p.StorageLimitMB * 1024 * 1024
}
