// Package domain contains the per-user per-month consumption counters.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageTracking is the consumption counter for one (user, year, month) key.
// A unique index over (user_id, year, month) guarantees exactly one row per
// period; counters only ever grow within a period.
type UsageTracking struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_user_period,priority:1" json:"user_id"`

	// SubscriptionID is an informational back-reference captured at row
	// creation; the quota gate never consults it.
	SubscriptionID *snowflake.ID `gorm:"index" json:"subscription_id,omitempty"`

	Year  int `gorm:"not null;uniqueIndex:ux_usage_user_period,priority:2" json:"year"`
	Month int `gorm:"not null;uniqueIndex:ux_usage_user_period,priority:3" json:"month"`

	ScanCount        int64 `gorm:"not null;default:0" json:"scan_count"`
	StorageUsedBytes int64 `gorm:"not null;default:0" json:"storage_used_bytes"`
	APICallCount     int64 `gorm:"not null;default:0;column:api_call_count" json:"api_call_count"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageTracking) TableName() string { return "usage_tracking" }

// Field names a counter column that Increment may target.
type Field string

const (
	FieldScanCount    Field = "scan_count"
	FieldStorageBytes Field = "storage_used_bytes"
	FieldAPICalls     Field = "api_call_count"
)

// Column returns the whitelisted column name for the field, or "" when the
// field is unknown. Never interpolate a Field into SQL without this check.
func (f Field) Column() string {
	switch f {
	case FieldScanCount, FieldStorageBytes, FieldAPICalls:
		return string(f)
	default:
		return ""
	}
}

// Snapshot is a read-only view of one period's counters.
type Snapshot struct {
	UserID snowflake.ID `json:"user_id"`
	Year   int          `json:"year"`
	Month  int          `json:"month"`

	ScanCount        int64 `json:"scan_count"`
	StorageUsedBytes int64 `json:"storage_used_bytes"`
	APICallCount     int64 `json:"api_call_count"`
}
