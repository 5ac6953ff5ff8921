package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type IncrementRequest struct {
	UserID snowflake.ID
	Year   int
	Month  int
	Field  Field
	Amount int64

	// SubscriptionID is stored when the increment creates the period row.
	SubscriptionID *snowflake.ID
}

type Service interface {
	// Get returns the period's counters, all zero when no row exists.
	// Reading never creates a row.
	Get(ctx context.Context, userID snowflake.ID, year, month int) (Snapshot, error)

	// Increment atomically adds to one counter, creating the period row on
	// first use. Safe under concurrent increments for the same key.
	Increment(ctx context.Context, req IncrementRequest) error

	// IncrementTx is Increment running on the caller's transaction.
	IncrementTx(ctx context.Context, tx *gorm.DB, req IncrementRequest) error

	// IncrementScanCapped adds one scan iff the current count is below max,
	// as a single conditional update. Returns ErrScanLimitReached when the
	// ceiling is already met. max must be non-negative; unlimited plans use
	// Increment instead.
	IncrementScanCapped(ctx context.Context, tx *gorm.DB, userID snowflake.ID, year, month int, max int64, subscriptionID *snowflake.ID) error
}

var (
	ErrInvalidField     = errors.New("invalid_usage_field")
	ErrInvalidAmount    = errors.New("invalid_usage_amount")
	ErrScanLimitReached = errors.New("scan_limit_reached")
)
