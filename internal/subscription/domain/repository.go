package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository covers the queries the lifecycle service cannot express through
// the generic store. Methods take the handle explicitly so callers can run
// them inside a transaction.
type Repository interface {
	// FindOpenByUserID returns the newest trial/active subscription for the
	// user, or nil. Newest created_at wins; the unique index should make
	// ties impossible.
	FindOpenByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, error)

	// FindByID returns the subscription with its plan preloaded, or nil.
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
}
