package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smartreceipt/smartreceipt/pkg/db/pagination"
)

type SubscribeRequest struct {
	UserID        snowflake.ID  `json:"-"`
	PlanID        snowflake.ID  `json:"plan_id,string"`
	BillingPeriod BillingPeriod `json:"billing_period"`
}

type CancelRequest struct {
	UserID snowflake.ID `json:"-"`
	Reason string       `json:"reason"`
}

type ListRequest struct {
	UserID    snowflake.ID
	Status    string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	// Subscribe enrolls the user in a plan. The existence check and insert
	// run in one transaction; the open-subscription unique index backstops
	// concurrent callers.
	Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error)

	// Cancel terminally cancels the user's open subscription.
	Cancel(ctx context.Context, req CancelRequest) (Subscription, error)

	// GetActiveByUserID returns the user's open subscription with its plan
	// preloaded, or ErrNoActiveSubscription. Expiry is evaluated lazily: a
	// past-due open row is transitioned to expired and treated as absent.
	GetActiveByUserID(ctx context.Context, userID snowflake.ID) (*Subscription, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)

	// ExtendBillingPeriod advances the paid-through window after a
	// successful gateway charge, reactivating a suspended subscription.
	ExtendBillingPeriod(ctx context.Context, subscriptionID snowflake.ID, paidAt time.Time) error

	// Suspend parks an open subscription after a failed renewal charge.
	Suspend(ctx context.Context, subscriptionID snowflake.ID) error
}

var (
	ErrAlreadySubscribed    = errors.New("already_subscribed")
	ErrNoActiveSubscription = errors.New("no_active_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidBillingPeriod = errors.New("invalid_billing_period")
)
