package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// List returns every active catalog plan ordered by monthly price.
	List(ctx context.Context) ([]SubscriptionPlan, error)
	// GetByID resolves an active plan or ErrPlanNotFound.
	GetByID(ctx context.Context, id snowflake.ID) (*SubscriptionPlan, error)
	// GetByType resolves the active plan for a tier or ErrPlanNotFound.
	GetByType(ctx context.Context, planType PlanType) (*SubscriptionPlan, error)
}

var ErrPlanNotFound = errors.New("plan_not_found")
