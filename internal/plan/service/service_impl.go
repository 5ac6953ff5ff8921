package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	"github.com/smartreceipt/smartreceipt/pkg/db/option"
	"github.com/smartreceipt/smartreceipt/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	log  *zap.Logger
	repo repository.Repository[plandomain.SubscriptionPlan]
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		log:  p.Log.Named("plan.service"),
		repo: repository.ProvideStore[plandomain.SubscriptionPlan](p.DB),
	}
}

func (s *Service) List(ctx context.Context) ([]plandomain.SubscriptionPlan, error) {
	rows, err := s.repo.Find(ctx,
		&plandomain.SubscriptionPlan{IsActive: true},
		option.WithSortBy("monthly_price", "asc", map[string]bool{"monthly_price": true}),
	)
	if err != nil {
		return nil, err
	}

	plans := make([]plandomain.SubscriptionPlan, 0, len(rows))
	for _, row := range rows {
		plans = append(plans, *row)
	}
	return plans, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*plandomain.SubscriptionPlan, error) {
	row, err := s.repo.FindOne(ctx, &plandomain.SubscriptionPlan{ID: id, IsActive: true})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	return row, nil
}

func (s *Service) GetByType(ctx context.Context, planType plandomain.PlanType) (*plandomain.SubscriptionPlan, error) {
	row, err := s.repo.FindOne(ctx, &plandomain.SubscriptionPlan{PlanType: planType, IsActive: true})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	return row, nil
}
