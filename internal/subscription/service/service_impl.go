package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smartreceipt/smartreceipt/internal/clock"
	plandomain "github.com/smartreceipt/smartreceipt/internal/plan/domain"
	subscriptiondomain "github.com/smartreceipt/smartreceipt/internal/subscription/domain"
	"github.com/smartreceipt/smartreceipt/pkg/db"
	"github.com/smartreceipt/smartreceipt/pkg/db/option"
	"github.com/smartreceipt/smartreceipt/pkg/db/pagination"
	"github.com/smartreceipt/smartreceipt/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	PlanSvc plandomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID            *snowflake.Node
	clock            clock.Clock
	repo             subscriptiondomain.Repository
	subscriptionRepo repository.Repository[subscriptiondomain.Subscription]

	plansvc plandomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: repository.ProvideStore[subscriptiondomain.Subscription](p.DB),

		plansvc: p.PlanSvc,
	}
}

func (s *Service) Subscribe(ctx context.Context, req subscriptiondomain.SubscribeRequest) (subscriptiondomain.Subscription, error) {
	switch req.BillingPeriod {
	case subscriptiondomain.BillingPeriodMonthly, subscriptiondomain.BillingPeriodYearly:
	default:
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidBillingPeriod
	}

	plan, err := s.plansvc.GetByID(ctx, req.PlanID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	now := s.clock.Now()
	sub := subscriptiondomain.Subscription{}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindOpenByUserID(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			if now.Before(existing.EndDate) {
				return subscriptiondomain.ErrAlreadySubscribed
			}
			// Stale open row: expire it here so it cannot trip the
			// open-subscription unique index on insert.
			if err := s.expire(ctx, tx, existing.ID, now); err != nil {
				return err
			}
		}

		status := subscriptiondomain.StatusActive
		endDate := addBillingPeriod(now, req.BillingPeriod)
		if plan.HasTrial() {
			status = subscriptiondomain.StatusTrial
			endDate = now.AddDate(0, 0, *plan.TrialDays)
		}
		nextBilling := endDate

		sub = subscriptiondomain.Subscription{
			ID:              s.genID.Generate(),
			UserID:          req.UserID,
			PlanID:          plan.ID,
			Status:          status,
			BillingPeriod:   req.BillingPeriod,
			StartDate:       now,
			EndDate:         endDate,
			NextBillingDate: &nextBilling,
			AutoRenew:       true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := tx.Create(&sub).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return subscriptiondomain.ErrAlreadySubscribed
			}
			return err
		}
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	sub.Plan = plan
	s.log.Info("subscription created",
		zap.Int64("subscription_id", int64(sub.ID)),
		zap.Int64("user_id", int64(req.UserID)),
		zap.String("plan_type", string(plan.PlanType)),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}

func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (subscriptiondomain.Subscription, error) {
	now := s.clock.Now()
	var cancelled subscriptiondomain.Subscription

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.openSubscription(ctx, tx, req.UserID, now)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"status":       subscriptiondomain.StatusCancelled,
			"cancelled_at": now,
			"auto_renew":   false,
			"updated_at":   now,
		}
		if req.Reason != "" {
			updates["cancellation_reason"] = req.Reason
		}
		if err := tx.Model(&subscriptiondomain.Subscription{}).
			Where("id = ?", sub.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		sub.Status = subscriptiondomain.StatusCancelled
		sub.CancelledAt = &now
		sub.AutoRenew = false
		if req.Reason != "" {
			reason := req.Reason
			sub.CancellationReason = &reason
		}
		sub.UpdatedAt = now
		cancelled = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription cancelled",
		zap.Int64("subscription_id", int64(cancelled.ID)),
		zap.Int64("user_id", int64(req.UserID)),
		zap.String("reason", req.Reason),
	)
	return cancelled, nil
}

func (s *Service) GetActiveByUserID(ctx context.Context, userID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, err := s.openSubscription(ctx, s.db, userID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListRequest) (subscriptiondomain.ListResponse, error) {
	filter := &subscriptiondomain.Subscription{UserID: req.UserID}
	if req.Status != "" {
		filter.Status = subscriptiondomain.Status(req.Status)
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	rows, err := s.subscriptionRepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
		option.WithSortBy("created_at", "desc", map[string]bool{"created_at": true}),
	)
	if err != nil {
		return subscriptiondomain.ListResponse{}, err
	}

	pageInfo, rows := pagination.BuildCursorPageInfo(rows, pageSize, func(item *subscriptiondomain.Subscription) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	resp := subscriptiondomain.ListResponse{PageInfo: *pageInfo}
	for _, row := range rows {
		resp.Subscriptions = append(resp.Subscriptions, *row)
	}
	return resp, nil
}

func (s *Service) ExtendBillingPeriod(ctx context.Context, subscriptionID snowflake.ID, paidAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		switch sub.Status {
		case subscriptiondomain.StatusCancelled, subscriptiondomain.StatusExpired:
			// Terminal states stay terminal; a late charge does not resurrect them.
			s.log.Warn("payment received for closed subscription",
				zap.Int64("subscription_id", int64(subscriptionID)),
				zap.String("status", string(sub.Status)),
			)
			return nil
		}

		base := sub.EndDate
		if paidAt.After(base) {
			base = paidAt
		}
		newEnd := addBillingPeriod(base, sub.BillingPeriod)

		return tx.Model(&subscriptiondomain.Subscription{}).
			Where("id = ?", subscriptionID).
			Updates(map[string]any{
				"status":            subscriptiondomain.StatusActive,
				"end_date":          newEnd,
				"next_billing_date": newEnd,
				"updated_at":        s.clock.Now(),
			}).Error
	})
}

func (s *Service) Suspend(ctx context.Context, subscriptionID snowflake.ID) error {
	res := s.db.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", subscriptionID).
		Where("status IN ?", []subscriptiondomain.Status{
			subscriptiondomain.StatusTrial,
			subscriptiondomain.StatusActive,
		}).
		Updates(map[string]any{
			"status":     subscriptiondomain.StatusSuspended,
			"updated_at": s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrSubscriptionNotFound
	}
	return nil
}

// openSubscription resolves the user's open subscription, expiring a
// past-due row on the way (lazy expiry; there is no background sweep).
func (s *Service) openSubscription(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (*subscriptiondomain.Subscription, error) {
	sub, err := s.repo.FindOpenByUserID(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNoActiveSubscription
	}
	if !now.Before(sub.EndDate) {
		if err := s.expire(ctx, db, sub.ID, now); err != nil {
			return nil, err
		}
		return nil, subscriptiondomain.ErrNoActiveSubscription
	}
	return sub, nil
}

func (s *Service) expire(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", id).
		Where("status IN ?", []subscriptiondomain.Status{
			subscriptiondomain.StatusTrial,
			subscriptiondomain.StatusActive,
		}).
		Updates(map[string]any{
			"status":     subscriptiondomain.StatusExpired,
			"auto_renew": false,
			"updated_at": now,
		}).Error
}

func addBillingPeriod(from time.Time, period subscriptiondomain.BillingPeriod) time.Time {
	if period == subscriptiondomain.BillingPeriodYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
